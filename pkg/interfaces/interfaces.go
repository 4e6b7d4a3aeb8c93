package interfaces

import (
	"context"

	"tutorhub/pkg/types"
)

// TokenVerifier verifies a connection credential and resolves it to a user
// identity. Verification fails closed: any error rejects the connection
// before a session is touched.
type TokenVerifier interface {
	Verify(token string) (*types.Identity, error)
}

// AnswerGenerator produces an explanation for a learner question, given the
// bounded recent-exchange context. Implementations must enforce their own
// request timeout; callers additionally bound the call with ctx.
type AnswerGenerator interface {
	Generate(ctx context.Context, question string, recent []types.QAEntry) (*types.AIAnswer, error)
}

// VoiceSynthesizer turns answer text into an audio reference.
type VoiceSynthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (*types.VoiceReply, error)
}

// Connection is the transport-facing view of one joined client. Writes are
// thread-safe; implementations serialize them through a single writer.
type Connection interface {
	WriteJSON(v interface{}) error
	Close() error
	GetConnectionID() string
	GetUserID() string
	GetDisplayName() string
	GetRole() string
}
