package conversation

import "errors"

var (
	// ErrGenerationInProgress is the busy signal: a second question arriving
	// while the session is processing is rejected, never queued.
	ErrGenerationInProgress = errors.New("answer generation already in progress")

	// ErrNotProcessing guards completion transitions against stale or
	// duplicate generation results.
	ErrNotProcessing = errors.New("session is not processing a question")
)
