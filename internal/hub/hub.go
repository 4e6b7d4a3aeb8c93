package hub

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"tutorhub/internal/broadcast"
	"tutorhub/internal/session"
	"tutorhub/internal/websocket"
	"tutorhub/pkg/interfaces"
	"tutorhub/pkg/types"
)

// aiAuthorID attributes whiteboard operations and chat entries produced by
// the answer generator.
const aiAuthorID = "ai-tutor"

// Config tunes the hub's orchestration timeouts and limits.
type Config struct {
	// GenerationTimeout bounds one answer-generation call.
	GenerationTimeout time.Duration
	// DeliveryTimeout is how long the AI stays in speaking or drawing
	// after an answer before returning to idle.
	DeliveryTimeout time.Duration
	// VoiceTimeout bounds one voice-synthesis call.
	VoiceTimeout time.Duration
	// RateLimitPerMinute caps inbound events per user.
	RateLimitPerMinute int
}

// DefaultConfig returns production orchestration defaults.
func DefaultConfig() Config {
	return Config{
		GenerationTimeout:  30 * time.Second,
		DeliveryTimeout:    8 * time.Second,
		VoiceTimeout:       15 * time.Second,
		RateLimitPerMinute: 120,
	}
}

// Hub routes inbound client events to their session and publishes the
// resulting state changes. It owns no session state itself: all mutation is
// handed to the target session's serial executor, so the hub can be called
// from any number of connection read loops concurrently.
//
// Malformed events are dropped with a logged warning and never reach a
// session.
type Hub struct {
	sessions  *session.Registry
	conns     *websocket.Registry
	caster    *broadcast.Broadcaster
	store     interfaces.Store
	generator interfaces.AnswerGenerator
	voice     interfaces.VoiceSynthesizer
	limiter   *RateLimiter
	config    Config

	stopCleanup chan struct{}
}

// New creates a hub over the given session registry, connection registry and
// backing services, and starts the rate limiter's cleanup loop.
func New(
	sessions *session.Registry,
	conns *websocket.Registry,
	caster *broadcast.Broadcaster,
	store interfaces.Store,
	generator interfaces.AnswerGenerator,
	voice interfaces.VoiceSynthesizer,
	config Config,
) *Hub {
	defaults := DefaultConfig()
	if config.GenerationTimeout <= 0 {
		config.GenerationTimeout = defaults.GenerationTimeout
	}
	if config.DeliveryTimeout <= 0 {
		config.DeliveryTimeout = defaults.DeliveryTimeout
	}
	if config.VoiceTimeout <= 0 {
		config.VoiceTimeout = defaults.VoiceTimeout
	}
	if config.RateLimitPerMinute <= 0 {
		config.RateLimitPerMinute = defaults.RateLimitPerMinute
	}

	h := &Hub{
		sessions:    sessions,
		conns:       conns,
		caster:      caster,
		store:       store,
		generator:   generator,
		voice:       voice,
		limiter:     NewRateLimiter(config.RateLimitPerMinute),
		config:      config,
		stopCleanup: make(chan struct{}),
	}

	go h.cleanupLoop()

	return h
}

// Close stops the hub's background maintenance.
func (h *Hub) Close() {
	close(h.stopCleanup)
}

func (h *Hub) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.limiter.Cleanup()
		case <-h.stopCleanup:
			return
		}
	}
}

// HandleEvent parses and routes one inbound message from a connection's read
// loop. Implements websocket.EventSink.
func (h *Hub) HandleEvent(conn *websocket.Connection, data []byte) {
	var envelope types.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		log.Printf("Dropping unparseable event from user %s: %v", conn.GetUserID(), err)
		return
	}
	if !types.IsValidInboundEvent(envelope.Type) {
		log.Printf("Dropping unknown event type %q from user %s", envelope.Type, conn.GetUserID())
		return
	}
	if !h.limiter.Allow(conn.GetUserID()) {
		h.sendError(conn, envelope.SessionID, types.ErrorCodeRateLimited, "too many events, slow down")
		return
	}

	if envelope.Type == types.EventJoinSession {
		h.handleJoin(conn, envelope)
		return
	}

	s, ok := h.resolveSession(conn, envelope)
	if !ok {
		return
	}

	switch envelope.Type {
	case types.EventLeaveSession:
		h.leave(conn, s, types.EventUserLeft)
	case types.EventChatMessage:
		h.handleChat(conn, s, envelope.Payload)
	case types.EventAIQuestion:
		h.handleQuestion(conn, s, envelope.Payload)
	case types.EventWhiteboardUpdate:
		h.handleWhiteboard(conn, s, envelope.Payload)
	case types.EventWhiteboardCursor:
		h.handleCursor(conn, s, envelope.Payload)
	case types.EventAITypingStart:
		h.handleTyping(conn, s, true)
	case types.EventAITypingStop:
		h.handleTyping(conn, s, false)
	case types.EventVoiceRequest:
		h.handleVoice(conn, s, envelope.Payload)
	}
}

// HandleDisconnect cleans up after a connection whose read loop ended
// without an explicit leave. Implements websocket.EventSink.
func (h *Hub) HandleDisconnect(conn *websocket.Connection) {
	sessionID := conn.GetSessionID()
	if sessionID == "" {
		return
	}

	// A reconnect replaces the registry entry before the old read loop
	// exits; the stale connection must not evict its replacement.
	if registered, exists := h.conns.GetUserConnection(conn.GetUserID()); !exists || registered != conn {
		return
	}

	s, exists := h.sessions.Get(sessionID)
	if !exists {
		h.conns.Unregister(conn)
		return
	}

	h.leave(conn, s, types.EventUserDisconnected)
}

// resolveSession maps an event to the session its connection is joined to.
// Events for a session the connection never joined are dropped.
func (h *Hub) resolveSession(conn *websocket.Connection, envelope types.Envelope) (*session.Session, bool) {
	joined := conn.GetSessionID()
	if joined == "" {
		h.sendError(conn, envelope.SessionID, types.ErrorCodeSessionNotFound, "join a session first")
		return nil, false
	}
	if envelope.SessionID != "" && envelope.SessionID != joined {
		log.Printf("Dropping %s from user %s: session %s does not match joined session %s",
			envelope.Type, conn.GetUserID(), envelope.SessionID, joined)
		return nil, false
	}

	s, exists := h.sessions.Get(joined)
	if !exists {
		h.sendError(conn, joined, types.ErrorCodeSessionNotFound, "session no longer exists")
		return nil, false
	}
	return s, true
}

func (h *Hub) handleJoin(conn *websocket.Connection, envelope types.Envelope) {
	sessionID := envelope.SessionID
	if !types.IsValidSessionID(sessionID) {
		h.sendError(conn, sessionID, types.ErrorCodeMalformedEvent, "invalid session ID")
		return
	}

	// Joining while already in another session is an implicit leave of the
	// old one; membership in two sessions at once is never allowed.
	if current := conn.GetSessionID(); current != "" && current != sessionID {
		if prev, exists := h.sessions.Get(current); exists {
			h.leave(conn, prev, types.EventUserLeft)
		} else {
			h.conns.Unregister(conn)
			conn.SetSessionID("")
		}
	}

	s, created, err := h.sessions.GetOrCreate(sessionID, conn.GetUserID())
	if err != nil {
		h.sendError(conn, sessionID, types.ErrorCodeMalformedEvent, err.Error())
		return
	}

	if err := h.conns.Register(sessionID, conn); err != nil {
		log.Printf("Failed to register connection for user %s in session %s: %v",
			conn.GetUserID(), sessionID, err)
		return
	}

	if created {
		descriptor := s.Descriptor()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.store.SaveSession(ctx, descriptor); err != nil {
				log.Printf("Failed to persist session %s: %v", sessionID, err)
			}
		}()
	}

	participant := conn.Participant()
	userID := conn.GetUserID()

	err = s.Do(func() {
		s.AddParticipant(participant)

		elements, version := s.Board.Snapshot()
		joined := types.SessionJoinedPayload{
			SessionID:    sessionID,
			Participants: s.Participants(),
			Whiteboard: types.WhiteboardSnapshotPayload{
				Elements: elements,
				Version:  version,
			},
			RecentMemory: s.Memory.All(),
			Cursors:      s.Presence.Snapshot(time.Now()),
		}
		h.caster.SendTo(userID, types.NewServerEvent(types.EventSessionJoined, sessionID, joined))

		h.caster.FanOut(sessionID, types.NewServerEvent(types.EventUserJoined, sessionID, types.PresencePayload{
			UserID:      participant.UserID,
			DisplayName: participant.DisplayName,
			Role:        participant.Role,
		}), userID)
	})
	if err != nil {
		log.Printf("Failed to join user %s to session %s: %v", userID, sessionID, err)
		h.conns.Unregister(conn)
		conn.SetSessionID("")
		h.sendError(conn, sessionID, types.ErrorCodeSessionNotFound, "session is shutting down")
	}
}

// leave handles both explicit leaves and dropped connections; only the
// announcement event differs.
func (h *Hub) leave(conn *websocket.Connection, s *session.Session, eventType string) {
	userID := conn.GetUserID()
	displayName := conn.GetDisplayName()
	sessionID := s.ID

	h.conns.Unregister(conn)
	conn.SetSessionID("")

	err := s.Do(func() {
		s.RemoveParticipant(userID)
		s.Presence.Remove(userID)

		h.caster.FanOut(sessionID, types.NewServerEvent(eventType, sessionID, types.PresencePayload{
			UserID:      userID,
			DisplayName: displayName,
		}), userID)

		if s.ParticipantCount() == 0 {
			h.sessions.ScheduleCleanup(sessionID)
		}
	})
	if err != nil {
		log.Printf("Failed to remove user %s from session %s: %v", userID, sessionID, err)
	}
}

func (h *Hub) handleChat(conn *websocket.Connection, s *session.Session, payload json.RawMessage) {
	var p types.ChatMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.sendError(conn, s.ID, types.ErrorCodeMalformedEvent, "invalid chat payload")
		return
	}
	if err := p.Validate(); err != nil {
		h.sendError(conn, s.ID, types.ErrorCodeMalformedEvent, err.Error())
		return
	}

	kind := types.ChatKindUser
	if conn.GetRole() == types.RoleAI {
		kind = types.ChatKindAI
	}
	message := types.ChatMessage{
		ID:          uuid.New().String(),
		SessionID:   s.ID,
		UserID:      conn.GetUserID(),
		DisplayName: conn.GetDisplayName(),
		Content:     p.Message,
		Kind:        kind,
		Timestamp:   time.Now(),
	}

	err := s.Do(func() {
		s.AppendChat(message)
		h.store.QueueChatMessage(&message)
		h.caster.FanOut(s.ID, types.NewServerEvent(types.EventChatBroadcast, s.ID, message), "")
	})
	if err != nil {
		log.Printf("Failed to append chat message in session %s: %v", s.ID, err)
	}
}

func (h *Hub) handleQuestion(conn *websocket.Connection, s *session.Session, payload json.RawMessage) {
	var p types.AIQuestionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.sendError(conn, s.ID, types.ErrorCodeMalformedEvent, "invalid question payload")
		return
	}
	if err := p.Validate(); err != nil {
		h.sendError(conn, s.ID, types.ErrorCodeMalformedEvent, err.Error())
		return
	}

	userID := conn.GetUserID()

	err := s.Do(func() {
		if err := s.State.BeginProcessing(time.Now()); err != nil {
			// One generation episode at a time. The second question is
			// rejected immediately, never queued.
			h.sendError(conn, s.ID, types.ErrorCodeBusy, "an answer is already being generated")
			return
		}

		h.caster.FanOut(s.ID, types.NewServerEvent(types.EventAIThinking, s.ID,
			types.AIThinkingPayload{IsThinking: true}), "")

		recent := s.Memory.All()
		go h.generate(s, userID, p, recent)
	})
	if err != nil {
		log.Printf("Failed to accept question in session %s: %v", s.ID, err)
	}
}

// generate runs one answer-generation episode off the session worker, then
// re-enters the worker to land the result. The session stays in processing
// for the whole call, which is what rejects concurrent questions.
func (h *Hub) generate(s *session.Session, userID string, p types.AIQuestionPayload, recent []types.QAEntry) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), h.config.GenerationTimeout)
	defer cancel()

	answer, genErr := h.generator.Generate(ctx, p.Question, recent)

	err := s.Do(func() {
		now := time.Now()

		if genErr != nil {
			if stateErr := s.State.FailProcessing(now); stateErr != nil {
				log.Printf("Generation failed in session %s with state %s: %v", s.ID, s.State.AI, stateErr)
			}
			log.Printf("Answer generation failed in session %s for user %s: %v", s.ID, userID, genErr)
			// Every still-connected participant learns the episode failed,
			// not just the asker.
			h.caster.FanOut(s.ID, types.NewServerEvent(types.EventError, s.ID, types.ErrorPayload{
				Code:    types.ErrorCodeGenerationFailed,
				Message: "answer generation failed, please retry",
			}), "")
			h.caster.FanOut(s.ID, types.NewServerEvent(types.EventAIThinking, s.ID,
				types.AIThinkingPayload{IsThinking: false}), "")
			return
		}

		hasDrawing := len(answer.WhiteboardActions) > 0
		if stateErr := s.State.CompleteProcessing(hasDrawing, now); stateErr != nil {
			log.Printf("Completion in session %s with state %s: %v", s.ID, s.State.AI, stateErr)
		}

		entry := s.Memory.Append(types.QAEntry{
			Question:          p.Question,
			Answer:            answer.Response,
			Subtopic:          p.Subtopic,
			Level:             p.Level,
			ResponseTime:      time.Since(start),
			WhiteboardActions: answer.WhiteboardActions,
			FollowUpQuestions: answer.FollowUpQuestions,
		})
		h.store.QueueExchange(s.ID, &entry)

		for _, action := range answer.WhiteboardActions {
			op, applyErr := s.Board.Apply(action.Action, action.Element, aiAuthorID)
			if applyErr != nil {
				log.Printf("Skipping rejected whiteboard action %s in session %s: %v",
					action.Action, s.ID, applyErr)
				continue
			}
			h.caster.FanOut(s.ID, types.NewServerEvent(types.EventWhiteboardSync, s.ID,
				types.WhiteboardEventPayload{
					Action:  op.Action,
					Element: op.Element,
					Version: op.Version,
					Author:  op.Author,
				}), "")
		}
		if hasDrawing {
			elements, version := s.Board.Snapshot()
			h.store.QueueWhiteboardSnapshot(s.ID, elements, version)
		}

		answerMessage := types.ChatMessage{
			ID:          uuid.New().String(),
			SessionID:   s.ID,
			UserID:      aiAuthorID,
			DisplayName: "AI Tutor",
			Content:     answer.Response,
			Kind:        types.ChatKindAI,
			Timestamp:   now,
		}
		s.AppendChat(answerMessage)
		h.store.QueueChatMessage(&answerMessage)

		h.caster.FanOut(s.ID, types.NewServerEvent(types.EventAIAnswer, s.ID, types.AIAnswerPayload{
			Response:          answer.Response,
			WhiteboardActions: answer.WhiteboardActions,
			FollowUpQuestions: answer.FollowUpQuestions,
			Confidence:        answer.Confidence,
		}), "")
		h.caster.FanOut(s.ID, types.NewServerEvent(types.EventAIThinking, s.ID,
			types.AIThinkingPayload{IsThinking: false}), "")

		// FinishDelivery is a no-op outside speaking/drawing, so a timer
		// firing after the next question started is harmless.
		time.AfterFunc(h.config.DeliveryTimeout, func() {
			_ = s.Do(func() { s.State.FinishDelivery(time.Now()) })
		})
	})
	if err != nil {
		log.Printf("Session %s closed before generation result landed: %v", s.ID, err)
	}
}

func (h *Hub) handleWhiteboard(conn *websocket.Connection, s *session.Session, payload json.RawMessage) {
	var p types.WhiteboardUpdatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.sendError(conn, s.ID, types.ErrorCodeMalformedEvent, "invalid whiteboard payload")
		return
	}
	if err := p.Validate(); err != nil {
		h.sendError(conn, s.ID, types.ErrorCodeMalformedEvent, err.Error())
		return
	}

	userID := conn.GetUserID()

	err := s.Do(func() {
		op, applyErr := s.Board.Apply(p.Action, p.Element, userID)
		if applyErr != nil {
			// Rejected operations do not advance the board version and
			// are never broadcast.
			log.Printf("Rejected whiteboard %s from user %s in session %s: %v",
				p.Action, userID, s.ID, applyErr)
			return
		}

		h.caster.FanOut(s.ID, types.NewServerEvent(types.EventWhiteboardSync, s.ID,
			types.WhiteboardEventPayload{
				Action:  op.Action,
				Element: op.Element,
				Version: op.Version,
				Author:  op.Author,
			}), userID)

		elements, version := s.Board.Snapshot()
		h.store.QueueWhiteboardSnapshot(s.ID, elements, version)
	})
	if err != nil {
		log.Printf("Failed to apply whiteboard update in session %s: %v", s.ID, err)
	}
}

func (h *Hub) handleCursor(conn *websocket.Connection, s *session.Session, payload json.RawMessage) {
	var p types.CursorPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Printf("Dropping invalid cursor payload from user %s: %v", conn.GetUserID(), err)
		return
	}

	userID := conn.GetUserID()

	_ = s.Do(func() {
		entry := s.Presence.Update(userID, p.Position, time.Now())
		h.caster.FanOut(s.ID, types.NewServerEvent(types.EventCursorUpdate, s.ID,
			types.CursorUpdatePayload{
				UserID:   entry.UserID,
				Position: entry.Position,
			}), userID)
	})
}

func (h *Hub) handleTyping(conn *websocket.Connection, s *session.Session, typing bool) {
	role := conn.GetRole()

	_ = s.Do(func() {
		if role != types.RoleAI {
			s.State.MarkUserTyping(typing, time.Now())
		}
		h.caster.FanOut(s.ID, types.NewServerEvent(types.EventAITyping, s.ID,
			types.AITypingPayload{IsTyping: typing}), conn.GetUserID())
	})
}

func (h *Hub) handleVoice(conn *websocket.Connection, s *session.Session, payload json.RawMessage) {
	var p types.VoiceRequestPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.sendError(conn, s.ID, types.ErrorCodeMalformedEvent, "invalid voice payload")
		return
	}
	if p.Text == "" {
		h.sendError(conn, s.ID, types.ErrorCodeMalformedEvent, "voice request requires text")
		return
	}

	userID := conn.GetUserID()
	sessionID := s.ID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.config.VoiceTimeout)
		defer cancel()

		reply, err := h.voice.Synthesize(ctx, p.Text, p.Voice)
		if err != nil {
			log.Printf("Voice synthesis failed in session %s for user %s: %v", sessionID, userID, err)
			h.caster.SendTo(userID, types.NewServerEvent(types.EventError, sessionID, types.ErrorPayload{
				Code:    types.ErrorCodeGenerationFailed,
				Message: "voice synthesis failed",
			}))
			return
		}
		h.caster.SendTo(userID, types.NewServerEvent(types.EventVoiceReply, sessionID, reply))
	}()
}

func (h *Hub) sendError(conn *websocket.Connection, sessionID, code, message string) {
	h.caster.SendDirect(conn, types.NewServerEvent(types.EventError, sessionID, types.ErrorPayload{
		Code:    code,
		Message: message,
	}))
}
