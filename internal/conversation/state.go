package conversation

import (
	"time"
)

// AI-side states.
const (
	AIIdle       = "idle"
	AIListening  = "listening"
	AIProcessing = "processing"
	AISpeaking   = "speaking"
	AIDrawing    = "drawing"
)

// User-side states.
const (
	UserIdle     = "idle"
	UserSpeaking = "speaking"
	UserWaiting  = "waiting"
	UserTyping   = "typing"
)

// State is the per-session turn-taking state machine:
//
//	idle --(question)--> processing
//	processing --(answer, no drawing)--> speaking
//	processing --(answer, drawing actions)--> drawing
//	speaking|drawing --(delivery timeout)--> idle
//
// Transitions are pure: no I/O, no timers. The orchestrating layer invokes
// the answer generator and schedules the delivery timeout; staying in
// processing for the duration is what prevents a second concurrent
// generation for the session. thinking/typing indicators are transient
// broadcasts and never drive a transition here.
//
// State is not safe for concurrent use. All mutation must pass through the
// owning session's serial executor.
type State struct {
	AI                 string    `json:"aiState"`
	User               string    `json:"userState"`
	ExpectingUserInput bool      `json:"expectingUserInput"`
	LastActivity       time.Time `json:"lastActivity"`
}

// NewState returns the initial state: both sides idle, learner free to ask.
func NewState() *State {
	return &State{
		AI:                 AIIdle,
		User:               UserIdle,
		ExpectingUserInput: true,
		LastActivity:       time.Now(),
	}
}

// BeginProcessing accepts a learner question. At most one processing
// episode runs per session: a second question while processing is rejected
// with ErrGenerationInProgress and must surface to the sender as a busy
// signal, never be queued or merged.
func (s *State) BeginProcessing(now time.Time) error {
	if s.AI == AIProcessing {
		return ErrGenerationInProgress
	}
	s.AI = AIProcessing
	s.User = UserWaiting
	s.ExpectingUserInput = false
	s.LastActivity = now
	return nil
}

// CompleteProcessing records a generated answer: the AI moves to drawing
// when the answer carries whiteboard actions, speaking otherwise. The
// learner is released to type again.
func (s *State) CompleteProcessing(hasDrawing bool, now time.Time) error {
	if s.AI != AIProcessing {
		return ErrNotProcessing
	}
	if hasDrawing {
		s.AI = AIDrawing
	} else {
		s.AI = AISpeaking
	}
	s.User = UserIdle
	s.ExpectingUserInput = true
	s.LastActivity = now
	return nil
}

// FailProcessing resets after a generation error or timeout. The session
// must never be left stuck in processing.
func (s *State) FailProcessing(now time.Time) error {
	if s.AI != AIProcessing {
		return ErrNotProcessing
	}
	s.AI = AIIdle
	s.User = UserIdle
	s.ExpectingUserInput = true
	s.LastActivity = now
	return nil
}

// FinishDelivery returns a speaking or drawing AI to idle once the delivery
// window elapses. A no-op in any other state, so a stale timer fired after
// the next question started is harmless.
func (s *State) FinishDelivery(now time.Time) {
	if s.AI == AISpeaking || s.AI == AIDrawing {
		s.AI = AIIdle
		s.LastActivity = now
	}
}

// MarkUserTyping flips the user side between typing and idle outside of a
// processing episode.
func (s *State) MarkUserTyping(typing bool, now time.Time) {
	if s.User == UserWaiting {
		return
	}
	if typing {
		s.User = UserTyping
	} else {
		s.User = UserIdle
	}
	s.LastActivity = now
}

// Processing reports whether a generation episode is in flight.
func (s *State) Processing() bool {
	return s.AI == AIProcessing
}
