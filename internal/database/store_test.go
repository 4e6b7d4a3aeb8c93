package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tutorhub/pkg/interfaces"
	"tutorhub/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// waitUntil polls for an asynchronous write to land.
func waitUntil(t *testing.T, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestStore_SessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := &types.Session{
		ID:        "lesson-1",
		OwnerID:   "alice",
		CreatedAt: time.Now(),
		Active:    true,
	}
	if err := store.SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	got, err := store.GetSession(ctx, "lesson-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.OwnerID != "alice" || !got.Active || got.EndedAt != nil {
		t.Errorf("session = %+v, want active session owned by alice", got)
	}

	if err := store.MarkSessionEnded(ctx, "lesson-1"); err != nil {
		t.Fatalf("MarkSessionEnded: %v", err)
	}
	got, err = store.GetSession(ctx, "lesson-1")
	if err != nil {
		t.Fatalf("GetSession after end: %v", err)
	}
	if got.Active || got.EndedAt == nil {
		t.Errorf("ended session = %+v, want inactive with end time", got)
	}

	if _, err := store.GetSession(ctx, "no-such-session"); err != interfaces.ErrSessionNotFound {
		t.Errorf("GetSession(unknown) = %v, want ErrSessionNotFound", err)
	}
}

func TestStore_SaveSessionReactivatesReusedID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := &types.Session{ID: "lesson-2", OwnerID: "alice", CreatedAt: time.Now(), Active: true}
	if err := store.SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := store.MarkSessionEnded(ctx, "lesson-2"); err != nil {
		t.Fatalf("MarkSessionEnded: %v", err)
	}

	session.OwnerID = "bob"
	session.CreatedAt = time.Now()
	if err := store.SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession reuse: %v", err)
	}

	got, err := store.GetSession(ctx, "lesson-2")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !got.Active || got.EndedAt != nil || got.OwnerID != "bob" {
		t.Errorf("reused session = %+v, want active again owned by bob", got)
	}
}

func TestStore_ChatHistoryChronological(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	for i, content := range []string{"first", "second", "third"} {
		store.QueueChatMessage(&types.ChatMessage{
			ID:          content,
			SessionID:   "lesson-chat",
			UserID:      "alice",
			DisplayName: "alice",
			Content:     content,
			Kind:        types.ChatKindUser,
			Timestamp:   base.Add(time.Duration(i) * time.Second),
		})
	}

	waitUntil(t, func() bool {
		history, err := store.GetChatHistory(ctx, "lesson-chat")
		return err == nil && len(history) == 3
	})
	history, err := store.GetChatHistory(ctx, "lesson-chat")
	if err != nil {
		t.Fatalf("GetChatHistory: %v", err)
	}
	for i, want := range []string{"first", "second", "third"} {
		if history[i].Content != want {
			t.Errorf("history[%d] = %q, want %q", i, history[i].Content, want)
		}
	}
}

func TestStore_ExchangePersisted(t *testing.T) {
	store := newTestStore(t)

	store.QueueExchange("lesson-qa", &types.QAEntry{
		ID:           "ex-1",
		Question:     "what is gravity?",
		Answer:       "mass attracts mass",
		Subtopic:     "physics",
		ResponseTime: 1200 * time.Millisecond,
		WhiteboardActions: []types.WhiteboardAction{
			{Action: types.WhiteboardActionAdd, Element: &types.WhiteboardElement{ID: "g-1"}},
		},
		FollowUpQuestions: []string{"what about orbits?"},
		Timestamp:         time.Now(),
	})

	var question string
	var responseMs int64
	waitUntil(t, func() bool {
		err := store.db.QueryRow(
			`SELECT question, response_time_ms FROM qa_exchanges WHERE id = ?`, "ex-1",
		).Scan(&question, &responseMs)
		return err == nil
	})
	if question != "what is gravity?" {
		t.Errorf("question = %q", question)
	}
	if responseMs != 1200 {
		t.Errorf("response_time_ms = %d, want 1200", responseMs)
	}
}

func TestStore_WhiteboardSnapshotLatestVersionWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v1 := map[string]types.WhiteboardElement{"a": {ID: "a", Version: 1}}
	v3 := map[string]types.WhiteboardElement{"a": {ID: "a", Version: 1}, "b": {ID: "b", Version: 3}}

	store.QueueWhiteboardSnapshot("lesson-wb", v1, 1)
	store.QueueWhiteboardSnapshot("lesson-wb", v3, 3)
	// A stale snapshot arriving late must not clobber a newer one.
	store.QueueWhiteboardSnapshot("lesson-wb", v1, 1)

	waitUntil(t, func() bool {
		_, version, err := store.GetWhiteboardSnapshot(ctx, "lesson-wb")
		return err == nil && version == 3
	})

	elements, version, err := store.GetWhiteboardSnapshot(ctx, "lesson-wb")
	if err != nil {
		t.Fatalf("GetWhiteboardSnapshot: %v", err)
	}
	if version != 3 || len(elements) != 2 {
		t.Errorf("snapshot = version %d with %d elements, want version 3 with 2", version, len(elements))
	}

	// Unknown sessions get an empty board, not an error.
	elements, version, err = store.GetWhiteboardSnapshot(ctx, "no-such-session")
	if err != nil || version != 0 || len(elements) != 0 {
		t.Errorf("unknown snapshot = (%v, %d, %v), want empty board", elements, version, err)
	}
}

func TestStore_CloseDrainsQueuedWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drain.db")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	store.QueueChatMessage(&types.ChatMessage{
		ID: "last-words", SessionID: "lesson-drain", UserID: "alice",
		DisplayName: "alice", Content: "bye", Kind: types.ChatKindUser, Timestamp: time.Now(),
	})
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	history, err := reopened.GetChatHistory(context.Background(), "lesson-drain")
	if err != nil {
		t.Fatalf("GetChatHistory: %v", err)
	}
	if len(history) != 1 || history[0].Content != "bye" {
		t.Errorf("history = %+v, want the queued message to have survived Close", history)
	}
}

func TestStore_WriteAfterCloseRejected(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "closed.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	err = store.SaveSession(context.Background(), &types.Session{ID: "x", OwnerID: "a", CreatedAt: time.Now()})
	if err != ErrStoreClosed {
		t.Errorf("SaveSession after Close = %v, want ErrStoreClosed", err)
	}
}

func TestStore_HealthCheck(t *testing.T) {
	store := newTestStore(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}
