package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type mockSessionPurger struct {
	called  bool
	gotNow  time.Time
	deleted int64
	err     error
}

func (m *mockSessionPurger) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.called = true
	m.gotNow = now
	return m.deleted, m.err
}

type mockChatPurger struct {
	called    bool
	gotCutoff time.Time
	deleted   int64
	err       error
}

func (m *mockChatPurger) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.called = true
	m.gotCutoff = cutoff
	return m.deleted, m.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func fixedNow() time.Time {
	return time.Date(2026, 10, 17, 3, 0, 0, 0, time.UTC)
}

func TestNewCleanupJob_DefaultRetention(t *testing.T) {
	job := NewCleanupJob(&mockSessionPurger{}, &mockChatPurger{}, nil)
	if job.RetentionDays != 90 {
		t.Errorf("RetentionDays = %d, want 90", job.RetentionDays)
	}
}

func TestCleanupJob_Run_DeletesExpiredData(t *testing.T) {
	var buf bytes.Buffer
	sessions := &mockSessionPurger{deleted: 3}
	chats := &mockChatPurger{deleted: 12}
	job := NewCleanupJob(sessions, chats, newTestLogger(&buf))
	job.now = fixedNow
	job.RetentionDays = 30

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !sessions.gotNow.Equal(fixedNow()) {
		t.Errorf("DeleteExpired now = %v, want %v", sessions.gotNow, fixedNow())
	}
	wantCutoff := time.Date(2026, 9, 17, 3, 0, 0, 0, time.UTC)
	if !chats.gotCutoff.Equal(wantCutoff) {
		t.Errorf("DeleteOlderThan cutoff = %v, want %v", chats.gotCutoff, wantCutoff)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log is not JSON: %v", err)
	}
	if entry["deleted_sessions"] != float64(3) || entry["deleted_chat_messages"] != float64(12) {
		t.Errorf("log entry = %v", entry)
	}
}

func TestCleanupJob_Run_ContinuesAfterPartialFailure(t *testing.T) {
	var buf bytes.Buffer
	sessions := &mockSessionPurger{err: errors.New("connection reset")}
	chats := &mockChatPurger{}
	job := NewCleanupJob(sessions, chats, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("Run() should return error")
	}
	if !chats.called {
		t.Error("chat cleanup should run even if session cleanup fails")
	}
	if !strings.Contains(buf.String(), "期限切れセッションの削除に失敗しました") {
		t.Error("session failure should be logged")
	}
}

func TestCleanupJob_Run_BothFail(t *testing.T) {
	sessions := &mockSessionPurger{err: errors.New("a")}
	chats := &mockChatPurger{err: errors.New("b")}
	var buf bytes.Buffer
	job := NewCleanupJob(sessions, chats, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "a") || !strings.Contains(err.Error(), "b") {
		t.Errorf("Run() error = %v, want both causes", err)
	}
}

func TestCleanupJob_StartStopsOnCancel(t *testing.T) {
	sessions := &mockSessionPurger{}
	var buf bytes.Buffer
	job := NewCleanupJob(sessions, &mockChatPurger{}, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if !sessions.called {
		t.Error("Run should execute immediately on start")
	}
}
