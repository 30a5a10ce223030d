package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/chatpadel/internal/model"
	"github.com/hitoshi/chatpadel/internal/notify"
	"github.com/hitoshi/chatpadel/internal/repository"
)

// --- モック定義 ---

type mockUserDirectory struct {
	verifyFn      func(ctx context.Context, email, password string) (*model.User, error)
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	findByIDFn    func(ctx context.Context, id int64) (*model.User, error)
}

func (m *mockUserDirectory) VerifyPassword(ctx context.Context, email, password string) (*model.User, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, email, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockUserDirectory) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserDirectory) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

type mockSessionRepo struct {
	createFn     func(ctx context.Context, session *model.Session) error
	findByIDFn   func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type mockNotifier struct {
	jobs []notify.Job
}

func (m *mockNotifier) Enqueue(job notify.Job) bool {
	m.jobs = append(m.jobs, job)
	return true
}

// --- compile-time interface checks ---
var _ UserDirectory = (*mockUserDirectory)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ notify.Enqueuer = (*mockNotifier)(nil)

func isAPIError(err error, code string) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// --- テスト ---

func TestLogin_ValidCredentials_CreatesSession(t *testing.T) {
	user := &model.User{ID: 7, Email: "ana@example.com"}
	var saved *model.Session
	svc := NewService(
		&mockUserDirectory{
			verifyFn: func(_ context.Context, email, password string) (*model.User, error) {
				if email != "ana@example.com" || password != "Secret123" {
					t.Errorf("unexpected credentials %q/%q", email, password)
				}
				return user, nil
			},
		},
		&mockSessionRepo{
			createFn: func(_ context.Context, session *model.Session) error {
				saved = session
				return nil
			},
		},
		nil,
		ServiceConfig{SessionMaxAge: 3600},
		nil,
	)

	session, got, err := svc.Login(context.Background(), "ana@example.com", "Secret123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if got.ID != 7 {
		t.Errorf("user ID = %d, want 7", got.ID)
	}
	if saved == nil || saved.ID != session.ID {
		t.Fatal("session should be persisted")
	}
	if session.UserID != 7 {
		t.Errorf("session.UserID = %d, want 7", session.UserID)
	}
	if len(session.ID) != 64 {
		t.Errorf("session ID length = %d, want 64", len(session.ID))
	}
	ttl := session.ExpiresAt.Sub(session.CreatedAt)
	if ttl != time.Hour {
		t.Errorf("session TTL = %v, want 1h", ttl)
	}
}

func TestLogin_InvalidCredentials_NoSession(t *testing.T) {
	created := false
	svc := NewService(
		&mockUserDirectory{},
		&mockSessionRepo{
			createFn: func(_ context.Context, _ *model.Session) error {
				created = true
				return nil
			},
		},
		nil,
		ServiceConfig{SessionMaxAge: 3600},
		nil,
	)

	_, _, err := svc.Login(context.Background(), "ana@example.com", "wrong")
	if !isAPIError(err, model.ErrCodeInvalidCredentials) {
		t.Fatalf("expected INVALID_CREDENTIALS, got %v", err)
	}
	if created {
		t.Error("no session should be created on failed login")
	}
}

func TestLogin_SessionStoreError(t *testing.T) {
	svc := NewService(
		&mockUserDirectory{
			verifyFn: func(_ context.Context, _, _ string) (*model.User, error) {
				return &model.User{ID: 1}, nil
			},
		},
		&mockSessionRepo{
			createFn: func(_ context.Context, _ *model.Session) error {
				return errors.New("db down")
			},
		},
		nil,
		ServiceConfig{SessionMaxAge: 3600},
		nil,
	)

	_, _, err := svc.Login(context.Background(), "ana@example.com", "Secret123")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("storage failure should not be a domain error, got %v", apiErr)
	}
}

func TestLogout_DeletesSession(t *testing.T) {
	var deletedID string
	svc := NewService(&mockUserDirectory{}, &mockSessionRepo{
		deleteByIDFn: func(_ context.Context, id string) error {
			deletedID = id
			return nil
		},
	}, nil, ServiceConfig{}, nil)

	if err := svc.Logout(context.Background(), "session-1"); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if deletedID != "session-1" {
		t.Errorf("deleted ID = %q, want %q", deletedID, "session-1")
	}
}

func TestLogout_EmptySessionID_ReturnsError(t *testing.T) {
	svc := NewService(&mockUserDirectory{}, &mockSessionRepo{}, nil, ServiceConfig{}, nil)
	if err := svc.Logout(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty session ID")
	}
}

func TestCurrentUser_ValidSession_ReturnsUser(t *testing.T) {
	svc := NewService(
		&mockUserDirectory{
			findByIDFn: func(_ context.Context, id int64) (*model.User, error) {
				return &model.User{ID: id, IsAdmin: true}, nil
			},
		},
		&mockSessionRepo{
			findByIDFn: func(_ context.Context, id string) (*model.Session, error) {
				return &model.Session{ID: id, UserID: 3, ExpiresAt: time.Now().Add(time.Hour)}, nil
			},
		},
		nil,
		ServiceConfig{},
		nil,
	)

	user, err := svc.CurrentUser(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("CurrentUser failed: %v", err)
	}
	if user.ID != 3 || !user.IsAdmin {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestCurrentUser_Unauthorized(t *testing.T) {
	expired := &mockSessionRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: 3, ExpiresAt: time.Now().Add(-time.Minute)}, nil
		},
	}
	valid := &mockSessionRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: 3, ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}

	tests := []struct {
		name      string
		sessionID string
		sessions  *mockSessionRepo
	}{
		{"empty session id", "", valid},
		{"unknown session", "missing", &mockSessionRepo{}},
		{"expired session", "old", expired},
		{"deleted user", "orphan", valid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&mockUserDirectory{}, tt.sessions, nil, ServiceConfig{}, nil)
			_, err := svc.CurrentUser(context.Background(), tt.sessionID)
			if !isAPIError(err, model.ErrCodeUnauthorized) {
				t.Fatalf("expected UNAUTHORIZED, got %v", err)
			}
		})
	}
}

func TestForgotPassword_KnownEmail_EnqueuesResetLink(t *testing.T) {
	notifier := &mockNotifier{}
	svc := NewService(
		&mockUserDirectory{
			findByEmailFn: func(_ context.Context, email string) (*model.User, error) {
				return &model.User{ID: 1, Email: "ana@example.com"}, nil
			},
		},
		&mockSessionRepo{},
		notifier,
		ServiceConfig{BaseURL: "https://chatpadel.com"},
		nil,
	)

	if err := svc.ForgotPassword(context.Background(), "ANA@example.com"); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	if len(notifier.jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(notifier.jobs))
	}
	job := notifier.jobs[0]
	if job.Kind != notify.KindPasswordReset {
		t.Errorf("kind = %q, want %q", job.Kind, notify.KindPasswordReset)
	}
	if job.To.Email != "ana@example.com" {
		t.Errorf("to = %q", job.To.Email)
	}
	if !strings.HasPrefix(job.ResetLink, "https://chatpadel.com/reset-password?token=") {
		t.Errorf("unexpected reset link %q", job.ResetLink)
	}
}

func TestForgotPassword_UnknownEmail_SucceedsSilently(t *testing.T) {
	notifier := &mockNotifier{}
	svc := NewService(&mockUserDirectory{}, &mockSessionRepo{}, notifier, ServiceConfig{}, nil)

	if err := svc.ForgotPassword(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("ForgotPassword should not reveal unknown emails, got %v", err)
	}
	if len(notifier.jobs) != 0 {
		t.Errorf("jobs = %d, want 0", len(notifier.jobs))
	}
}

func TestGenerateSessionID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := generateSessionID()
		if err != nil {
			t.Fatalf("generateSessionID failed: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate session ID %q", id)
		}
		seen[id] = true
	}
}
