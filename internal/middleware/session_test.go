package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/chatpadel/internal/model"
)

// --- モック定義 ---

type mockUserFinder struct {
	currentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
	gotSessionID  string
}

func (m *mockUserFinder) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	m.gotSessionID = sessionID
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, sessionID)
	}
	return nil, model.NewUnauthorizedError()
}

func finderFor(users map[string]*model.User) *mockUserFinder {
	return &mockUserFinder{
		currentUserFn: func(_ context.Context, sessionID string) (*model.User, error) {
			if u, ok := users[sessionID]; ok {
				return u, nil
			}
			return nil, model.NewUnauthorizedError()
		},
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// --- テスト ---

func TestSessionMiddleware_CookieSession_InjectsUser(t *testing.T) {
	finder := finderFor(map[string]*model.User{"valid": {ID: 7, Email: "ana@example.com"}})

	var captured *model.User
	handler := NewSessionMiddleware(finder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if captured == nil || captured.ID != 7 {
		t.Errorf("user = %+v, want id 7", captured)
	}
}

func TestSessionMiddleware_BearerToken(t *testing.T) {
	finder := finderFor(map[string]*model.User{"tok": {ID: 3}})

	handler := NewSessionMiddleware(finder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req.Header.Set("Authorization", "bearer tok")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if finder.gotSessionID != "tok" {
		t.Errorf("session id = %q, want %q", finder.gotSessionID, "tok")
	}
}

func TestSessionMiddleware_MissingSession_Returns401(t *testing.T) {
	handler := NewSessionMiddleware(&mockUserFinder{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if body := decodeError(t, w); body.Message != "Unauthorized" {
		t.Errorf("message = %q, want %q", body.Message, "Unauthorized")
	}
}

func TestSessionMiddleware_StoreError_Returns401(t *testing.T) {
	finder := &mockUserFinder{
		currentUserFn: func(_ context.Context, _ string) (*model.User, error) {
			return nil, errors.New("db down")
		},
	}
	handler := NewSessionMiddleware(finder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "x"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAdminMiddleware(t *testing.T) {
	finder := finderFor(map[string]*model.User{
		"admin":  {ID: 1, IsAdmin: true},
		"player": {ID: 2},
	})
	chain := NewSessionMiddleware(finder)(NewAdminMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	tests := []struct {
		name    string
		session string
		want    int
		message string
	}{
		{"admin", "admin", http.StatusOK, ""},
		{"non admin", "player", http.StatusForbidden, "Forbidden: Admin access required"},
		{"anonymous", "", http.StatusUnauthorized, "Unauthorized"},
		{"unknown session", "forged", http.StatusUnauthorized, "Unauthorized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
			if tt.session != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.session})
			}
			w := httptest.NewRecorder()
			chain.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.message != "" {
				if body := decodeError(t, w); body.Message != tt.message {
					t.Errorf("message = %q, want %q", body.Message, tt.message)
				}
			}
		})
	}
}

func TestAdminMiddleware_WithoutSessionMiddleware_Returns401(t *testing.T) {
	handler := NewAdminMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestSessionIDFromRequest_PrefersCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "from-cookie"})
	req.Header.Set("Authorization", "Bearer from-header")

	if got := SessionIDFromRequest(req); got != "from-cookie" {
		t.Errorf("SessionIDFromRequest = %q, want %q", got, "from-cookie")
	}
}
