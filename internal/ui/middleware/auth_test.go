package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/The-UnknownHacker/groundplane/internal/ui/auth"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// okHandler отвечает 200 и кладёт UserID сессии в заголовок.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if s := SessionFromContext(r.Context()); s != nil {
		w.Header().Set("X-User", s.UserID)
	}
	w.WriteHeader(http.StatusOK)
})

func sessionCookie(t *testing.T, sm *auth.SessionManager, data *auth.SessionData) *http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	if err := sm.SetSessionCookie(w, data); err != nil {
		t.Fatalf("SetSessionCookie: %v", err)
	}
	return w.Result().Cookies()[0]
}

func TestSessionAuth(t *testing.T) {
	sm, _ := auth.NewSessionManager("test-key", false)
	other, _ := auth.NewSessionManager("other-key", false)
	handler := NewSessionAuth(sm, testLogger()).Middleware()(okHandler)

	valid := sessionCookie(t, sm, auth.NewSessionData("U1", "Alice", "tok"))
	expiredData := auth.NewSessionData("U1", "Alice", "tok")
	expiredData.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	expired := sessionCookie(t, sm, expiredData)
	foreign := sessionCookie(t, other, auth.NewSessionData("U1", "Alice", "tok"))

	tests := []struct {
		name       string
		path       string
		cookie     *http.Cookie
		wantStatus int
		wantUser   string
	}{
		{"API с сессией", "/api/logs", valid, http.StatusOK, "U1"},
		{"страница с сессией", "/", valid, http.StatusOK, "U1"},
		{"API без сессии", "/api/logs", nil, http.StatusUnauthorized, ""},
		{"страница без сессии", "/", nil, http.StatusFound, ""},
		{"истёкшая сессия", "/api/projects", expired, http.StatusUnauthorized, ""},
		{"чужой ключ", "/api/projects", foreign, http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, ожидается %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("X-User"); got != tt.wantUser {
				t.Errorf("X-User = %q, ожидается %q", got, tt.wantUser)
			}
			if w.Code == http.StatusFound && w.Header().Get("Location") != LoginPath {
				t.Errorf("Location = %q", w.Header().Get("Location"))
			}
			if w.Code == http.StatusUnauthorized {
				var body struct {
					Error struct{ Code string } `json:"error"`
				}
				_ = json.NewDecoder(w.Body).Decode(&body)
				if body.Error.Code != "UNAUTHORIZED" {
					t.Errorf("code = %q, ожидается UNAUTHORIZED", body.Error.Code)
				}
			}
		})
	}
}

type stubChecker struct {
	admins map[string]bool
	err    error
}

func (s stubChecker) IsAdmin(_ context.Context, userID string) (bool, error) {
	return s.admins[userID], s.err
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name       string
		session    *auth.SessionData
		checker    stubChecker
		wantStatus int
	}{
		{"администратор", &auth.SessionData{UserID: "U1"}, stubChecker{admins: map[string]bool{"U1": true}}, http.StatusOK},
		{"обычный пользователь", &auth.SessionData{UserID: "U2"}, stubChecker{admins: map[string]bool{"U1": true}}, http.StatusForbidden},
		{"без сессии", nil, stubChecker{}, http.StatusUnauthorized},
		{"Airtable недоступен", &auth.SessionData{UserID: "U1"}, stubChecker{err: errors.New("503")}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireAdmin(tt.checker, testLogger())(okHandler)

			req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
			if tt.session != nil {
				req = req.WithContext(WithSession(req.Context(), tt.session))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, ожидается %d", w.Code, tt.wantStatus)
			}
		})
	}
}
