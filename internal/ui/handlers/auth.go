// Пакет handlers — вход через Slack, выход и информация о текущем пользователе.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	apierrors "github.com/The-UnknownHacker/groundplane/internal/api/errors"
	"github.com/The-UnknownHacker/groundplane/internal/domain/model"
	"github.com/The-UnknownHacker/groundplane/internal/ui/auth"
	"github.com/The-UnknownHacker/groundplane/internal/ui/middleware"
)

// Имя cookie с state на время auth flow.
const stateCookieName = "groundplane_auth_state"

// stateCookieMaxAge — 5 минут на прохождение авторизации в Slack.
const stateCookieMaxAge = 5 * 60

// Коды неудачного входа в параметре error страницы /login.
// Ошибки от Slack (например, access_denied) передаются как есть.
const (
	loginErrMissingCode   = "missing_code"
	loginErrStateExpired  = "state_expired"
	loginErrStateMismatch = "state_mismatch"
	loginErrExchange      = "exchange_failed"
	loginErrSession       = "session_failed"
)

var loginErrorMessages = map[string]string{
	"access_denied":       "Вход отменён в Slack",
	loginErrMissingCode:   "Slack не вернул code или state",
	loginErrStateExpired:  "Сессия авторизации истекла",
	loginErrStateMismatch: "State mismatch",
	loginErrExchange:      "Не удалось войти через Slack",
	loginErrSession:       "Ошибка создания сессии",
}

// IdentityProvider — OAuth-провайдер (auth.SlackClient).
type IdentityProvider interface {
	AuthorizeURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.Identity, error)
}

// UserRegistrar — регистрация пользователя при входе (service.UserService).
type UserRegistrar interface {
	EnsureUser(ctx context.Context, userID, userName string) (*model.User, error)
}

// SessionPurger удаляет данные сессии при выходе (cache.Store).
type SessionPurger interface {
	Purge(ctx context.Context, sessionID string) error
}

// AuthHandler — обработчики входа и выхода.
type AuthHandler struct {
	provider IdentityProvider
	sessions *auth.SessionManager
	users    UserRegistrar
	purger   SessionPurger
	logger   *slog.Logger
}

// NewAuthHandler создаёт AuthHandler. purger может быть nil.
func NewAuthHandler(
	provider IdentityProvider,
	sessions *auth.SessionManager,
	users UserRegistrar,
	purger SessionPurger,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		provider: provider,
		sessions: sessions,
		users:    users,
		purger:   purger,
		logger:   logger.With(slog.String("component", "ui_auth")),
	}
}

// HandleLogin — GET /login
// Сохраняет state в short-lived cookie и перенаправляет на Slack authorize.
// С параметром error (неудачный callback) отвечает 401 с описанием ошибки
// и не начинает новую авторизацию.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if code := r.URL.Query().Get("error"); code != "" {
		msg, ok := loginErrorMessages[code]
		if !ok {
			msg = "Ошибка авторизации: " + code
		}
		apierrors.Unauthorized(w, msg+". Повторите вход: "+middleware.LoginPath)
		return
	}

	state, err := auth.GenerateState()
	if err != nil {
		h.logger.Error("Ошибка генерации state", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
		return
	}

	h.setStateCookie(w, state, stateCookieMaxAge)
	http.Redirect(w, r, h.provider.AuthorizeURL(state), http.StatusFound)
}

// HandleCallback — GET /auth/callback
// Проверяет state, обменивает code на токен, регистрирует пользователя,
// создаёт сессию и перенаправляет на /.
// При неудаче перенаправляет на /login?error=<код>.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		h.logger.Warn("Slack вернул ошибку авторизации", slog.String("error", errCode))
		redirectLoginError(w, r, errCode)
		return
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		redirectLoginError(w, r, loginErrMissingCode)
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil {
		h.logger.Warn("State cookie отсутствует", slog.String("error", err.Error()))
		redirectLoginError(w, r, loginErrStateExpired)
		return
	}
	// state одноразовый
	h.setStateCookie(w, "", -1)
	if stateCookie.Value != state {
		h.logger.Warn("State mismatch (возможная CSRF атака)")
		redirectLoginError(w, r, loginErrStateMismatch)
		return
	}

	identity, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("Ошибка обмена code на токен", slog.String("error", err.Error()))
		redirectLoginError(w, r, loginErrExchange)
		return
	}

	// Запись в Users не обязательна для входа: недоступность Airtable
	// не должна блокировать сессию
	if _, err := h.users.EnsureUser(r.Context(), identity.UserID, identity.UserName); err != nil {
		h.logger.Warn("Не удалось зарегистрировать пользователя",
			slog.String("user_id", identity.UserID),
			slog.String("error", err.Error()),
		)
	}

	session := auth.NewSessionData(identity.UserID, identity.UserName, identity.AccessToken)
	if err := h.sessions.SetSessionCookie(w, session); err != nil {
		h.logger.Error("Ошибка установки session cookie", slog.String("error", err.Error()))
		redirectLoginError(w, r, loginErrSession)
		return
	}

	h.logger.Info("Пользователь вошёл",
		slog.String("user_id", identity.UserID),
		slog.String("user_name", identity.UserName),
	)
	http.Redirect(w, r, "/", http.StatusFound)
}

func redirectLoginError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, middleware.LoginPath+"?error="+url.QueryEscape(code), http.StatusFound)
}

// HandleLogout — GET|POST /logout
// Удаляет снимки кэша сессии и session cookie.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.sessions.GetSessionFromRequest(r)
	if session != nil && h.purger != nil {
		if err := h.purger.Purge(r.Context(), session.SessionID); err != nil {
			h.logger.Warn("Ошибка очистки кэша сессии", slog.String("error", err.Error()))
		}
	}

	h.sessions.ClearSessionCookie(w)
	if session != nil {
		h.logger.Info("Пользователь вышел", slog.String("user_id", session.UserID))
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// meResponse — ответ GET /.
type meResponse struct {
	UserID       string `json:"user_id"`
	UserName     string `json:"user_name"`
	CacheEnabled bool   `json:"cache_enabled"`
}

// HandleIndex — GET / (за SessionAuth): текущий пользователь.
func (h *AuthHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		http.Redirect(w, r, middleware.LoginPath, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		UserID:       session.UserID,
		UserName:     session.UserName,
		CacheEnabled: session.CacheEnabled,
	})
}

func (h *AuthHandler) setStateCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.sessions.Secure(),
		SameSite: http.SameSiteLaxMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
