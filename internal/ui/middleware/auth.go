// Пакет middleware — проверка сессии пользователя и роли администратора.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/The-UnknownHacker/groundplane/internal/api/errors"
	"github.com/The-UnknownHacker/groundplane/internal/ui/auth"
)

type contextKey string

// ContextKeySession — данные сессии в контексте запроса.
const ContextKeySession contextKey = "session"

// LoginPath — страница входа, на которую перенаправляются браузерные запросы без сессии.
const LoginPath = "/login"

// SessionAuth — middleware проверки сессии.
type SessionAuth struct {
	sessions *auth.SessionManager
	logger   *slog.Logger
}

// NewSessionAuth создаёт middleware проверки сессии.
func NewSessionAuth(sessions *auth.SessionManager, logger *slog.Logger) *SessionAuth {
	return &SessionAuth{
		sessions: sessions,
		logger:   logger.With(slog.String("component", "session_auth")),
	}
}

// Middleware пропускает запросы с действующей сессией.
// Без сессии: /api/* получают 401 JSON, остальные — redirect на /login.
func (sa *SessionAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := sa.sessions.GetSessionFromRequest(r)
			if err != nil {
				sa.logger.Debug("Ошибка чтения сессии",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				// Повреждённый cookie
				sa.sessions.ClearSessionCookie(w)
				session = nil
			}

			if session != nil && session.IsExpired() {
				sa.logger.Info("Сессия истекла", slog.String("user_id", session.UserID))
				sa.sessions.ClearSessionCookie(w)
				session = nil
			}

			if session == nil {
				reject(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySession, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		apierrors.Unauthorized(w, "Требуется вход через Slack")
		return
	}
	http.Redirect(w, r, LoginPath, http.StatusFound)
}

// SessionFromContext извлекает SessionData из контекста запроса.
// Возвращает nil, если запрос не прошёл через SessionAuth.
func SessionFromContext(ctx context.Context) *auth.SessionData {
	session, ok := ctx.Value(ContextKeySession).(*auth.SessionData)
	if !ok {
		return nil
	}
	return session
}

// WithSession кладёт сессию в контекст (для тестов обработчиков).
func WithSession(ctx context.Context, session *auth.SessionData) context.Context {
	return context.WithValue(ctx, ContextKeySession, session)
}

// AdminChecker проверяет роль администратора (service.UserService).
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// RequireAdmin пропускает только администраторов.
// Роль читается из Users при каждом запросе: снятие флага действует сразу.
func RequireAdmin(checker AdminChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "require_admin"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := SessionFromContext(r.Context())
			if session == nil {
				apierrors.Unauthorized(w, "Требуется вход через Slack")
				return
			}

			isAdmin, err := checker.IsAdmin(r.Context(), session.UserID)
			if err != nil {
				logger.Error("Ошибка проверки роли администратора",
					slog.String("user_id", session.UserID),
					slog.String("error", err.Error()),
				)
				apierrors.UpstreamUnavailable(w, "Не удалось проверить права")
				return
			}
			if !isAdmin {
				logger.Warn("Доступ к админке без прав", slog.String("user_id", session.UserID))
				apierrors.Forbidden(w, "Требуются права администратора")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
