// settings.go — настройки пользователя. Хранятся только в сессии:
// отдельной таблицы настроек нет.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	apierrors "github.com/The-UnknownHacker/groundplane/internal/api/errors"
	"github.com/The-UnknownHacker/groundplane/internal/ui/auth"
	uimw "github.com/The-UnknownHacker/groundplane/internal/ui/middleware"
)

// SessionPurger удаляет снимки кэша сессии (cache.Store).
type SessionPurger interface {
	Purge(ctx context.Context, sessionID string) error
}

// SettingsHandler — GET/PUT /api/settings.
type SettingsHandler struct {
	sessions *auth.SessionManager
	purger   SessionPurger
	logger   *slog.Logger
}

// NewSettingsHandler создаёт обработчик настроек. purger может быть nil.
func NewSettingsHandler(sessions *auth.SessionManager, purger SessionPurger, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{
		sessions: sessions,
		purger:   purger,
		logger:   logger.With(slog.String("component", "settings_handler")),
	}
}

// settingsBody — тело запроса и ответа.
type settingsBody struct {
	CacheEnabled *bool `json:"cache_enabled"`
}

// Get — GET /api/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	session := uimw.SessionFromContext(r.Context())
	if session == nil {
		apierrors.Unauthorized(w, "Требуется вход через Slack")
		return
	}
	writeJSON(w, http.StatusOK, settingsBody{CacheEnabled: &session.CacheEnabled})
}

// Put — PUT /api/settings
// Выключение кэша сразу удаляет снимки сессии.
func (h *SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	session := uimw.SessionFromContext(r.Context())
	if session == nil {
		apierrors.Unauthorized(w, "Требуется вход через Slack")
		return
	}

	var body settingsBody
	if err := decodeJSON(r, &body); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}
	if body.CacheEnabled == nil {
		apierrors.ValidationError(w, "cache_enabled обязателен")
		return
	}

	updated := *session
	updated.CacheEnabled = *body.CacheEnabled

	if !updated.CacheEnabled && h.purger != nil {
		if err := h.purger.Purge(r.Context(), session.SessionID); err != nil {
			h.logger.Warn("Ошибка очистки кэша сессии", slog.String("error", err.Error()))
		}
	}

	if err := h.sessions.SetSessionCookie(w, &updated); err != nil {
		h.logger.Error("Ошибка обновления session cookie", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось сохранить настройки")
		return
	}

	h.logger.Info("Настройки обновлены",
		slog.String("user_id", session.UserID),
		slog.Bool("cache_enabled", updated.CacheEnabled),
	)
	writeJSON(w, http.StatusOK, settingsBody{CacheEnabled: &updated.CacheEnabled})
}
