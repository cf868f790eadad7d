// Пакет handlers — HTTP-обработчики JSON API groundplane.
// handler.go — общие функции: ответы, перевод ошибок сервисов, текущий пользователь.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/The-UnknownHacker/groundplane/internal/api/errors"
	"github.com/The-UnknownHacker/groundplane/internal/service"
	uimw "github.com/The-UnknownHacker/groundplane/internal/ui/middleware"
)

// listResponse — ответ списка. Ошибка хранилища при чтении списка
// не прерывает запрос: возвращается пустой список и предупреждение.
type listResponse[T any] struct {
	Items    []T      `json:"items"`
	Warnings []string `json:"warnings"`
}

func newListResponse[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Warnings: []string{}}
}

// writeList пишет список; ошибка хранилища — пустой список с предупреждением.
func writeList[T any](w http.ResponseWriter, logger *slog.Logger, what string, items []T, err error) {
	resp := newListResponse(items)
	if err != nil {
		logger.Warn("Список "+what+" недоступен", slog.String("error", err.Error()))
		resp.Warnings = append(resp.Warnings, warnListUnavailable)
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON разбирает тело запроса; неизвестные поля — ошибка.
func decodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

// actorFrom строит service.Actor из сессии запроса.
func actorFrom(r *http.Request) (service.Actor, bool) {
	s := uimw.SessionFromContext(r.Context())
	if s == nil {
		return service.Actor{}, false
	}
	return service.Actor{
		UserID:       s.UserID,
		UserName:     s.UserName,
		SessionID:    s.SessionID,
		CacheEnabled: s.CacheEnabled,
	}, true
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Запись не найдена")
	case errors.Is(err, service.ErrUnauthorized):
		// Сессия есть, но запись чужая
		apierrors.WriteError(w, http.StatusForbidden, apierrors.CodeUnauthorized, "Нет доступа к записи")
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, "Требуются права администратора")
	case errors.Is(err, service.ErrUpstream):
		logger.Error("Внешний сервис недоступен", slog.String("error", err.Error()))
		apierrors.UpstreamUnavailable(w, "Хранилище временно недоступно")
	default:
		logger.Error("Внутренняя ошибка", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// requireActor возвращает actor или пишет 401.
func requireActor(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	actor, ok := actorFrom(r)
	if !ok {
		apierrors.Unauthorized(w, "Требуется вход через Slack")
	}
	return actor, ok
}
