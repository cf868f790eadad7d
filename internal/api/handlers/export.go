// export.go — выгрузка логов пользователя: /api/export/logs.csv и /api/export/logs.json.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/The-UnknownHacker/groundplane/internal/domain/model"
	"github.com/The-UnknownHacker/groundplane/internal/service"
)

// LogLister — чтение логов пользователя.
type LogLister interface {
	List(ctx context.Context, actor service.Actor) ([]*model.Log, error)
}

// ExportHandler — выгрузка логов.
type ExportHandler struct {
	logs   LogLister
	logger *slog.Logger
}

// NewExportHandler создаёт обработчик выгрузки.
func NewExportHandler(logs LogLister, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{
		logs:   logs,
		logger: logger.With(slog.String("component", "export_handler")),
	}
}

// fetch читает логи для выгрузки. Кэш не используется: выгрузка
// всегда отражает текущее состояние хранилища.
func (h *ExportHandler) fetch(w http.ResponseWriter, r *http.Request) ([]*model.Log, bool) {
	actor, ok := requireActor(w, r)
	if !ok {
		return nil, false
	}
	actor.CacheEnabled = false

	logs, err := h.logs.List(r.Context(), actor)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return nil, false
	}
	return logs, true
}

// CSV — GET /api/export/logs.csv
func (h *ExportHandler) CSV(w http.ResponseWriter, r *http.Request) {
	logs, ok := h.fetch(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="logs.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := service.WriteLogsCSV(w, logs); err != nil {
		h.logger.Error("Ошибка записи CSV", slog.String("error", err.Error()))
	}
}

// JSON — GET /api/export/logs.json
func (h *ExportHandler) JSON(w http.ResponseWriter, r *http.Request) {
	logs, ok := h.fetch(w, r)
	if !ok {
		return
	}
	if logs == nil {
		logs = []*model.Log{}
	}

	w.Header().Set("Content-Disposition", `attachment; filename="logs.json"`)
	writeJSON(w, http.StatusOK, logs)
}
