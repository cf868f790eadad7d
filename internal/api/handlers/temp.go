// temp.go — GET /temp/{id}: отдача staged-файла. CDN забирает файл
// по этому адресу при загрузке через собственный хостинг.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/The-UnknownHacker/groundplane/internal/api/errors"
	"github.com/The-UnknownHacker/groundplane/internal/staging"
)

// Resolver находит путь staged-файла (staging.Store).
type Resolver interface {
	Resolve(id string) (string, error)
}

// TempHandler — отдача временных файлов.
type TempHandler struct {
	store  Resolver
	logger *slog.Logger
}

// NewTempHandler создаёт обработчик временных файлов.
func NewTempHandler(store Resolver, logger *slog.Logger) *TempHandler {
	return &TempHandler{
		store:  store,
		logger: logger.With(slog.String("component", "temp_handler")),
	}
}

// Serve — GET /temp/{id}
func (h *TempHandler) Serve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	path, err := h.store.Resolve(id)
	if err != nil {
		if !errors.Is(err, staging.ErrNotFound) {
			h.logger.Error("Ошибка поиска временного файла", slog.String("id", id), slog.String("error", err.Error()))
		}
		apierrors.NotFound(w, "Файл не найден")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		// Удалён sweeper'ом между Resolve и Open
		if errors.Is(err, os.ErrNotExist) {
			apierrors.NotFound(w, "Файл не найден")
			return
		}
		h.logger.Error("Ошибка открытия временного файла", slog.String("id", id), slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка чтения файла")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		apierrors.InternalError(w, "Ошибка чтения файла")
		return
	}

	h.logger.Debug("Отдача временного файла", slog.String("id", id), slog.Int64("size", info.Size()))
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}
