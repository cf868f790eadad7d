// projects.go — обработчики /api/projects.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/The-UnknownHacker/groundplane/internal/api/errors"
	"github.com/The-UnknownHacker/groundplane/internal/domain/model"
	"github.com/The-UnknownHacker/groundplane/internal/service"
)

// ProjectService — операции с проектами (service.ProjectService).
type ProjectService interface {
	List(ctx context.Context, actor service.Actor) ([]*model.Project, error)
	Get(ctx context.Context, actor service.Actor, id string) (*model.Project, error)
	Create(ctx context.Context, actor service.Actor, in service.ProjectInput) (*model.Project, error)
	Update(ctx context.Context, actor service.Actor, id string, patch *model.ProjectPatch) (*model.Project, error)
	Delete(ctx context.Context, actor service.Actor, id string) error
	Logs(ctx context.Context, actor service.Actor, id string) (*model.Project, []*model.Log, error)
}

// ProjectsHandler — обработчики проектов.
type ProjectsHandler struct {
	projects ProjectService
	logger   *slog.Logger
}

// NewProjectsHandler создаёт обработчик проектов.
func NewProjectsHandler(projects ProjectService, logger *slog.Logger) *ProjectsHandler {
	return &ProjectsHandler{
		projects: projects,
		logger:   logger.With(slog.String("component", "projects_handler")),
	}
}

// projectLogsResponse — ответ GET /api/projects/{id}/logs.
type projectLogsResponse struct {
	Project *model.Project `json:"project"`
	Items   []*model.Log   `json:"items"`
}

// List — GET /api/projects
func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	projects, err := h.projects.List(r.Context(), actor)
	writeList(w, h.logger, "проектов", projects, err)
}

// Get — GET /api/projects/{id}
func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	p, err := h.projects.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Create — POST /api/projects, JSON {"name","tag","description"}.
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var in service.ProjectInput
	if err := decodeJSON(r, &in); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	p, err := h.projects.Create(r.Context(), actor, in)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Update — PATCH /api/projects/{id}
func (h *ProjectsHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var patch model.ProjectPatch
	if err := decodeJSON(r, &patch); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	p, err := h.projects.Update(r.Context(), actor, chi.URLParam(r, "id"), &patch)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Delete — DELETE /api/projects/{id}
func (h *ProjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	if err := h.projects.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Logs — GET /api/projects/{id}/logs
func (h *ProjectsHandler) Logs(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	project, logs, err := h.projects.Logs(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if logs == nil {
		logs = []*model.Log{}
	}
	writeJSON(w, http.StatusOK, projectLogsResponse{Project: project, Items: logs})
}
