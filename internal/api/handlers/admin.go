// admin.go — обработчики /api/admin/* (за RequireAdmin).
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/The-UnknownHacker/groundplane/internal/domain/model"
	"github.com/The-UnknownHacker/groundplane/internal/service"
)

// AdminService — админские выборки (service.AdminService).
type AdminService interface {
	Users(ctx context.Context) ([]*model.User, error)
	Projects(ctx context.Context) ([]*model.Project, error)
	RecentLogs(ctx context.Context) ([]*model.Log, error)
	ProjectLogCount(ctx context.Context, projectID string) (*model.Project, int, error)
	Overview(ctx context.Context) (*service.Overview, error)
}

// AdminHandler — обработчики админки.
type AdminHandler struct {
	admin  AdminService
	logger *slog.Logger
}

// NewAdminHandler создаёт обработчик админки.
func NewAdminHandler(admin AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		logger: logger.With(slog.String("component", "admin_handler")),
	}
}

// projectLogCountResponse — ответ GET /api/admin/projects/{id}/log-count.
type projectLogCountResponse struct {
	Project  *model.Project `json:"project"`
	LogCount int            `json:"log_count"`
}

// Users — GET /api/admin/users
func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.admin.Users(r.Context())
	writeList(w, h.logger, "пользователей", users, err)
}

// Projects — GET /api/admin/projects
func (h *AdminHandler) Projects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.admin.Projects(r.Context())
	writeList(w, h.logger, "проектов", projects, err)
}

// RecentLogs — GET /api/admin/logs/recent
func (h *AdminHandler) RecentLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.admin.RecentLogs(r.Context())
	writeList(w, h.logger, "последних логов", logs, err)
}

// ProjectLogCount — GET /api/admin/projects/{id}/log-count
func (h *AdminHandler) ProjectLogCount(w http.ResponseWriter, r *http.Request) {
	project, count, err := h.admin.ProjectLogCount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, projectLogCountResponse{Project: project, LogCount: count})
}

// Overview — GET /api/admin/overview
func (h *AdminHandler) Overview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.admin.Overview(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if ov.RecentLogs == nil {
		ov.RecentLogs = []*model.Log{}
	}
	writeJSON(w, http.StatusOK, ov)
}
