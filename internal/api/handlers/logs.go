// logs.go — обработчики /api/logs.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/The-UnknownHacker/groundplane/internal/api/errors"
	"github.com/The-UnknownHacker/groundplane/internal/domain/model"
	"github.com/The-UnknownHacker/groundplane/internal/service"
)

// Предупреждение при недоступности хранилища для списков.
const warnListUnavailable = "Не удалось загрузить данные из Airtable, попробуйте позже"

// multipartMemory — часть multipart-формы в памяти, остальное во временных файлах.
const multipartMemory = 32 << 20

// LogService — операции с логами (service.LogService).
type LogService interface {
	List(ctx context.Context, actor service.Actor) ([]*model.Log, error)
	Get(ctx context.Context, actor service.Actor, id string) (*model.Log, error)
	Create(ctx context.Context, actor service.Actor, in service.LogInput, media *service.MediaUpload) (*service.CreateLogResult, error)
	Update(ctx context.Context, actor service.Actor, id string, patch *model.LogPatch) (*model.Log, error)
	Delete(ctx context.Context, actor service.Actor, id string) error
}

// LogsHandler — обработчики логов.
type LogsHandler struct {
	logs          LogService
	maxUploadSize int64
	logger        *slog.Logger
}

// NewLogsHandler создаёт обработчик. maxUploadSize — лимит тела POST /api/logs.
func NewLogsHandler(logs LogService, maxUploadSize int64, logger *slog.Logger) *LogsHandler {
	return &LogsHandler{
		logs:          logs,
		maxUploadSize: maxUploadSize,
		logger:        logger.With(slog.String("component", "logs_handler")),
	}
}

// createLogResponse — ответ POST /api/logs.
type createLogResponse struct {
	Log      *model.Log `json:"log"`
	Warnings []string   `json:"warnings"`
}

// List — GET /api/logs
func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	logs, err := h.logs.List(r.Context(), actor)
	writeList(w, h.logger, "логов", logs, err)
}

// Get — GET /api/logs/{id}
func (h *LogsHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	l, err := h.logs.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// Create — POST /api/logs (multipart/form-data или urlencoded форма).
// Поля: project_name, project_tag, description, what_did, could_improve,
// can_improve, next_steps, time_spent, необязательный файл media_file.
func (h *LogsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierrors.PayloadTooLarge(w, "Размер загрузки превышает "+strconv.FormatInt(h.maxUploadSize, 10)+" байт")
			return
		}
		apierrors.ValidationError(w, "Некорректная форма: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	in, err := logInputFromForm(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	var media *service.MediaUpload
	file, header, err := r.FormFile("media_file")
	switch {
	case err == nil:
		defer file.Close()
		if header.Filename != "" {
			media = &service.MediaUpload{Filename: header.Filename, Content: file}
		}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		apierrors.ValidationError(w, "Некорректный файл: "+err.Error())
		return
	}

	result, err := h.logs.Create(r.Context(), actor, in, media)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, createLogResponse{Log: result.Log, Warnings: result.Warnings})
}

func logInputFromForm(r *http.Request) (service.LogInput, error) {
	in := service.LogInput{
		ProjectName: r.FormValue("project_name"),
		ProjectTag:  r.FormValue("project_tag"),
		Description: r.FormValue("description"),
		WhatIDid:    r.FormValue("what_did"),
		CouldBetter: r.FormValue("could_improve"),
		CanImprove:  r.FormValue("can_improve"),
		NextSteps:   r.FormValue("next_steps"),
	}

	if raw := strings.TrimSpace(r.FormValue("time_spent")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return in, errors.New("time_spent должно быть целым числом минут")
		}
		in.TimeSpent = n
	}
	return in, nil
}

// Update — PATCH /api/logs/{id}, JSON с изменяемыми полями.
func (h *LogsHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var patch model.LogPatch
	if err := decodeJSON(r, &patch); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	l, err := h.logs.Update(r.Context(), actor, chi.URLParam(r, "id"), &patch)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// Delete — DELETE /api/logs/{id}
func (h *LogsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	if err := h.logs.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
