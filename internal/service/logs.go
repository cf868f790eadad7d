// logs.go — сервис журналов разработки (таблица Logs).
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/The-UnknownHacker/groundplane/internal/airtable"
	"github.com/The-UnknownHacker/groundplane/internal/cache"
	"github.com/The-UnknownHacker/groundplane/internal/domain/model"
)

// Предупреждения, возвращаемые пользователю вместе с результатом.
const (
	WarnMediaFailed      = "Не удалось загрузить медиафайл, лог сохранён без него"
	WarnMediaUnsupported = "Недопустимый тип медиафайла, лог сохранён без него"
)

// LogInput — данные нового лога.
type LogInput struct {
	ProjectName string
	ProjectTag  string
	Description string
	WhatIDid    string
	CouldBetter string
	CanImprove  string
	NextSteps   string
	TimeSpent   int
}

// MediaUpload — прикреплённый файл.
type MediaUpload struct {
	Filename string
	Content  io.Reader
}

// CreateLogResult — результат создания лога.
type CreateLogResult struct {
	Log      *model.Log
	Warnings []string
}

// LogService — CRUD журналов с проверкой владельца и сессионным кэшем.
type LogService struct {
	recordAccess
	media *MediaService
}

// NewLogService создаёт сервис журналов. cacheStore и media могут быть nil.
func NewLogService(store RecordStore, cacheStore cache.Store, media *MediaService, logger *slog.Logger) *LogService {
	return &LogService{
		recordAccess: recordAccess{
			store:  store,
			cache:  cacheStore,
			now:    time.Now,
			logger: logger.With(slog.String("service", "logs")),
		},
		media: media,
	}
}

// List возвращает логи пользователя, новые первыми.
func (s *LogService) List(ctx context.Context, actor Actor) ([]*model.Log, error) {
	records, err := s.listCached(ctx, actor, airtable.KindLogs, airtable.ListOptions{
		Formula: ownedBy(actor.UserID),
		Sort:    byNewest,
	})
	if err != nil {
		return nil, err
	}
	return model.LogsFromRecords(records), nil
}

// Get возвращает лог пользователя.
func (s *LogService) Get(ctx context.Context, actor Actor, id string) (*model.Log, error) {
	rec, err := s.getOwned(ctx, actor, airtable.KindLogs, id)
	if err != nil {
		return nil, err
	}
	return model.LogFromRecord(rec), nil
}

// Create создаёт лог. Неудача загрузки медиафайла не прерывает создание:
// лог сохраняется без Media URL, в результат добавляется предупреждение.
func (s *LogService) Create(ctx context.Context, actor Actor, in LogInput, media *MediaUpload) (*CreateLogResult, error) {
	if err := validateLogInput(in); err != nil {
		return nil, err
	}

	result := &CreateLogResult{Warnings: []string{}}

	mediaURL := ""
	if media != nil && media.Filename != "" {
		mediaURL = s.uploadMedia(ctx, media, result)
	}

	l := &model.Log{
		UserID:      actor.UserID,
		UserName:    actor.UserName,
		ProjectName: strings.TrimSpace(in.ProjectName),
		ProjectTag:  strings.TrimSpace(in.ProjectTag),
		Description: in.Description,
		WhatIDid:    in.WhatIDid,
		CouldBetter: in.CouldBetter,
		CanImprove:  in.CanImprove,
		NextSteps:   in.NextSteps,
		TimeSpent:   in.TimeSpent,
		MediaURL:    mediaURL,
		CreatedAt:   s.now(),
	}

	rec, err := s.store.Create(ctx, airtable.KindLogs, l.Fields())
	if err != nil {
		return nil, storeError("создание лога", err)
	}
	s.invalidate(ctx, actor, airtable.KindLogs)

	result.Log = model.LogFromRecord(rec)
	s.logger.Info("Лог создан",
		slog.String("id", rec.ID),
		slog.String("user_id", actor.UserID),
		slog.String("project", l.ProjectName),
		slog.Bool("media", mediaURL != ""),
	)
	return result, nil
}

// uploadMedia загружает медиафайл; ошибки превращаются в предупреждения.
func (s *LogService) uploadMedia(ctx context.Context, media *MediaUpload, result *CreateLogResult) string {
	if s.media == nil {
		result.Warnings = append(result.Warnings, WarnMediaFailed)
		return ""
	}

	url, err := s.media.Upload(ctx, media.Filename, media.Content)
	if err == nil {
		return url
	}

	s.logger.Warn("Медиафайл не загружен, лог создаётся без него",
		slog.String("filename", media.Filename),
		slog.String("error", err.Error()),
	)
	if errors.Is(err, ErrValidation) {
		result.Warnings = append(result.Warnings, WarnMediaUnsupported)
	} else {
		result.Warnings = append(result.Warnings, WarnMediaFailed)
	}
	return ""
}

// Update частично обновляет лог пользователя.
func (s *LogService) Update(ctx context.Context, actor Actor, id string, patch *model.LogPatch) (*model.Log, error) {
	if patch.Empty() {
		return nil, validationError("нет полей для обновления")
	}
	if patch.TimeSpent != nil && *patch.TimeSpent < 0 {
		return nil, validationError("time_spent не может быть отрицательным")
	}
	if patch.ProjectName != nil && strings.TrimSpace(*patch.ProjectName) == "" {
		return nil, validationError("project_name не может быть пустым")
	}

	if _, err := s.getOwned(ctx, actor, airtable.KindLogs, id); err != nil {
		return nil, err
	}

	rec, err := s.store.Update(ctx, airtable.KindLogs, id, patch.Fields())
	if err != nil {
		return nil, storeError("обновление лога", err)
	}
	s.invalidate(ctx, actor, airtable.KindLogs)

	s.logger.Info("Лог обновлён", slog.String("id", id), slog.String("user_id", actor.UserID))
	return model.LogFromRecord(rec), nil
}

// Delete удаляет лог пользователя.
func (s *LogService) Delete(ctx context.Context, actor Actor, id string) error {
	if _, err := s.getOwned(ctx, actor, airtable.KindLogs, id); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, airtable.KindLogs, id); err != nil {
		return storeError("удаление лога", err)
	}
	s.invalidate(ctx, actor, airtable.KindLogs)

	s.logger.Info("Лог удалён", slog.String("id", id), slog.String("user_id", actor.UserID))
	return nil
}

func validateLogInput(in LogInput) error {
	if strings.TrimSpace(in.ProjectName) == "" {
		return validationError("project_name обязателен")
	}
	if in.TimeSpent < 0 {
		return validationError("time_spent не может быть отрицательным")
	}
	return nil
}
