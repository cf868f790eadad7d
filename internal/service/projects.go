// projects.go — сервис проектов (таблица Projects).
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/The-UnknownHacker/groundplane/internal/airtable"
	"github.com/The-UnknownHacker/groundplane/internal/cache"
	"github.com/The-UnknownHacker/groundplane/internal/domain/model"
)

// ProjectInput — данные нового проекта.
type ProjectInput struct {
	Name        string `json:"name"`
	Tag         string `json:"tag"`
	Description string `json:"description"`
}

// ProjectService — CRUD проектов с проверкой владельца и сессионным кэшем.
type ProjectService struct {
	recordAccess
}

// NewProjectService создаёт сервис проектов. cacheStore может быть nil.
func NewProjectService(store RecordStore, cacheStore cache.Store, logger *slog.Logger) *ProjectService {
	return &ProjectService{
		recordAccess: recordAccess{
			store:  store,
			cache:  cacheStore,
			now:    time.Now,
			logger: logger.With(slog.String("service", "projects")),
		},
	}
}

// List возвращает проекты пользователя, новые первыми.
func (s *ProjectService) List(ctx context.Context, actor Actor) ([]*model.Project, error) {
	records, err := s.listCached(ctx, actor, airtable.KindProjects, airtable.ListOptions{
		Formula: ownedBy(actor.UserID),
		Sort:    byNewest,
	})
	if err != nil {
		return nil, err
	}
	return model.ProjectsFromRecords(records), nil
}

// Get возвращает проект пользователя.
func (s *ProjectService) Get(ctx context.Context, actor Actor, id string) (*model.Project, error) {
	rec, err := s.getOwned(ctx, actor, airtable.KindProjects, id)
	if err != nil {
		return nil, err
	}
	return model.ProjectFromRecord(rec), nil
}

// Create создаёт проект.
func (s *ProjectService) Create(ctx context.Context, actor Actor, in ProjectInput) (*model.Project, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, validationError("name обязателен")
	}

	p := &model.Project{
		Name:        name,
		Tag:         strings.TrimSpace(in.Tag),
		Description: in.Description,
		UserID:      actor.UserID,
		UserName:    actor.UserName,
		CreatedAt:   s.now(),
	}

	rec, err := s.store.Create(ctx, airtable.KindProjects, p.Fields())
	if err != nil {
		return nil, storeError("создание проекта", err)
	}
	s.invalidate(ctx, actor, airtable.KindProjects)

	s.logger.Info("Проект создан",
		slog.String("id", rec.ID),
		slog.String("user_id", actor.UserID),
		slog.String("name", name),
	)
	return model.ProjectFromRecord(rec), nil
}

// Update частично обновляет проект пользователя.
// Переименование не меняет старые логи: они хранят имя проекта строкой.
func (s *ProjectService) Update(ctx context.Context, actor Actor, id string, patch *model.ProjectPatch) (*model.Project, error) {
	if patch.Empty() {
		return nil, validationError("нет полей для обновления")
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, validationError("name не может быть пустым")
	}

	if _, err := s.getOwned(ctx, actor, airtable.KindProjects, id); err != nil {
		return nil, err
	}

	rec, err := s.store.Update(ctx, airtable.KindProjects, id, patch.Fields())
	if err != nil {
		return nil, storeError("обновление проекта", err)
	}
	s.invalidate(ctx, actor, airtable.KindProjects)

	s.logger.Info("Проект обновлён", slog.String("id", id), slog.String("user_id", actor.UserID))
	return model.ProjectFromRecord(rec), nil
}

// Delete удаляет проект пользователя. Логи проекта не удаляются.
func (s *ProjectService) Delete(ctx context.Context, actor Actor, id string) error {
	if _, err := s.getOwned(ctx, actor, airtable.KindProjects, id); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, airtable.KindProjects, id); err != nil {
		return storeError("удаление проекта", err)
	}
	s.invalidate(ctx, actor, airtable.KindProjects)

	s.logger.Info("Проект удалён", slog.String("id", id), slog.String("user_id", actor.UserID))
	return nil
}

// Logs возвращает логи пользователя по проекту: имя проекта берётся
// по id, затем Logs фильтруются по этому имени.
func (s *ProjectService) Logs(ctx context.Context, actor Actor, id string) (*model.Project, []*model.Log, error) {
	rec, err := s.getOwned(ctx, actor, airtable.KindProjects, id)
	if err != nil {
		return nil, nil, err
	}
	project := model.ProjectFromRecord(rec)

	records, err := s.store.List(ctx, airtable.KindLogs, airtable.ListOptions{
		Formula: airtable.And(
			ownedBy(actor.UserID),
			airtable.Eq(model.FieldProjectName, project.Name),
		),
		Sort: byNewest,
	})
	if err != nil {
		return nil, nil, storeError("логи проекта", err)
	}
	return project, model.LogsFromRecords(records), nil
}
