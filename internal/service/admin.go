// admin.go — выборки для администраторов по всем пользователям.
package service

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/The-UnknownHacker/groundplane/internal/airtable"
	"github.com/The-UnknownHacker/groundplane/internal/domain/model"
)

// RecentLogsLimit — число последних логов в админской выборке.
const RecentLogsLimit = 10

// Overview — сводка для главной админской страницы.
type Overview struct {
	UserCount    int          `json:"user_count"`
	ProjectCount int          `json:"project_count"`
	RecentLogs   []*model.Log `json:"recent_logs"`
}

// AdminService — админские выборки. Кэш не используется.
type AdminService struct {
	store  RecordStore
	logger *slog.Logger
}

// NewAdminService создаёт админский сервис.
func NewAdminService(store RecordStore, logger *slog.Logger) *AdminService {
	return &AdminService{
		store:  store,
		logger: logger.With(slog.String("service", "admin")),
	}
}

// Users возвращает всех пользователей.
func (s *AdminService) Users(ctx context.Context) ([]*model.User, error) {
	records, err := s.store.List(ctx, airtable.KindUsers, airtable.ListOptions{Sort: byNewest})
	if err != nil {
		return nil, storeError("список пользователей", err)
	}
	return model.UsersFromRecords(records), nil
}

// Projects возвращает все проекты.
func (s *AdminService) Projects(ctx context.Context) ([]*model.Project, error) {
	records, err := s.store.List(ctx, airtable.KindProjects, airtable.ListOptions{Sort: byNewest})
	if err != nil {
		return nil, storeError("список проектов", err)
	}
	return model.ProjectsFromRecords(records), nil
}

// RecentLogs возвращает RecentLogsLimit последних логов всех пользователей.
func (s *AdminService) RecentLogs(ctx context.Context) ([]*model.Log, error) {
	records, err := s.store.List(ctx, airtable.KindLogs, airtable.ListOptions{
		Sort:       byNewest,
		MaxRecords: RecentLogsLimit,
	})
	if err != nil {
		return nil, storeError("последние логи", err)
	}
	return model.LogsFromRecords(records), nil
}

// ProjectLogCount возвращает проект и число логов с его текущим именем.
func (s *AdminService) ProjectLogCount(ctx context.Context, projectID string) (*model.Project, int, error) {
	rec, err := s.store.Get(ctx, airtable.KindProjects, projectID)
	if err != nil {
		return nil, 0, storeError("чтение проекта", err)
	}
	project := model.ProjectFromRecord(rec)

	records, err := s.store.List(ctx, airtable.KindLogs, airtable.ListOptions{
		Formula: airtable.Eq(model.FieldProjectName, project.Name),
	})
	if err != nil {
		return nil, 0, storeError("логи проекта", err)
	}
	return project, len(records), nil
}

// Overview собирает сводку тремя параллельными запросами.
func (s *AdminService) Overview(ctx context.Context) (*Overview, error) {
	g, gctx := errgroup.WithContext(ctx)

	var (
		users    []*model.User
		projects []*model.Project
		recent   []*model.Log
	)
	g.Go(func() error {
		var err error
		users, err = s.Users(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		projects, err = s.Projects(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = s.RecentLogs(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Overview{
		UserCount:    len(users),
		ProjectCount: len(projects),
		RecentLogs:   recent,
	}, nil
}
