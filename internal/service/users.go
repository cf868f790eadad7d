// users.go — сервис пользователей (таблица Users).
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/The-UnknownHacker/groundplane/internal/airtable"
	"github.com/The-UnknownHacker/groundplane/internal/domain/model"
)

// UserService — регистрация пользователей и проверка роли администратора.
type UserService struct {
	store  RecordStore
	now    func() time.Time
	logger *slog.Logger
}

// NewUserService создаёт сервис пользователей.
func NewUserService(store RecordStore, logger *slog.Logger) *UserService {
	return &UserService{
		store:  store,
		now:    time.Now,
		logger: logger.With(slog.String("service", "users")),
	}
}

// Find возвращает пользователя по Slack ID или ErrNotFound.
func (s *UserService) Find(ctx context.Context, userID string) (*model.User, error) {
	records, err := s.store.List(ctx, airtable.KindUsers, airtable.ListOptions{
		Formula:    airtable.Eq(model.FieldUserID, userID),
		MaxRecords: 1,
	})
	if err != nil {
		return nil, storeError("поиск пользователя", err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return model.UserFromRecord(&records[0]), nil
}

// EnsureUser создаёт запись пользователя при первом входе
// и обновляет имя, если оно изменилось в Slack.
func (s *UserService) EnsureUser(ctx context.Context, userID, userName string) (*model.User, error) {
	u, err := s.Find(ctx, userID)
	switch {
	case err == nil:
		if u.UserName == userName {
			return u, nil
		}
		rec, err := s.store.Update(ctx, airtable.KindUsers, u.ID, map[string]any{
			model.FieldUserName: userName,
		})
		if err != nil {
			return nil, storeError("обновление пользователя", err)
		}
		s.logger.Info("Имя пользователя обновлено",
			slog.String("user_id", userID),
			slog.String("user_name", userName),
		)
		return model.UserFromRecord(rec), nil

	case errors.Is(err, ErrNotFound):
		newUser := &model.User{UserID: userID, UserName: userName, CreatedAt: s.now()}
		rec, err := s.store.Create(ctx, airtable.KindUsers, newUser.Fields())
		if err != nil {
			return nil, storeError("создание пользователя", err)
		}
		s.logger.Info("Пользователь зарегистрирован",
			slog.String("user_id", userID),
			slog.String("user_name", userName),
		)
		return model.UserFromRecord(rec), nil

	default:
		return nil, err
	}
}

// IsAdmin сообщает, отмечен ли пользователь как администратор.
// Отсутствующий пользователь администратором не является.
func (s *UserService) IsAdmin(ctx context.Context, userID string) (bool, error) {
	u, err := s.Find(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.IsAdmin, nil
}
