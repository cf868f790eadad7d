// records.go — общий доступ к записям: хранилище, действующий пользователь,
// сессионный кэш списков и проверка владельца.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/The-UnknownHacker/groundplane/internal/airtable"
	"github.com/The-UnknownHacker/groundplane/internal/cache"
	"github.com/The-UnknownHacker/groundplane/internal/domain/model"
)

// RecordStore — удалённое табличное хранилище (реализуется airtable.Client).
type RecordStore interface {
	Create(ctx context.Context, kind airtable.Kind, fields map[string]any) (*airtable.Record, error)
	Get(ctx context.Context, kind airtable.Kind, id string) (*airtable.Record, error)
	Update(ctx context.Context, kind airtable.Kind, id string, fields map[string]any) (*airtable.Record, error)
	Delete(ctx context.Context, kind airtable.Kind, id string) error
	List(ctx context.Context, kind airtable.Kind, opts airtable.ListOptions) ([]airtable.Record, error)
}

// Actor — действующий пользователь (из сессии).
type Actor struct {
	// UserID — Slack ID
	UserID   string
	UserName string
	// SessionID — ключ сессионного кэша
	SessionID string
	// CacheEnabled — пользователь включил кэш списков
	CacheEnabled bool
}

// byNewest — сортировка "сначала новые".
var byNewest = &airtable.Sort{Field: model.FieldCreatedAt, Direction: airtable.Desc}

// recordAccess — общая часть сервисов Logs и Projects.
type recordAccess struct {
	store  RecordStore
	cache  cache.Store
	now    func() time.Time
	logger *slog.Logger
}

// listCached возвращает список kind для actor.
// При включённом кэше: снимок из кэша, иначе запрос к хранилищу
// и запись результата в кэш. При выключенном — всегда запрос к хранилищу.
// Ошибки кэша не фатальны: логируются, запрос уходит в хранилище.
//
// Поколение снимка читается до запроса к хранилищу: если за время запроса
// параллельная запись инвалидировала кэш, результат в кэш не попадает.
func (a *recordAccess) listCached(ctx context.Context, actor Actor, kind airtable.Kind, opts airtable.ListOptions) ([]airtable.Record, error) {
	useCache := actor.CacheEnabled && a.cache != nil

	var gen uint64
	if useCache {
		listing, err := a.cache.ReadListing(ctx, actor.SessionID, kind)
		switch {
		case err == nil:
			return listing.Records, nil
		case !errors.Is(err, cache.ErrMiss):
			a.logger.Warn("Ошибка чтения кэша, запрос к хранилищу",
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()),
			)
		}

		gen, err = a.cache.Generation(ctx, actor.SessionID, kind)
		if err != nil {
			a.logger.Warn("Ошибка чтения поколения кэша, снимок не сохраняется",
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()),
			)
			useCache = false
		}
	}

	records, err := a.store.List(ctx, kind, opts)
	if err != nil {
		return nil, storeError("список "+string(kind), err)
	}

	if useCache {
		listing := &cache.Listing{Kind: kind, Records: records, CapturedAt: a.now()}
		err := a.cache.WriteListingAt(ctx, actor.SessionID, listing, gen)
		switch {
		case errors.Is(err, cache.ErrStale):
			a.logger.Debug("Снимок устарел за время запроса, не сохраняется",
				slog.String("kind", string(kind)),
			)
		case err != nil:
			a.logger.Warn("Ошибка записи кэша",
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()),
			)
		}
	}

	return records, nil
}

// invalidate сбрасывает снимок kind после успешной записи.
// Выполняется независимо от того, включён ли кэш.
func (a *recordAccess) invalidate(ctx context.Context, actor Actor, kind airtable.Kind) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Invalidate(ctx, actor.SessionID, kind); err != nil {
		a.logger.Warn("Ошибка инвалидации кэша",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	}
}

// getOwned загружает запись и проверяет, что её владелец — actor.
// Проверка выполняется на клиенте и действительна только на момент чтения:
// Airtable не поддерживает условную запись, и изменение записи между
// проверкой и последующей операцией не обнаруживается.
func (a *recordAccess) getOwned(ctx context.Context, actor Actor, kind airtable.Kind, id string) (*airtable.Record, error) {
	rec, err := a.store.Get(ctx, kind, id)
	if err != nil {
		return nil, storeError("чтение "+string(kind), err)
	}

	owner, _ := rec.Fields[model.FieldUserID].(string)
	if owner == "" || owner != actor.UserID {
		a.logger.Warn("Попытка доступа к чужой записи",
			slog.String("kind", string(kind)),
			slog.String("id", id),
			slog.String("user_id", actor.UserID),
		)
		return nil, ErrUnauthorized
	}
	return rec, nil
}

// ownedBy — фильтр записей пользователя.
func ownedBy(userID string) string {
	return airtable.Eq(model.FieldUserID, userID)
}
