// Пакет cache — сессионный кэш списков записей (Logs, Projects).
// Кэш включается пользователем в настройках, снимок списка перезаписывается
// целиком и удаляется после любой успешной записи этого вида.
// Снимки одной сессии не видны другим сессиям.
package cache

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/The-UnknownHacker/groundplane/internal/airtable"
)

// ErrMiss — снимка для (сессия, вид) нет.
var ErrMiss = errors.New("кэш: промах")

// ErrStale — снимок не записан: после чтения поколения была инвалидация.
var ErrStale = errors.New("кэш: снимок устарел")

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gp_cache_hits_total",
		Help: "Попадания в сессионный кэш списков.",
	}, []string{"kind"})
	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gp_cache_misses_total",
		Help: "Промахи сессионного кэша списков.",
	}, []string{"kind"})
	cacheInvalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gp_cache_invalidations_total",
		Help: "Инвалидации сессионного кэша списков.",
	}, []string{"kind"})
)

// CachedKinds — виды записей, списки которых кэшируются.
var CachedKinds = []airtable.Kind{airtable.KindLogs, airtable.KindProjects}

// Listing — снимок результата выборки.
type Listing struct {
	Kind       airtable.Kind     `json:"kind"`
	Records    []airtable.Record `json:"records"`
	CapturedAt time.Time         `json:"captured_at"`
}

// Store — хранилище снимков, ключ — (sessionID, kind).
//
// Каждая инвалидация увеличивает поколение ключа. Снимок, выбранный из
// хранилища до инвалидации, записывается через WriteListingAt с поколением,
// прочитанным до выборки, и отбрасывается, если поколение изменилось.
type Store interface {
	// ReadListing возвращает снимок или ErrMiss.
	ReadListing(ctx context.Context, sessionID string, kind airtable.Kind) (*Listing, error)
	// WriteListing безусловно перезаписывает снимок.
	WriteListing(ctx context.Context, sessionID string, listing *Listing) error
	// Generation возвращает текущее поколение (sessionID, kind).
	Generation(ctx context.Context, sessionID string, kind airtable.Kind) (uint64, error)
	// WriteListingAt перезаписывает снимок, только если поколение всё ещё gen.
	// Иначе снимок не записывается и возвращается ErrStale.
	WriteListingAt(ctx context.Context, sessionID string, listing *Listing, gen uint64) error
	// Invalidate удаляет снимок и увеличивает поколение. Идемпотентна.
	Invalidate(ctx context.Context, sessionID string, kind airtable.Kind) error
	// Purge удаляет все снимки сессии (logout).
	Purge(ctx context.Context, sessionID string) error
}

// cloneListing копирует снимок: порядок записей и карты полей
// вызывающего кода не разделяются с хранилищем.
func cloneListing(l *Listing) *Listing {
	out := &Listing{
		Kind:       l.Kind,
		CapturedAt: l.CapturedAt,
		Records:    make([]airtable.Record, len(l.Records)),
	}
	for i, r := range l.Records {
		out.Records[i] = airtable.Record{
			ID:          r.ID,
			CreatedTime: r.CreatedTime,
			Fields:      maps.Clone(r.Fields),
		}
	}
	return out
}

func hit(kind airtable.Kind) {
	cacheHitsTotal.WithLabelValues(string(kind)).Inc()
}

func miss(kind airtable.Kind) {
	cacheMissesTotal.WithLabelValues(string(kind)).Inc()
}

func invalidated(kind airtable.Kind) {
	cacheInvalidationsTotal.WithLabelValues(string(kind)).Inc()
}
