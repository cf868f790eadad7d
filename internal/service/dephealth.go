// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// groundplane мониторит внешние HTTP-зависимости (все некритичные:
// их недоступность деградирует загрузку медиа, но не создание логов):
//   - cdn — ingestion endpoint CDN
//   - anon-host — анонимный файловый хостинг
//   - airtable — REST API Airtable
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker
	"github.com/prometheus/client_golang/prometheus"
)

// DependencyURLs — адреса проверяемых зависимостей.
type DependencyURLs struct {
	CDN      string
	AnonHost string
	Airtable string
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(
	serviceID string,
	group string,
	deps DependencyURLs,
	checkInterval time.Duration,
	logger *slog.Logger,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, deps, checkInterval, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	serviceID string,
	group string,
	deps DependencyURLs,
	checkInterval time.Duration,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, deps, checkInterval, logger,
		dephealth.WithRegisterer(registerer))
}

func newDephealthService(
	serviceID string,
	group string,
	deps DependencyURLs,
	checkInterval time.Duration,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	opts := []dephealth.Option{dephealth.WithLogger(logger)}

	named := []struct {
		name string
		raw  string
	}{
		{"cdn", deps.CDN},
		{"anon-host", deps.AnonHost},
		{"airtable", deps.Airtable},
	}
	for _, d := range named {
		if d.raw == "" {
			continue
		}
		if err := validateDependencyURL(d.raw); err != nil {
			return nil, fmt.Errorf("%s: %w", d.name, err)
		}
		// API endpoints не отвечают на GET, проверяется корень хоста
		opts = append(opts, dephealth.HTTP(d.name,
			dephealth.FromURL(d.raw),
			dephealth.WithHTTPHealthPath("/"),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(false),
		))
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

func validateDependencyURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("некорректный URL %q", raw)
	}
	return nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (CDN, анонимный хостинг, Airtable)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
