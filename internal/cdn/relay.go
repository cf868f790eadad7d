package cdn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/The-UnknownHacker/groundplane/internal/staging"
)

// ErrRelayFailed — ни одна стратегия не дала deployed URL.
var ErrRelayFailed = errors.New("не удалось передать файл в CDN")

// Стратегии передачи.
const (
	StrategyAnonymous  = "anonymous"
	StrategySelfHosted = "self_hosted"
)

var relayAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gp_relay_attempts_total",
	Help: "Попытки передачи файлов в CDN по стратегиям и результату.",
}, []string{"strategy", "result"})

// Stager делает локальный файл доступным по публичному URL.
type Stager interface {
	Stage(sourcePath string) (*staging.StagedFile, error)
}

// Uploader — операции CDN, используемые Relay.
type Uploader interface {
	Ingest(ctx context.Context, sourceURL string) (string, error)
	UploadAnonymous(ctx context.Context, path string) (string, error)
}

// Relay получает постоянный URL CDN для локального файла.
type Relay struct {
	uploader Uploader
	stager   Stager
	logger   *slog.Logger
}

// NewRelay создаёт Relay.
func NewRelay(uploader Uploader, stager Stager, logger *slog.Logger) *Relay {
	return &Relay{
		uploader: uploader,
		stager:   stager,
		logger:   logger.With(slog.String("component", "cdn_relay")),
	}
}

// Relay передаёт файл в CDN. Сначала через анонимный хостинг,
// при неудаче — через собственный staging. Побеждает первый успех.
// Повторов нет: при двух неудачах возвращается ErrRelayFailed
// вместе с причинами обеих попыток.
func (r *Relay) Relay(ctx context.Context, localPath string) (string, error) {
	deployed, anonErr := r.viaAnonymous(ctx, localPath)
	if anonErr == nil {
		return deployed, nil
	}

	r.logger.Warn("Анонимный хостинг недоступен, используется собственный staging",
		slog.String("path", localPath),
		slog.String("error", anonErr.Error()),
	)

	deployed, selfErr := r.viaSelfHosted(ctx, localPath)
	if selfErr == nil {
		return deployed, nil
	}

	return "", fmt.Errorf("%w: %w", ErrRelayFailed, errors.Join(anonErr, selfErr))
}

// RelaySelfHosted передаёт файл только через собственный staging.
func (r *Relay) RelaySelfHosted(ctx context.Context, localPath string) (string, error) {
	deployed, err := r.viaSelfHosted(ctx, localPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRelayFailed, err)
	}
	return deployed, nil
}

func (r *Relay) viaAnonymous(ctx context.Context, localPath string) (string, error) {
	publicURL, err := r.uploader.UploadAnonymous(ctx, localPath)
	if err != nil {
		relayAttemptsTotal.WithLabelValues(StrategyAnonymous, "error").Inc()
		return "", fmt.Errorf("анонимный хостинг: %w", err)
	}

	deployed, err := r.uploader.Ingest(ctx, publicURL)
	if err != nil {
		relayAttemptsTotal.WithLabelValues(StrategyAnonymous, "error").Inc()
		return "", fmt.Errorf("CDN (анонимный хостинг): %w", err)
	}

	relayAttemptsTotal.WithLabelValues(StrategyAnonymous, "ok").Inc()
	return deployed, nil
}

func (r *Relay) viaSelfHosted(ctx context.Context, localPath string) (string, error) {
	sf, err := r.stager.Stage(localPath)
	if err != nil {
		relayAttemptsTotal.WithLabelValues(StrategySelfHosted, "error").Inc()
		return "", fmt.Errorf("staging: %w", err)
	}

	deployed, err := r.uploader.Ingest(ctx, sf.URL)
	if err != nil {
		relayAttemptsTotal.WithLabelValues(StrategySelfHosted, "error").Inc()
		return "", fmt.Errorf("CDN (staging): %w", err)
	}

	relayAttemptsTotal.WithLabelValues(StrategySelfHosted, "ok").Inc()
	return deployed, nil
}
