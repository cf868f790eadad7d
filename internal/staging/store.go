// Пакет staging — временное хранилище загруженных медиафайлов.
// Файл копируется в управляемую директорию, регистрируется под случайным
// идентификатором и доступен по GET /temp/{id} до истечения TTL.
// Истёкшие файлы удаляет один фоновый sweeper по min-heap сроков.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultTTL — время жизни временного файла по умолчанию.
const DefaultTTL = 300 * time.Second

// ErrNotFound — идентификатор не выдавался, истёк или файл удалён с диска.
var ErrNotFound = errors.New("временный файл не найден")

// Prometheus-метрики staging.
var (
	stagedFilesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gp_staging_files",
		Help: "Количество зарегистрированных временных файлов.",
	})
	stagedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gp_staging_staged_total",
		Help: "Общее количество размещённых временных файлов.",
	})
	expiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gp_staging_expired_total",
		Help: "Общее количество временных файлов, удалённых по TTL.",
	})
	stagingErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gp_staging_errors_total",
		Help: "Ошибки ввода-вывода staging по операциям.",
	}, []string{"op"})
)

// StagedFile — локальная копия загруженного файла, ожидающая передачи в CDN.
type StagedFile struct {
	// ID — непрозрачный уникальный идентификатор
	ID string
	// Path — абсолютный путь копии на диске
	Path string
	// URL — публичный адрес файла (publicURL + /temp/{id})
	URL string
	// CreatedAt — время размещения
	CreatedAt time.Time
	// ExpiresAt — время, после которого файл недоступен
	ExpiresAt time.Time
}

// Option — опция конструктора Store.
type Option func(*Store)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithTTL задаёт время жизни временных файлов.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// Store — реестр временных файлов id → путь.
// Экземпляр передаётся явно; общего глобального состояния нет.
type Store struct {
	dir       string
	publicURL string
	ttl       time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu    sync.Mutex
	files map[string]*StagedFile
	queue expiryQueue

	cancel context.CancelFunc
	done   chan struct{}
}

// New создаёт хранилище в директории dir. Директория создаётся при отсутствии.
// publicURL — внешний адрес сервиса без trailing slash.
func New(dir, publicURL string, logger *slog.Logger, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию staging %s: %w", dir, err)
	}

	s := &Store{
		dir:       dir,
		publicURL: strings.TrimRight(publicURL, "/"),
		ttl:       DefaultTTL,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "staging")),
		files:     make(map[string]*StagedFile),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir возвращает директорию хранилища.
func (s *Store) Dir() string {
	return s.dir
}

// TTL возвращает время жизни временных файлов.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// maxStagedExt — предел длины расширения в имени копии.
const maxStagedExt = 16

// stagedExt возвращает расширение исходного файла для имени копии.
// Слишком длинное расширение отбрасывается.
func stagedExt(sourcePath string) string {
	ext := filepath.Ext(sourcePath)
	if len(ext) > maxStagedExt {
		return ""
	}
	return ext
}

// Stage копирует sourcePath в хранилище и регистрирует копию.
// Возвращает StagedFile с публичным URL. Не блокирует до истечения TTL:
// удаление выполняет sweeper.
func (s *Store) Stage(sourcePath string) (*StagedFile, error) {
	id := uuid.NewString()
	dst := filepath.Join(s.dir, "temp_"+id+stagedExt(sourcePath))

	if err := copyFile(sourcePath, dst); err != nil {
		stagingErrorsTotal.WithLabelValues("stage").Inc()
		return nil, fmt.Errorf("размещение %s: %w", sourcePath, err)
	}

	created := s.now()
	sf := &StagedFile{
		ID:        id,
		Path:      dst,
		URL:       s.URLFor(id),
		CreatedAt: created,
		ExpiresAt: created.Add(s.ttl),
	}

	s.mu.Lock()
	s.files[id] = sf
	s.queue.push(expiryItem{id: id, expiresAt: sf.ExpiresAt})
	stagedFilesGauge.Set(float64(len(s.files)))
	s.mu.Unlock()

	stagedTotal.Inc()
	s.logger.Info("Временный файл размещён",
		slog.String("id", id),
		slog.String("url", sf.URL),
		slog.Time("expires_at", sf.ExpiresAt),
	)

	return sf, nil
}

// Resolve возвращает путь файла, если идентификатор зарегистрирован,
// срок не истёк и файл есть на диске. Иначе — ErrNotFound.
// Повторные вызовы допустимы до истечения TTL.
func (s *Store) Resolve(id string) (string, error) {
	s.mu.Lock()
	sf, ok := s.files[id]
	expired := ok && !s.now().Before(sf.ExpiresAt)
	s.mu.Unlock()

	if !ok || expired {
		return "", ErrNotFound
	}

	if _, err := os.Stat(sf.Path); err != nil {
		return "", ErrNotFound
	}
	return sf.Path, nil
}

// URLFor формирует публичный URL временного файла.
func (s *Store) URLFor(id string) string {
	return s.publicURL + "/temp/" + id
}

// Len возвращает количество зарегистрированных файлов.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// Sweep удаляет все файлы с истёкшим сроком и возвращает их количество.
// Удалённые идентификаторы больше никогда не разрешаются.
func (s *Store) Sweep() int {
	now := s.now()

	s.mu.Lock()
	var expired []*StagedFile
	for s.queue.Len() > 0 && !now.Before(s.queue.peek().expiresAt) {
		item := s.queue.pop()
		sf, ok := s.files[item.id]
		if !ok {
			continue
		}
		delete(s.files, item.id)
		expired = append(expired, sf)
	}
	stagedFilesGauge.Set(float64(len(s.files)))
	s.mu.Unlock()

	// Файловые операции — вне блокировки
	for _, sf := range expired {
		if err := os.Remove(sf.Path); err != nil && !os.IsNotExist(err) {
			stagingErrorsTotal.WithLabelValues("cleanup").Inc()
			s.logger.Error("Ошибка удаления временного файла",
				slog.String("id", sf.ID),
				slog.String("path", sf.Path),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.logger.Info("Временный файл удалён по TTL",
			slog.String("id", sf.ID),
			slog.String("path", sf.Path),
		)
	}

	expiredTotal.Add(float64(len(expired)))
	return len(expired)
}

// Start запускает фоновую очистку с периодом interval.
func (s *Store) Start(ctx context.Context, interval time.Duration) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(sweepCtx, interval)

	s.logger.Info("Очистка временных файлов запущена",
		slog.String("interval", interval.String()),
		slog.String("ttl", s.ttl.String()),
	)
}

// Stop останавливает фоновую очистку и дожидается её завершения.
func (s *Store) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Очистка временных файлов остановлена")
}

// run — цикл фоновой горутины.
func (s *Store) run(ctx context.Context, interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// copyFile копирует src в dst через временный файл и атомарный rename.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("открытие исходного файла: %w", err)
	}
	defer in.Close()

	tmpPath := dst + ".tmp"
	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("создание временного файла: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("копирование данных: %w", err)
	}

	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("закрытие файла: %w", err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("атомарное переименование: %w", err)
	}
	return nil
}
