// Пакет config — загрузка и валидация конфигурации groundplane
// из переменных окружения (и опционального .env файла).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые backend'ы кэша списков.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config содержит все параметры конфигурации groundplane.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Публичный URL сервиса (используется для ссылок /temp/{id} и OAuth callback)
	PublicURL string
	// Разрешённые CORS origins
	CORSOrigins []string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// --- Сессии ---

	// Ключ шифрования session cookie (пустой — случайный на процесс)
	SessionSecret string
	// Secure flag для cookie
	SecureCookie bool

	// --- Slack OAuth ---

	SlackURL          string
	SlackClientID     string
	SlackClientSecret string
	SlackRedirectURI  string

	// --- Airtable ---

	AirtableURL           string
	AirtableAPIKey        string
	AirtableBaseID        string
	AirtableLogsTable     string
	AirtableProjectsTable string
	AirtableUsersTable    string

	// --- CDN ---

	// URL ingestion endpoint CDN
	CDNURL string
	// Bearer-токен CDN
	CDNToken string
	// URL анонимного файлового хостинга (multipart upload)
	AnonHostURL string

	// --- Staging ---

	// Директория временных файлов
	StagingDir string
	// Время жизни временного файла
	StagingTTL time.Duration
	// Интервал фоновой очистки истёкших файлов
	StagingSweepInterval time.Duration
	// Максимальный размер загружаемого медиафайла (байт)
	MaxUploadSize int64

	// --- Кэш списков ---

	// Backend кэша: memory, redis
	CacheBackend string
	// Адрес Redis (для backend=redis)
	RedisAddr string
	// Максимум сессий в in-memory кэше
	CacheMaxSessions int

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// Если в рабочей директории есть .env — значения из него подставляются
// только для незаданных переменных.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf(".env: %w", err)
	}

	cfg := &Config{}
	var err error

	// --- Сервер ---

	// GP_PORT — порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("GP_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("GP_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("GP_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("GP_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("GP_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("GP_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("GP_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// GP_PUBLIC_URL — внешний адрес сервиса, без trailing slash
	cfg.PublicURL = strings.TrimRight(getEnvDefault("GP_PUBLIC_URL", fmt.Sprintf("http://localhost:%d", cfg.Port)), "/")
	publicURL, err := url.Parse(cfg.PublicURL)
	if err != nil || publicURL.Scheme == "" || publicURL.Host == "" {
		return nil, fmt.Errorf("GP_PUBLIC_URL: некорректный URL %q", cfg.PublicURL)
	}

	cfg.CORSOrigins = parseCSV(getEnvDefault("GP_CORS_ORIGINS", "*"))

	cfg.ShutdownTimeout, err = getEnvDuration("GP_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("GP_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Сессии ---

	cfg.SessionSecret = getEnvDefault("GP_SESSION_SECRET", "")
	cfg.SecureCookie, err = getEnvBool("GP_SECURE_COOKIE", publicURL.Scheme == "https")
	if err != nil {
		return nil, fmt.Errorf("GP_SECURE_COOKIE: %w", err)
	}

	// --- Slack OAuth ---

	cfg.SlackURL = strings.TrimRight(getEnvDefault("GP_SLACK_URL", "https://slack.com"), "/")

	cfg.SlackClientID, err = getEnvRequired("GP_SLACK_CLIENT_ID")
	if err != nil {
		return nil, err
	}
	cfg.SlackClientSecret, err = getEnvRequired("GP_SLACK_CLIENT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.SlackRedirectURI = getEnvDefault("GP_SLACK_REDIRECT_URI", cfg.PublicURL+"/auth/callback")

	// --- Airtable ---

	cfg.AirtableURL = strings.TrimRight(getEnvDefault("GP_AIRTABLE_URL", "https://api.airtable.com/v0"), "/")

	cfg.AirtableAPIKey, err = getEnvRequired("GP_AIRTABLE_API_KEY")
	if err != nil {
		return nil, err
	}
	cfg.AirtableBaseID, err = getEnvRequired("GP_AIRTABLE_BASE_ID")
	if err != nil {
		return nil, err
	}
	cfg.AirtableLogsTable = getEnvDefault("GP_AIRTABLE_LOGS_TABLE", "Logs")
	cfg.AirtableProjectsTable = getEnvDefault("GP_AIRTABLE_PROJECTS_TABLE", "Projects")
	cfg.AirtableUsersTable = getEnvDefault("GP_AIRTABLE_USERS_TABLE", "Users")

	// --- CDN ---

	cfg.CDNURL = getEnvDefault("GP_CDN_URL", "https://cdn.hackclub.com/api/v3/new")
	cfg.CDNToken, err = getEnvRequired("GP_CDN_TOKEN")
	if err != nil {
		return nil, err
	}
	cfg.AnonHostURL = getEnvDefault("GP_ANON_HOST_URL", "https://tmpfiles.org/api/v1/upload")

	// --- Staging ---

	cfg.StagingDir = getEnvDefault("GP_STAGING_DIR", filepath.Join(os.TempDir(), "groundplane"))

	cfg.StagingTTL, err = getEnvDuration("GP_STAGING_TTL", 300*time.Second)
	if err != nil {
		return nil, fmt.Errorf("GP_STAGING_TTL: %w", err)
	}
	if cfg.StagingTTL <= 0 {
		return nil, fmt.Errorf("GP_STAGING_TTL: значение должно быть положительным")
	}

	cfg.StagingSweepInterval, err = getEnvDuration("GP_STAGING_SWEEP_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("GP_STAGING_SWEEP_INTERVAL: %w", err)
	}
	if cfg.StagingSweepInterval <= 0 {
		return nil, fmt.Errorf("GP_STAGING_SWEEP_INTERVAL: значение должно быть положительным")
	}

	maxUpload, err := getEnvInt("GP_MAX_UPLOAD_SIZE", 100<<20)
	if err != nil {
		return nil, fmt.Errorf("GP_MAX_UPLOAD_SIZE: %w", err)
	}
	cfg.MaxUploadSize = int64(maxUpload)

	// --- Кэш ---

	cfg.CacheBackend = getEnvDefault("GP_CACHE_BACKEND", CacheBackendMemory)
	if cfg.CacheBackend != CacheBackendMemory && cfg.CacheBackend != CacheBackendRedis {
		return nil, fmt.Errorf("GP_CACHE_BACKEND: недопустимое значение %q, допустимые: memory, redis", cfg.CacheBackend)
	}
	cfg.RedisAddr = getEnvDefault("GP_REDIS_ADDR", "localhost:6379")

	cfg.CacheMaxSessions, err = getEnvInt("GP_CACHE_MAX_SESSIONS", 10000)
	if err != nil {
		return nil, fmt.Errorf("GP_CACHE_MAX_SESSIONS: %w", err)
	}
	if cfg.CacheMaxSessions < 1 {
		return nil, fmt.Errorf("GP_CACHE_MAX_SESSIONS: значение %d должно быть >= 1", cfg.CacheMaxSessions)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("GP_DEPHEALTH_GROUP", "groundplane")
	cfg.DephealthCheckInterval, err = getEnvDuration("GP_DEPHEALTH_CHECK_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("GP_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
