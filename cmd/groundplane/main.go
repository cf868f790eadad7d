// Точка входа groundplane — журнал разработки поверх Airtable.
// Загружает конфигурацию, создаёт клиенты Airtable, Slack и CDN, кэш списков,
// staging временных файлов, сервисный слой и HTTP handlers,
// запускает фоновые задачи (очистка staging, topologymetrics)
// и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/The-UnknownHacker/groundplane/internal/airtable"
	"github.com/The-UnknownHacker/groundplane/internal/api/handlers"
	"github.com/The-UnknownHacker/groundplane/internal/cache"
	"github.com/The-UnknownHacker/groundplane/internal/cdn"
	"github.com/The-UnknownHacker/groundplane/internal/config"
	"github.com/The-UnknownHacker/groundplane/internal/server"
	"github.com/The-UnknownHacker/groundplane/internal/service"
	"github.com/The-UnknownHacker/groundplane/internal/staging"
	"github.com/The-UnknownHacker/groundplane/internal/ui/auth"
	uihandlers "github.com/The-UnknownHacker/groundplane/internal/ui/handlers"
	uimiddleware "github.com/The-UnknownHacker/groundplane/internal/ui/middleware"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("groundplane запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	ctx := context.Background()

	// 3. Сессии (AES-256-GCM cookie)
	sessionMgr, err := auth.NewSessionManager(cfg.SessionSecret, cfg.SecureCookie)
	if err != nil {
		logger.Error("Ошибка создания Session Manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.SessionSecret == "" {
		logger.Warn("GP_SESSION_SECRET не задан, сессии не сохраняются между рестартами")
	}

	// 4. Slack OAuth
	slackClient := auth.NewSlackClient(auth.SlackConfig{
		BaseURL:      cfg.SlackURL,
		ClientID:     cfg.SlackClientID,
		ClientSecret: cfg.SlackClientSecret,
		RedirectURI:  cfg.SlackRedirectURI,
	}, logger)

	// 5. Airtable
	airtableClient := airtable.New(airtable.Config{
		URL:    cfg.AirtableURL,
		BaseID: cfg.AirtableBaseID,
		APIKey: cfg.AirtableAPIKey,
		Tables: map[airtable.Kind]string{
			airtable.KindUsers:    cfg.AirtableUsersTable,
			airtable.KindProjects: cfg.AirtableProjectsTable,
			airtable.KindLogs:     cfg.AirtableLogsTable,
		},
	}, logger)
	logger.Info("Airtable клиент создан",
		slog.String("url", cfg.AirtableURL),
		slog.String("base_id", cfg.AirtableBaseID),
	)

	// 6. Кэш списков
	checkers := []handlers.NamedChecker{{Name: "airtable", Checker: airtableClient}}

	var cacheStore cache.Store
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		redisStore := cache.NewRedisStore(rdb, auth.SessionLifetime)
		cacheStore = redisStore
		checkers = append(checkers, handlers.NamedChecker{Name: "redis", Checker: redisStore})
		logger.Info("Кэш списков: Redis", slog.String("addr", cfg.RedisAddr))
	default:
		cacheStore = cache.NewMemoryStore(cfg.CacheMaxSessions, auth.SessionLifetime)
		logger.Info("Кэш списков: in-memory", slog.Int("max_sessions", cfg.CacheMaxSessions))
	}

	// 7. Staging временных файлов для загрузки в CDN через собственный хостинг
	stagingStore, err := staging.New(cfg.StagingDir, cfg.PublicURL, logger, staging.WithTTL(cfg.StagingTTL))
	if err != nil {
		logger.Error("Ошибка создания staging", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 8. CDN
	cdnClient := cdn.NewClient(cdn.Config{
		IngestURL:   cfg.CDNURL,
		Token:       cfg.CDNToken,
		AnonHostURL: cfg.AnonHostURL,
	}, logger)
	relay := cdn.NewRelay(cdnClient, stagingStore, logger)

	// 9. Services
	usersSvc := service.NewUserService(airtableClient, logger)
	mediaSvc := service.NewMediaService(relay, os.TempDir(), logger)
	logsSvc := service.NewLogService(airtableClient, cacheStore, mediaSvc, logger)
	projectsSvc := service.NewProjectService(airtableClient, cacheStore, logger)
	adminSvc := service.NewAdminService(airtableClient, logger)

	// 10. Фоновые задачи
	stagingStore.Start(ctx, cfg.StagingSweepInterval)

	// 10.1 topologymetrics — мониторинг зависимостей (CDN, анонимный хостинг, Airtable)
	var deps handlers.DependencyHealth
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"groundplane",
		cfg.DephealthGroup,
		service.DependencyURLs{
			CDN:      cfg.CDNURL,
			AnonHost: cfg.AnonHostURL,
			Airtable: cfg.AirtableURL,
		},
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
		dephealthSvc = nil
	} else {
		deps = dephealthSvc
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 11. Handlers
	routes := server.Routes{
		Health:       handlers.NewHealthHandler(deps, checkers...),
		Logs:         handlers.NewLogsHandler(logsSvc, cfg.MaxUploadSize, logger),
		Projects:     handlers.NewProjectsHandler(projectsSvc, logger),
		Export:       handlers.NewExportHandler(logsSvc, logger),
		Settings:     handlers.NewSettingsHandler(sessionMgr, cacheStore, logger),
		Admin:        handlers.NewAdminHandler(adminSvc, logger),
		Temp:         handlers.NewTempHandler(stagingStore, logger),
		Auth:         uihandlers.NewAuthHandler(slackClient, sessionMgr, usersSvc, cacheStore, logger),
		SessionAuth:  uimiddleware.NewSessionAuth(sessionMgr, logger),
		AdminChecker: usersSvc,
	}

	// 12. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, routes)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 13. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	stagingStore.Stop()

	logger.Info("groundplane остановлен")
}
