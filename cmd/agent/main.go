package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tillsync/internal/api"
	"tillsync/internal/auth"
	"tillsync/internal/backend"
	"tillsync/internal/config"
	"tillsync/internal/database"
	"tillsync/internal/domain"
	"tillsync/internal/events"
	"tillsync/internal/logging"
	"tillsync/internal/metrics"
	"tillsync/internal/models"
	"tillsync/internal/queue"
	"tillsync/internal/session"
	"tillsync/internal/store"
	syncengine "tillsync/internal/sync"
	"tillsync/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	yamlv2 "gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, defs, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	metrics.Register()

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.Database.Path).Msg("database init failed")
		return err
	}
	defer db.Close()
	logger.Info().Str("path", cfg.Database.Path).Msg("database initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docStore, redisClient := buildDocumentStore(ctx, cfg, db, &logger)
	if redisClient != nil {
		defer store.Close(redisClient)
	}

	bus := events.NewEventBus()
	activity := session.NewActivity()

	// The backend client and token manager reference each other; the
	// refresh closure resolves the cycle.
	var client *backend.Client
	tokenManager := auth.NewManager(cfg.Auth, func(ctx context.Context) (string, time.Time, error) {
		return client.RefreshToken(ctx)
	}, bus, &logger)
	client = backend.NewClient(cfg.Backend, cfg.Device, tokenManager, &logger)

	if token := os.Getenv("TILLSYNC_ACCESS_TOKEN"); token != "" {
		// Expiry in the past forces a refresh on first use.
		tokenManager.SetToken(token, time.Now())
	}

	queueService := queue.NewService(db, redisClient, bus, cfg.Sync.RetryCeiling, &logger)

	overlay := syncengine.NewOverlay(docStore, activity, collections(defs), &logger)
	loader := syncengine.NewEntityLoader(client, overlay, &logger)
	router := syncengine.NewRouter(defs, loader, docStore, &logger)

	heartbeat := syncengine.NewHeartbeat(client, queueService, cfg.Sync.HeartbeatInterval.Std(), &logger)
	syncWorker := worker.NewSyncWorker(queueService, router, client, nil, worker.RetryPolicy{
		BaseDelay:   cfg.Sync.BackoffBase.Std(),
		MaxDelay:    cfg.Sync.BackoffMax.Std(),
		MaxExponent: cfg.Sync.BackoffExponent,
		JitterFrac:  0.2,
	}, cfg.Sync.IdleSleep.Std(), &logger)

	healthServer := api.NewHealthServer(cfg.Monitoring, cfg.Exports, queueService, tokenManager, &logger)
	go func() {
		if err := healthServer.Start(); err != nil {
			logger.Error().Err(err).Msg("health server error")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = healthServer.Shutdown(shutdownCtx)
	}()

	tokenManager.Start(ctx)
	heartbeat.Start(ctx)
	syncWorker.Start(ctx)

	logger.Info().Msg("sync agent running")
	<-ctx.Done()
	logger.Info().Msg("shutting down")

	// Stop producers before the consumer so in-flight work drains
	// cleanly; each Stop waits for its loop to exit.
	heartbeat.Stop()
	syncWorker.Stop()
	tokenManager.Stop()

	return nil
}

func loadConfigAndLogger() (*config.Config, []models.EntityDefinition, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "agent-main").Logger()

	entitiesPath := os.Getenv("ENTITIES_PATH")
	if entitiesPath == "" {
		entitiesPath = "configs/entities.yaml"
	}
	entitiesData, err := os.ReadFile(entitiesPath)
	if err != nil {
		logger.Error().Err(err).Str("path", entitiesPath).Msg("failed to read entity registry")
		return nil, nil, zerolog.Logger{}, closer, err
	}

	var registry struct {
		Entities []models.EntityDefinition `yaml:"entities"`
	}
	if err := yamlv2.Unmarshal(entitiesData, &registry); err != nil {
		logger.Error().Err(err).Msg("failed to parse entity registry")
		return nil, nil, zerolog.Logger{}, closer, err
	}
	if len(registry.Entities) == 0 {
		logger.Error().Str("path", entitiesPath).Msg("entity registry is empty")
		return nil, nil, zerolog.Logger{}, closer, os.ErrInvalid
	}

	return cfg, registry.Entities, logger, closer, nil
}

// buildDocumentStore layers the redis cache over SQLite when redis is
// enabled and reachable; otherwise SQLite serves alone.
func buildDocumentStore(ctx context.Context, cfg *config.Config, db *database.DB, logger *zerolog.Logger) (domain.DocumentStore, *redis.Client) {
	sqliteStore := store.NewSQLiteStore(db)
	if !cfg.Redis.Enabled {
		return sqliteStore, nil
	}

	client := store.NewRedisClient(cfg.Redis)
	if err := store.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, using sqlite store only")
		_ = store.Close(client)
		return sqliteStore, nil
	}

	ttl := time.Duration(cfg.Redis.CacheTTL) * time.Second
	cache := store.NewRedisStore(client, ttl)
	return store.NewCachedStore(sqliteStore, cache, logger), client
}

func collections(defs []models.EntityDefinition) []string {
	seen := make(map[string]bool, len(defs))
	var out []string
	for _, def := range defs {
		if def.Collection == "" || seen[def.Collection] {
			continue
		}
		seen[def.Collection] = true
		out = append(out, def.Collection)
	}
	return out
}
