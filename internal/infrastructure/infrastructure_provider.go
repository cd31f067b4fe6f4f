package infrastructure

import (
	"context"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"jan-server/services/chat-api/internal/config"
	"jan-server/services/chat-api/internal/domain"
	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/domain/persistence"
	"jan-server/services/chat-api/internal/domain/quota"
	"jan-server/services/chat-api/internal/domain/session"
	"jan-server/services/chat-api/internal/domain/title"
	"jan-server/services/chat-api/internal/domain/turn"
	"jan-server/services/chat-api/internal/infrastructure/cache"
	"jan-server/services/chat-api/internal/infrastructure/crontab"
	"jan-server/services/chat-api/internal/infrastructure/database"
	"jan-server/services/chat-api/internal/infrastructure/database/repository/conversationrepo"
	"jan-server/services/chat-api/internal/infrastructure/database/transaction"
	"jan-server/services/chat-api/internal/infrastructure/inference"
	"jan-server/services/chat-api/internal/infrastructure/logger"
	"jan-server/services/chat-api/internal/infrastructure/memstore"
	"jan-server/services/chat-api/internal/infrastructure/metrics"
)

// ProvideConfig loads and provides the application configuration
func ProvideConfig() (*config.Config, error) {
	return config.Load()
}

// ProvideLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func ProvideLogger(cfg *config.Config) (zerolog.Logger, error) {
	return logger.New(cfg.LogLevel, cfg.LogFormat)
}

// ProvideDatabase returns nil when no DATABASE_URL is configured.
func ProvideDatabase(cfg *config.Config, log zerolog.Logger) (*gorm.DB, error) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, conversations are kept in memory")
		return nil, nil
	}
	db, err := database.NewDB(cfg.DatabaseURL, cfg.DBPostgresqlRead1DSN)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		log.Info().Msg("Running database migrations...")
		if err := database.AutoMigrate(context.Background(), db); err != nil {
			log.Error().Err(err).Msg("Failed to run database migrations")
			return nil, err
		}
		log.Info().Msg("Database migrations completed successfully")
	}
	return db, nil
}

// ProvideConversationRepository picks Postgres when a database is connected.
func ProvideConversationRepository(db *gorm.DB) conversation.Repository {
	if db == nil {
		return memstore.New()
	}
	return conversationrepo.NewConversationGormRepository(transaction.NewDatabase(db))
}

// ProvideRedis returns nil when no REDIS_URL is configured.
func ProvideRedis(cfg *config.Config, log zerolog.Logger) (redis.UniversalClient, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	return cache.NewRedisClient(cfg.RedisURL, log)
}

// ProvideQuotaStore shares counters through Redis when available.
func ProvideQuotaStore(client redis.UniversalClient) quota.CounterStore {
	if client == nil {
		return quota.NewMemoryStore()
	}
	return cache.NewQuotaStore(client)
}

// ProvideQuotaPruner returns the in-memory store for periodic pruning; Redis
// expires its keys on its own.
func ProvideQuotaPruner(store quota.CounterStore) crontab.QuotaPruner {
	if mem, ok := store.(*quota.MemoryStore); ok {
		return mem
	}
	return nil
}

// ProvideTitleClaimer is nil without Redis; a single replica needs no claims.
func ProvideTitleClaimer(cfg *config.Config, client redis.UniversalClient, log zerolog.Logger) title.Claimer {
	if client == nil {
		return nil
	}
	return cache.NewTitleClaimer(client, cfg.TitleClaimTTL, log)
}

func ProvideInferenceProvider(cfg *config.Config, log zerolog.Logger) *inference.Provider {
	return inference.NewProvider(inferenceConfig(cfg), log)
}

func ProvideTitleProvider(cfg *config.Config, log zerolog.Logger) *inference.TitleProvider {
	return inference.NewTitleProvider(inferenceConfig(cfg), cfg.TitleModel, log)
}

// ProvideCrontab schedules quota and idle session pruning.
func ProvideCrontab(cfg *config.Config, quotaPruner crontab.QuotaPruner, registry *session.Registry, log zerolog.Logger) *crontab.Crontab {
	return crontab.NewCrontab(quotaPruner, registry, cfg.SessionIdleTimeout, log)
}

func inferenceConfig(cfg *config.Config) inference.Config {
	return inference.Config{
		BaseURL:      cfg.ProviderBaseURL,
		APIKey:       cfg.ProviderAPIKey,
		Timeout:      cfg.TitleTimeout,
		SystemPrompt: cfg.SystemPrompt,
	}
}

// InfrastructureProvider provides all infrastructure dependencies
var InfrastructureProvider = wire.NewSet(
	// Config
	ProvideConfig,
	ProvideLogger,

	// Storage
	ProvideDatabase,
	ProvideConversationRepository,
	ProvideRedis,
	ProvideQuotaStore,
	ProvideQuotaPruner,
	ProvideTitleClaimer,

	// Model provider
	ProvideInferenceProvider,
	ProvideTitleProvider,

	// Metrics
	metrics.NewRecorder,
	wire.Bind(new(turn.Observer), new(*metrics.Recorder)),
	wire.Bind(new(persistence.Observer), new(*metrics.Recorder)),
	wire.Bind(new(title.Observer), new(*metrics.Recorder)),
	wire.Bind(new(domain.SessionCounter), new(*metrics.Recorder)),
	wire.Bind(new(turn.AIProvider), new(*inference.Provider)),
	wire.Bind(new(title.Provider), new(*inference.TitleProvider)),

	// Maintenance jobs
	ProvideCrontab,
)
