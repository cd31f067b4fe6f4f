package domain

import (
	"github.com/google/wire"
	"github.com/rs/zerolog"

	"jan-server/services/chat-api/internal/config"
	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/domain/persistence"
	"jan-server/services/chat-api/internal/domain/quota"
	"jan-server/services/chat-api/internal/domain/session"
	"jan-server/services/chat-api/internal/domain/title"
	"jan-server/services/chat-api/internal/domain/turn"
)

// SessionCounter is told the live session count after every change.
type SessionCounter interface {
	SessionsChanged(count int)
}

func ProvidePersistenceGateway(repo conversation.Repository, observer persistence.Observer, log zerolog.Logger) *persistence.Gateway {
	return persistence.NewGateway(repo, log, persistence.WithObserver(observer))
}

func ProvideQuotaLimiter(cfg *config.Config, store quota.CounterStore, log zerolog.Logger) (*quota.Limiter, error) {
	return quota.NewLimiter(quota.Config{
		DailyLimit:     cfg.QuotaDailyLimit,
		BurstPerMinute: cfg.QuotaBurstPerMinute,
		Location:       cfg.QuotaLocation(),
	}, store, log)
}

func ProvideTitleScheduler(
	cfg *config.Config,
	provider title.Provider,
	store title.Store,
	observer title.Observer,
	claimer title.Claimer,
	log zerolog.Logger,
) (*title.Scheduler, error) {
	scheduler, err := title.NewScheduler(provider, store, title.Config{
		Delay:       cfg.TitleDelay,
		TaskTimeout: cfg.TitleTimeout,
		WorkerCount: cfg.TitleWorkers,
		QueueSize:   cfg.TitleQueueSize,
		MaxLength:   cfg.TitleMaxLength,
		MemorySize:  cfg.TitleMemorySize,
	}, log)
	if err != nil {
		return nil, err
	}
	scheduler.SetObserver(observer)
	if claimer != nil {
		scheduler.SetClaimer(claimer)
	}
	return scheduler, nil
}

func ProvideSessionRegistry(
	cfg *config.Config,
	store session.Store,
	provider turn.AIProvider,
	titles turn.TitleScheduler,
	limiter *quota.Limiter,
	observer turn.Observer,
	counter SessionCounter,
	log zerolog.Logger,
) (*session.Registry, error) {
	return session.NewRegistry(session.Dependencies{
		Store:      store,
		Provider:   provider,
		Titles:     titles,
		Limiter:    limiter,
		Classifier: turn.NewClassifier(),
		Observer:   observer,
		Logger:     log,
	}, session.Config{
		Capacity:  cfg.SessionCapacity,
		CacheSize: cfg.ConversationCacheSize,
		Turn: turn.Config{
			DefaultModel:  cfg.DefaultModel,
			AllowedModels: cfg.AllowedModels(),
		},
		OnChange: counter.SessionsChanged,
	})
}

var ServiceProvider = wire.NewSet(
	ProvidePersistenceGateway,
	ProvideQuotaLimiter,
	ProvideTitleScheduler,
	ProvideSessionRegistry,
	wire.Bind(new(session.Store), new(*persistence.Gateway)),
	wire.Bind(new(title.Store), new(*persistence.Gateway)),
	wire.Bind(new(turn.TitleScheduler), new(*title.Scheduler)),
)
