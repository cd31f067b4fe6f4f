package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"jan-server/services/chat-api/internal/config"
	"jan-server/services/chat-api/internal/domain/persistence"
	"jan-server/services/chat-api/internal/domain/quota"
	"jan-server/services/chat-api/internal/domain/session"
	"jan-server/services/chat-api/internal/domain/title"
	"jan-server/services/chat-api/internal/domain/turn"
	"jan-server/services/chat-api/internal/infrastructure/inference"
	"jan-server/services/chat-api/internal/infrastructure/logger"
	"jan-server/services/chat-api/internal/infrastructure/memstore"
)

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)

	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		color.NoColor = true
	}
	level := "warn"
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	log, err := logger.NewWithWriter(os.Stderr, level, "console")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, titles, err := buildSession(cfg, identityFromFlags(cmd), log)
	if err != nil {
		return err
	}
	titles.Start(ctx)
	defer titles.Stop()

	return newREPL(sess, os.Stdin, cmd.OutOrStdout()).Run(ctx)
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("provider-url"); v != "" {
		cfg.ProviderBaseURL = v
	}
	if v, _ := cmd.Flags().GetString("api-key"); v != "" {
		cfg.ProviderAPIKey = v
	}
	if v, _ := cmd.Flags().GetString("model"); v != "" {
		cfg.DefaultModel = v
		if cfg.TitleModel == "" {
			cfg.TitleModel = v
		}
	}
	if v, _ := cmd.Flags().GetInt("daily-limit"); v >= 0 {
		cfg.QuotaDailyLimit = v
	}
}

func identityFromFlags(cmd *cobra.Command) turn.Identity {
	if owner, _ := cmd.Flags().GetString("owner"); owner != "" {
		return turn.Identity{OwnerID: &owner}
	}
	host, _ := os.Hostname()
	return turn.Identity{AnonymousKey: "cli:" + host}
}

// buildSession wires an in-memory stack around the configured model server.
func buildSession(cfg *config.Config, identity turn.Identity, log zerolog.Logger) (*session.Session, *title.Scheduler, error) {
	gateway := persistence.NewGateway(memstore.New(), log)
	infCfg := inference.Config{
		BaseURL:      cfg.ProviderBaseURL,
		APIKey:       cfg.ProviderAPIKey,
		Timeout:      cfg.TitleTimeout,
		SystemPrompt: cfg.SystemPrompt,
	}

	titles, err := title.NewScheduler(inference.NewTitleProvider(infCfg, cfg.TitleModel, log), gateway, title.Config{
		Delay:       cfg.TitleDelay,
		TaskTimeout: cfg.TitleTimeout,
		WorkerCount: 1,
		MaxLength:   cfg.TitleMaxLength,
	}, log)
	if err != nil {
		return nil, nil, err
	}

	limiter, err := quota.NewLimiter(quota.Config{
		DailyLimit:     cfg.QuotaDailyLimit,
		BurstPerMinute: cfg.QuotaBurstPerMinute,
		Location:       cfg.QuotaLocation(),
	}, quota.NewMemoryStore(), log)
	if err != nil {
		return nil, nil, err
	}

	registry, err := session.NewRegistry(session.Dependencies{
		Store:    gateway,
		Provider: inference.NewProvider(infCfg, log),
		Titles:   titles,
		Limiter:  limiter,
		Logger:   log,
	}, session.Config{
		Capacity:  1,
		CacheSize: cfg.ConversationCacheSize,
		Turn: turn.Config{
			DefaultModel:  cfg.DefaultModel,
			AllowedModels: cfg.AllowedModels(),
		},
	})
	if err != nil {
		return nil, nil, err
	}
	sess, err := registry.Create(identity)
	if err != nil {
		return nil, nil, err
	}
	return sess, titles, nil
}
