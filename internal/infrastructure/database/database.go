package database

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"

	"jan-server/services/chat-api/internal/infrastructure/logger"
)

const (
	SchemaName  = "chat_api"
	TablePrefix = SchemaName + "."
)

// Config holds database configuration
type Config struct {
	DatabaseURL string
	// ReplicaURLs are read-only DSNs; reads go there when any is set.
	ReplicaURLs []string
	MaxIdle     int
	MaxOpen     int
	MaxLifetime time.Duration
	LogLevel    gormlogger.LogLevel
}

// Connect opens the primary connection and registers replicas, if any.
func Connect(cfg Config) (*gorm.DB, error) {
	log := logger.GetLogger()
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   TablePrefix,
			SingularTable: false,
		},
		Logger: gormlogger.Default.LogMode(cfg.LogLevel),
	})
	if err != nil {
		log.Error().
			Str("error_code", "database.connect").
			Err(err).
			Msg("unable to connect to database")
		return nil, err
	}

	if len(cfg.ReplicaURLs) > 0 {
		replicas := make([]gorm.Dialector, 0, len(cfg.ReplicaURLs))
		for _, dsn := range cfg.ReplicaURLs {
			replicas = append(replicas, postgres.Open(dsn))
		}
		resolver := dbresolver.Register(dbresolver.Config{
			Replicas: replicas,
			Policy:   dbresolver.RandomPolicy{},
		}).
			SetMaxIdleConns(cfg.MaxIdle).
			SetMaxOpenConns(cfg.MaxOpen).
			SetConnMaxLifetime(cfg.MaxLifetime)
		if err := db.Use(resolver); err != nil {
			return nil, err
		}
		log.Info().Int("replicas", len(replicas)).Msg("read replicas registered")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	sqlDB.SetMaxOpenConns(cfg.MaxOpen)
	sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info().Msg("Successfully connected to database")
	return db, nil
}

// NewDB connects with the default pool settings.
func NewDB(dsn string, replicas ...string) (*gorm.DB, error) {
	var replicaURLs []string
	for _, r := range replicas {
		if r != "" {
			replicaURLs = append(replicaURLs, r)
		}
	}
	return Connect(Config{
		DatabaseURL: dsn,
		ReplicaURLs: replicaURLs,
		MaxIdle:     10,
		MaxOpen:     25,
		MaxLifetime: 1 * time.Hour,
		LogLevel:    gormlogger.Silent,
	})
}
