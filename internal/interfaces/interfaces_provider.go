package interfaces

import (
	"context"
	"errors"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"jan-server/services/chat-api/internal/interfaces/httpserver"
	"jan-server/services/chat-api/internal/interfaces/httpserver/handlers"
	"jan-server/services/chat-api/internal/interfaces/httpserver/routes"
)

// ProvideReadinessChecks probes the backends that are configured.
func ProvideReadinessChecks(db *gorm.DB, client redis.UniversalClient) map[string]httpserver.ReadinessCheck {
	checks := map[string]httpserver.ReadinessCheck{}
	if db != nil {
		checks["database"] = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return errors.Join(errors.New("redis ping failed"), err)
			}
			return nil
		}
	}
	return checks
}

var InterfacesProvider = wire.NewSet(
	handlers.HandlerProvider,
	routes.RouteProvider,
	ProvideReadinessChecks,
	httpserver.NewHttpServer,
	httpserver.NewMetricsServer,
)
