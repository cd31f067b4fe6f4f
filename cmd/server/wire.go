//go:build wireinject

package main

import (
	"github.com/google/wire"

	"jan-server/services/chat-api/internal/domain"
	"jan-server/services/chat-api/internal/infrastructure"
	"jan-server/services/chat-api/internal/interfaces"
)

func CreateApplication() (*Application, error) {
	wire.Build(
		domain.ServiceProvider,
		infrastructure.InfrastructureProvider,
		interfaces.InterfacesProvider,
		wire.Struct(new(Application), "*"),
	)
	return nil, nil
}
