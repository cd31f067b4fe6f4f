package routes

import (
	"github.com/google/wire"

	v1 "jan-server/services/chat-api/internal/interfaces/httpserver/routes/v1"
	"jan-server/services/chat-api/internal/interfaces/httpserver/routes/v1/session"
)

var RouteProvider = wire.NewSet(
	v1.NewV1Route,
	session.NewSessionRoute,
)
