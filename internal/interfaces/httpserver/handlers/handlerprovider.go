package handlers

import (
	"github.com/google/wire"

	"jan-server/services/chat-api/internal/interfaces/httpserver/handlers/sessionhandler"
)

var HandlerProvider = wire.NewSet(
	sessionhandler.NewSessionHandler,
)
