package v1

import (
	"github.com/gin-gonic/gin"

	"jan-server/services/chat-api/internal/interfaces/httpserver/routes/v1/session"
)

type V1Route struct {
	session *session.SessionRoute
}

func NewV1Route(session *session.SessionRoute) *V1Route {
	return &V1Route{session: session}
}

func (v1Route *V1Route) RegisterRouter(router gin.IRouter) {
	v1 := router.Group("/v1")
	v1Route.session.RegisterRouter(v1)
}
