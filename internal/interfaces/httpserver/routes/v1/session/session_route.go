package session

import (
	"github.com/gin-gonic/gin"

	"jan-server/services/chat-api/internal/interfaces/httpserver/handlers/sessionhandler"
)

type SessionRoute struct {
	handler *sessionhandler.SessionHandler
}

func NewSessionRoute(handler *sessionhandler.SessionHandler) *SessionRoute {
	return &SessionRoute{handler: handler}
}

func (route *SessionRoute) RegisterRouter(router gin.IRouter) {
	sessions := router.Group("/sessions")
	sessions.POST("", route.handler.CreateSession)

	scoped := sessions.Group("/:session_id", route.handler.SessionMiddleware())
	scoped.GET("", route.handler.GetSession)
	scoped.POST("/turns", route.handler.SendTurn)
	scoped.POST("/regenerate", route.handler.Regenerate)
	scoped.POST("/conversations", route.handler.NewConversation)
	scoped.GET("/conversations", route.handler.ListConversations)
	scoped.POST("/conversations/:conv_id/select", route.handler.SelectConversation)
	scoped.DELETE("/conversations/:conv_id", route.handler.DeleteConversation)
	scoped.PUT("/model", route.handler.SelectModel)
	scoped.GET("/quota", route.handler.Quota)
}
