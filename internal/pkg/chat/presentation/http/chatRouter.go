package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dannybszn/doris-referral/internal/config"
	"github.com/dannybszn/doris-referral/internal/infrastructure/realtime"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/usecase"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/presentation/controller"
	users "github.com/dannybszn/doris-referral/internal/repository/port"
)

// Deps is everything the chat HTTP layer needs from the composition root.
type Deps struct {
	Auth           *config.AuthConfig
	RequestTimeout time.Duration
	Log            *zap.Logger

	Manager  *usecase.ConversationManager
	Messages *usecase.MessageStore
	Send     *usecase.SendMessageUseCase
	Users    users.UserDirectory

	Router *realtime.Router
	Stream realtime.Options
	Health map[string]controller.Pinger
}

// RegisterRoutes registers chat-related HTTP endpoints under the given router group.
// It constructs per-endpoint controllers and binds them directly to routes.
func RegisterRoutes(g *gin.RouterGroup, d Deps) {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	m := d.Manager
	markRead := usecase.NewMarkReadUseCase(m, d.Messages)

	g.GET("/healthz", controller.NewHealthController(d.Health).Handle())

	// Streams authenticate with ?token= and run for the life of the client.
	streams := g.Group("/messages", Authenticate(d.Auth, true))
	// GET /api/v1/messages/sse -> Server-Sent Events feed
	streams.GET("/sse", controller.NewEventStreamController(d.Router, d.Stream, d.Log).Handle())
	// GET /api/v1/messages/ws -> websocket feed, also accepts message/read frames
	streams.GET("/ws", controller.NewChatSocketController(d.Router, d.Send, markRead, d.Stream, d.Log).Handle())

	api := g.Group("", Authenticate(d.Auth, false), Timeout(d.RequestTimeout))

	api.GET("/conversations", controller.NewListConversationController(usecase.NewListConversationUseCase(m, d.Users)).Handle())
	api.POST("/conversations", controller.NewCreateConversationController(usecase.NewCreateConversationUseCase(m, d.Users)).Handle())
	api.GET("/conversations/:id", controller.NewGetConversationController(usecase.NewGetConversationUseCase(m, d.Users)).Handle())
	api.DELETE("/conversations/:id", controller.NewDeleteConversationController(usecase.NewDeleteConversationUseCase(m)).Handle())
	api.POST("/conversations/:id/leave", controller.NewLeaveConversationController(usecase.NewLeaveConversationUseCase(m)).Handle())

	api.GET("/messages/:conversationId", controller.NewGetMessageController(usecase.NewGetMessageUseCase(m, d.Messages, d.Users)).Handle())
	api.POST("/messages", controller.NewSendMessageController(d.Send).Handle())
	api.POST("/messages/:conversationId/read", controller.NewMarkReadController(markRead).Handle())

	api.GET("/talents", controller.NewListTalentController(usecase.NewListTalentUseCase(m, d.Users)).Handle())
}
