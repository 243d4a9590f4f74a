package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dannybszn/doris-referral/internal/infrastructure/realtime"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/presentation/dto"
)

// EventStreamController serves the Server-Sent Events feed at
// GET /messages/sse?token=.
type EventStreamController struct {
	Router *realtime.Router
	Opts   realtime.Options
	Log    *zap.Logger
}

func NewEventStreamController(router *realtime.Router, opts realtime.Options, log *zap.Logger) *EventStreamController {
	return &EventStreamController{Router: router, Opts: opts, Log: log}
}

func (h *EventStreamController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		t, err := realtime.NewSSETransport(c.Writer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "streaming unsupported", Code: dto.CodeInternal})
			return
		}
		subscribe(c.Request.Context(), h.Router, realtime.NewConnection(userID, t, h.Opts), h.Log)
	}
}
