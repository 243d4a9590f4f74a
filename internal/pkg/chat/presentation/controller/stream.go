package controller

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/dannybszn/doris-referral/internal/infrastructure/realtime"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/presentation/dto"
)

// subscribe attaches conn, greets the client and pumps events until the
// stream ends. It always detaches before returning.
func subscribe(ctx context.Context, router *realtime.Router, conn *realtime.Connection, log *zap.Logger) {
	router.Attach(conn)
	defer router.Detach(conn)

	sendEvent(conn, dto.Event{Type: dto.EventConnected, UserID: conn.UserID})
	if err := conn.Run(ctx); err != nil {
		log.Debug("stream ended",
			zap.String("user_id", conn.UserID),
			zap.String("connection_id", conn.ID),
			zap.Error(err))
	}
}

func sendEvent(conn *realtime.Connection, ev dto.Event) {
	if b, err := json.Marshal(ev); err == nil {
		_ = conn.Send(b)
	}
}

func sendError(conn *realtime.Connection, err error) {
	_, body := errorResponse(err)
	sendEvent(conn, dto.Event{Type: dto.EventError, Code: body.Code, Error: body.Error})
}
