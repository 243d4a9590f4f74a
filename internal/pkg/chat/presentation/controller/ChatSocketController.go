package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dannybszn/doris-referral/internal/infrastructure/realtime"
	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/usecase"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/presentation/dto"
)

// ChatSocketController handles the websocket endpoint for realtime chat
// traffic. Besides the event feed it accepts "message" and "read" frames.
type ChatSocketController struct {
	Router          *realtime.Router
	SendMessageUC   *usecase.SendMessageUseCase
	MarkReadUC      *usecase.MarkReadUseCase
	Opts            realtime.Options
	Log             *zap.Logger
	inflightTimeout time.Duration
}

func NewChatSocketController(router *realtime.Router, send *usecase.SendMessageUseCase, markRead *usecase.MarkReadUseCase, opts realtime.Options, log *zap.Logger) *ChatSocketController {
	return &ChatSocketController{
		Router:          router,
		SendMessageUC:   send,
		MarkReadUC:      markRead,
		Opts:            opts,
		Log:             log,
		inflightTimeout: 5 * time.Second,
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Auth rides on the token query parameter, never on cookies.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type inboundFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

const maxFrameSize = 64 << 10

// Handle upgrades HTTP connections to websocket and processes frames until
// the client disconnects.
func (ctl *ChatSocketController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response.
			return
		}
		conn := realtime.NewConnection(userID, realtime.NewWebSocketTransport(ws), ctl.Opts)

		readWait := 2 * ctl.pingPeriod()
		ws.SetReadLimit(maxFrameSize)
		_ = ws.SetReadDeadline(time.Now().Add(readWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(readWait))
		})

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		readerDone := make(chan struct{})
		go func() {
			defer close(readerDone)
			defer conn.Close(realtime.CloseNormal, "session closed")
			for {
				_, data, err := ws.ReadMessage()
				if err != nil {
					if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
						!errors.Is(err, websocket.ErrCloseSent) {
						ctl.Log.Debug("websocket read ended", zap.String("user_id", userID), zap.Error(err))
					}
					return
				}
				ctl.dispatch(ctx, conn, data)
			}
		}()

		subscribe(ctx, ctl.Router, conn, ctl.Log)
		conn.Close(realtime.CloseNormal, "session closed")
		<-readerDone
	}
}

func (ctl *ChatSocketController) pingPeriod() time.Duration {
	if ctl.Opts.PingPeriod > 0 {
		return ctl.Opts.PingPeriod
	}
	return 30 * time.Second
}

func (ctl *ChatSocketController) dispatch(ctx context.Context, conn *realtime.Connection, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		sendEvent(conn, dto.Event{Type: dto.EventError, Code: dto.CodeBadRequest, Error: "invalid payload"})
		return
	}
	if frame.ConversationID == "" {
		sendEvent(conn, dto.Event{Type: dto.EventError, Code: dto.CodeValidationFailed, Error: "conversationId is required"})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, ctl.inflightTimeout)
	defer cancel()

	switch frame.Type {
	case "message":
		out, err := ctl.SendMessageUC.Execute(ctx, usecase.SendMessageInput{
			ConversationID: frame.ConversationID,
			SenderID:       conn.UserID,
			Content:        frame.Content,
		})
		if err != nil {
			sendError(conn, err)
			return
		}
		// Echo to the sender; everyone else hears about it through the bus.
		msg := dto.FromMessage(out.Message, map[string]chat.User{out.Sender.ID: out.Sender})
		sendEvent(conn, dto.Event{Type: dto.EventMessage, ConversationID: frame.ConversationID, Message: &msg})
	case "read":
		if _, err := ctl.MarkReadUC.Execute(ctx, frame.ConversationID, conn.UserID); err != nil {
			sendError(conn, err)
		}
	default:
		sendEvent(conn, dto.Event{Type: dto.EventError, Code: dto.CodeBadRequest, Error: "unknown frame type"})
	}
}
