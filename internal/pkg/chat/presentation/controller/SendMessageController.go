package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/usecase"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/presentation/dto"
)

// SendMessageController handles POST /messages (one controller per endpoint).
type SendMessageController struct {
	UC *usecase.SendMessageUseCase
}

func NewSendMessageController(uc *usecase.SendMessageUseCase) *SendMessageController {
	return &SendMessageController{UC: uc}
}

func (h *SendMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		var req dto.SendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindFailed(c, err, "conversationId is required")
			return
		}
		out, err := h.UC.Execute(c.Request.Context(), usecase.SendMessageInput{
			ConversationID: req.ConversationID,
			SenderID:       userID,
			Content:        req.Content,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, dto.FromMessage(out.Message, map[string]chat.User{out.Sender.ID: out.Sender}))
	}
}
