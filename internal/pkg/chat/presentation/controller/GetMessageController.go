package controller

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/usecase"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/presentation/dto"
)

// GetMessageController handles GET /messages/:conversationId?before=&limit=.
type GetMessageController struct {
	UC *usecase.GetMessageUseCase
}

func NewGetMessageController(uc *usecase.GetMessageUseCase) *GetMessageController {
	return &GetMessageController{UC: uc}
}

func (h *GetMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		in := usecase.GetMessageInput{ConversationID: c.Param("conversationId"), RequesterID: userID}

		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				badRequest(c, "limit must be a positive integer")
				return
			}
			in.Limit = n
		}
		if v := c.Query("before"); v != "" {
			ts, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				badRequest(c, "before must be an RFC3339 timestamp")
				return
			}
			in.Before = &ts
		}

		view, err := h.UC.Execute(c.Request.Context(), in)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.FromMessagePage(view.Messages, view.HasMore, view.Senders))
	}
}
