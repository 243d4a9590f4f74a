package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/usecase"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/presentation/dto"
)

// ListConversationController handles GET /conversations.
type ListConversationController struct {
	UC *usecase.ListConversationUseCase
}

func NewListConversationController(uc *usecase.ListConversationUseCase) *ListConversationController {
	return &ListConversationController{UC: uc}
}

func (h *ListConversationController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		views, err := h.UC.Execute(c.Request.Context(), userID)
		if err != nil {
			writeError(c, err)
			return
		}
		out := make([]dto.Conversation, len(views))
		for i, v := range views {
			out[i] = dto.FromConversation(v.Conversation, v.Participants)
		}
		c.JSON(http.StatusOK, out)
	}
}
