package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/usecase"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/presentation/dto"
)

// GetConversationController handles GET /conversations/:id.
type GetConversationController struct {
	UC *usecase.GetConversationUseCase
}

func NewGetConversationController(uc *usecase.GetConversationUseCase) *GetConversationController {
	return &GetConversationController{UC: uc}
}

func (h *GetConversationController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		view, err := h.UC.Execute(c.Request.Context(), c.Param("id"), userID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.FromConversation(view.Conversation, view.Participants))
	}
}
