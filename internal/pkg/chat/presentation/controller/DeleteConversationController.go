package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/usecase"
)

// DeleteConversationController handles DELETE /conversations/:id.
type DeleteConversationController struct {
	UC *usecase.DeleteConversationUseCase
}

func NewDeleteConversationController(uc *usecase.DeleteConversationUseCase) *DeleteConversationController {
	return &DeleteConversationController{UC: uc}
}

func (h *DeleteConversationController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		id := c.Param("id")
		if err := h.UC.Execute(c.Request.Context(), id, userID); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "deleted": true})
	}
}
