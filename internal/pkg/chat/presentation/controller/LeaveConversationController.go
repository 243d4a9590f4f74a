package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/usecase"
)

// LeaveConversationController handles POST /conversations/:id/leave.
type LeaveConversationController struct {
	UC *usecase.LeaveConversationUseCase
}

func NewLeaveConversationController(uc *usecase.LeaveConversationUseCase) *LeaveConversationController {
	return &LeaveConversationController{UC: uc}
}

func (h *LeaveConversationController) Handle() gin.HandlerFunc {
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
		c.JSON(http.StatusOK, gin.H{"id": id, "left": true})
	}
}
