package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/usecase"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/presentation/dto"
)

// CreateConversationController handles POST /conversations. It answers 201
// for a new conversation and 200 when the pair already had one.
type CreateConversationController struct {
	UC *usecase.CreateConversationUseCase
}

func NewCreateConversationController(uc *usecase.CreateConversationUseCase) *CreateConversationController {
	return &CreateConversationController{UC: uc}
}

func (h *CreateConversationController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		var req dto.CreateConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindFailed(c, err, "recipientId is required")
			return
		}
		out, err := h.UC.Execute(c.Request.Context(), usecase.CreateConversationInput{
			InitiatorID: userID,
			RecipientID: req.RecipientID,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		status := http.StatusOK
		if out.Created {
			status = http.StatusCreated
		}
		c.JSON(status, dto.FromConversation(out.Conversation, out.Participants))
	}
}
