package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/usecase"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/presentation/dto"
)

// ListTalentController handles GET /talents.
type ListTalentController struct {
	UC *usecase.ListTalentUseCase
}

func NewListTalentController(uc *usecase.ListTalentUseCase) *ListTalentController {
	return &ListTalentController{UC: uc}
}

func (h *ListTalentController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		talents, err := h.UC.Execute(c.Request.Context(), userID)
		if err != nil {
			writeError(c, err)
			return
		}
		out := make([]dto.UserSummary, len(talents))
		for i, u := range talents {
			out[i] = dto.FromUser(u)
		}
		c.JSON(http.StatusOK, out)
	}
}
