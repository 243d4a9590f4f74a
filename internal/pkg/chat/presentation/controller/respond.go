package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/usecase"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/presentation/dto"
)

// Context keys set by the auth middleware.
const (
	UserIDKey = "userID"
	RoleKey   = "role"
)

// currentUser returns the authenticated user id, writing a 401 when absent.
func currentUser(c *gin.Context) (string, bool) {
	id := c.GetString(UserIDKey)
	if id == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "authentication required", Code: dto.CodeUnauthorized})
		return "", false
	}
	return id, true
}

// errorResponse maps a use case error to a status and body.
func errorResponse(err error) (int, dto.ErrorResponse) {
	var modErr *chat.ModerationError
	switch {
	case errors.As(err, &modErr):
		return http.StatusBadRequest, dto.ErrorResponse{Error: modErr.Warning(), Code: dto.CodeModerationFlagged, Warning: modErr.Warning()}
	case errors.Is(err, chat.ErrModeration):
		return http.StatusBadRequest, dto.ErrorResponse{Error: chat.ModerationWarning, Code: dto.CodeModerationFlagged, Warning: chat.ModerationWarning}
	case errors.Is(err, chat.ErrUnauthorized):
		return http.StatusUnauthorized, dto.ErrorResponse{Error: "authentication required", Code: dto.CodeUnauthorized}
	case errors.Is(err, chat.ErrForbidden):
		return http.StatusForbidden, dto.ErrorResponse{Error: publicMessage(err), Code: dto.CodeForbidden}
	case errors.Is(err, chat.ErrNotFound):
		return http.StatusNotFound, dto.ErrorResponse{Error: publicMessage(err), Code: dto.CodeNotFound}
	case errors.Is(err, chat.ErrValidation):
		return http.StatusBadRequest, dto.ErrorResponse{Error: publicMessage(err), Code: dto.CodeValidationFailed}
	case errors.Is(err, usecase.ErrPersistence), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, dto.ErrorResponse{Error: "temporarily unavailable, retry", Code: dto.CodeUnavailable}
	default:
		return http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error", Code: dto.CodeInternal}
	}
}

func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	status, body := errorResponse(err)
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{Error: msg, Code: dto.CodeBadRequest})
}

// bindFailed answers a failed ShouldBindJSON. A body that is not the expected
// JSON shape is bad_request; a missing required field is validation_failed.
func bindFailed(c *gin.Context, err error, missing string) {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		badRequest(c, "request body must be a JSON object")
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{Error: missing, Code: dto.CodeValidationFailed})
}

// publicMessage drops the package prefix and the class text so clients see
// only the specific cause, e.g. "conversation not found".
func publicMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		msg = msg[i+2:]
	}
	return msg
}
