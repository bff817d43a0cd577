package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ocintel/dispatch/pkg/conversation"
	"github.com/ocintel/dispatch/pkg/escalation"
	"github.com/ocintel/dispatch/pkg/qa"
	"github.com/ocintel/dispatch/pkg/services"
)

// mapServiceError maps service-layer errors to an HTTP status and message.
func mapServiceError(err error) (int, string) {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return http.StatusBadRequest, validErr.Error()
	}
	if errors.Is(err, conversation.ErrUnknownPrompt) {
		return http.StatusBadRequest, err.Error()
	}
	if errors.Is(err, services.ErrNotFound) {
		return http.StatusNotFound, "resource not found"
	}
	if errors.Is(err, escalation.ErrNotAuthorized) || errors.Is(err, qa.ErrNotAuthorized) {
		return http.StatusForbidden, err.Error()
	}
	if errors.Is(err, services.ErrSessionCompleted) {
		return http.StatusConflict, "session is already completed"
	}
	if errors.Is(err, services.ErrConflict) {
		return http.StatusConflict, "conflicting state change"
	}
	if errors.Is(err, services.ErrAlreadyExists) {
		return http.StatusConflict, "resource already exists"
	}
	if errors.Is(err, escalation.ErrNoMatchingRule) {
		return http.StatusUnprocessableEntity, err.Error()
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return http.StatusInternalServerError, "internal server error"
}

// respondError writes the mapped error response and aborts the handler chain.
func respondError(c *gin.Context, err error) {
	status, msg := mapServiceError(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
