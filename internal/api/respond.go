package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"aksara/internal/auth"
	"aksara/internal/service/assistant"
	"aksara/internal/worker"
)

const busyMessage = "server is busy, please retry"

func respondOK(c *gin.Context, status int, message string, data any) {
	body := gin.H{"message": message}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"message": message,
		"error":   gin.H{"error_code": status},
	})
}

// respondErr maps a domain error onto its HTTP status. Unknown errors are logged and hidden.
func (h *Handler) respondErr(c *gin.Context, err error) {
	status, message := errorStatus(err)
	if status == http.StatusInternalServerError || status == http.StatusBadGateway {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err))
	}
	respondError(c, status, message)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, worker.ErrDispatcherBusy):
		return http.StatusTooManyRequests, busyMessage
	case errors.Is(err, worker.ErrModelFailed):
		return http.StatusBadGateway, "failed to get a reply from the language model"
	case errors.Is(err, worker.ErrJobCancelled):
		return http.StatusConflict, err.Error()
	case errors.Is(err, worker.ErrDispatcherClosed):
		return http.StatusServiceUnavailable, "server is shutting down"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	case errors.Is(err, assistant.ErrUserNotFound),
		errors.Is(err, assistant.ErrConversationNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, assistant.ErrInvalidCredentials),
		errors.Is(err, assistant.ErrInactiveUser),
		errors.Is(err, assistant.ErrSelfDelete),
		errors.Is(err, assistant.ErrInvalidRole),
		errors.Is(err, assistant.ErrUsernameRequired),
		errors.Is(err, assistant.ErrUsernameTaken),
		errors.Is(err, assistant.ErrEmailTaken),
		errors.Is(err, assistant.ErrInvalidEmail),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrPasswordTooLong):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrTokenRequired),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, err.Error()
	}
	return http.StatusInternalServerError, "internal server error"
}
