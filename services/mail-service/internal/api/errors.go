package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stoik/mailbridge/internal/logging"
	"github.com/stoik/mailbridge/services/mail-service/internal/mailsync"
)

var errUnauthorized = errors.New("unauthorized")

// statusFor maps service errors onto HTTP status codes and error codes.
func statusFor(err error) (int, string) {
	var connErr *mailsync.ConnectorError
	switch {
	case errors.Is(err, mailsync.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, mailsync.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, mailsync.ErrNoActiveConnection):
		return http.StatusConflict, "no_active_connection"
	case errors.Is(err, mailsync.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.As(err, &connErr):
		return http.StatusBadGateway, "connector_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) abortWithError(c *gin.Context, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", c.FullPath()),
			logging.RequestID(c.GetString(requestIDKey)),
			logging.Err(err))
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}
