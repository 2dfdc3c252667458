package api

import (
	"errors"
	"net/http"
	"strconv"

	"escalafin-messaging/internal/conversation"
	"escalafin-messaging/internal/notification"
	"escalafin-messaging/internal/scheduler"
	"escalafin-messaging/internal/whatsapp"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errInvalidID = errors.New("invalid id")

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var perr *whatsapp.ProviderError
	switch {
	case errors.Is(err, whatsapp.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.As(err, &perr):
		return http.StatusBadGateway
	case errors.Is(err, conversation.ErrNotFound),
		errors.Is(err, conversation.ErrClientNotFound),
		errors.Is(err, notification.ErrClientNotFound),
		errors.Is(err, scheduler.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrNotPending):
		return http.StatusConflict
	case errors.Is(err, whatsapp.ErrInvalidRequest),
		errors.Is(err, conversation.ErrInvalidPhone),
		errors.Is(err, scheduler.ErrInvalid),
		errors.Is(err, errInvalidID):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, log *zap.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func idParam(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errInvalidID
	}
	return uint(id), nil
}

// page reads limit and offset query parameters; invalid values fall back to zero so the
// stores apply their defaults.
func page(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return limit, max(offset, 0)
}
