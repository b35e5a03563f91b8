package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"device-session-gate/internal/device/service"
)

// ResponseError is the JSON body of every failed device request.
type ResponseError struct {
	Error             string     `json:"error"`
	Code              string     `json:"code"`
	LoggedOutAt       *time.Time `json:"logged_out_at,omitempty"`
	CooldownRemaining *int       `json:"cooldown_remaining,omitempty"`
	Message           string     `json:"message,omitempty"`
}

// statusFor maps a service error kind to its HTTP status.
func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

// respondWithError writes err as a ResponseError. Errors that did not come from the device
// services are reported as unavailable without leaking their text.
func respondWithError(c *gin.Context, logger *zap.Logger, err error) {
	svcErr, ok := service.AsError(err)
	if !ok {
		logger.Error("device request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, ResponseError{
			Error: "Device store unavailable, retry later",
			Code:  service.CodeUnavailable,
		})
		return
	}

	status := statusFor(svcErr.Kind)
	if status >= http.StatusInternalServerError {
		logger.Error("device request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	body := ResponseError{
		Error:             svcErr.Message,
		Code:              svcErr.Code,
		LoggedOutAt:       svcErr.LoggedOutAt,
		CooldownRemaining: svcErr.CooldownRemainingSeconds,
	}
	if svcErr.CooldownRemainingSeconds != nil {
		body.Message = fmt.Sprintf("This device was logged out because you logged in from another device. "+
			"Please wait %d seconds before logging in again.", *svcErr.CooldownRemainingSeconds)
	}
	c.JSON(status, body)
}
