// Package handler exposes the device services over HTTP.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"device-session-gate/internal/device/domain"
	"device-session-gate/internal/device/service"
	"device-session-gate/internal/telemetry"
)

const (
	// HeaderAPIKey and HeaderDeviceID carry the credential pair on status polls.
	HeaderAPIKey   = "x-api-key"
	HeaderDeviceID = "x-device-id"

	defaultEventLimit = 50
	maxEventLimit     = 500
)

// EventLister reads the persisted session events of an account, newest first.
type EventLister interface {
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*telemetry.SessionEvent, error)
}

// Handler serves the device registration, status and admin endpoints.
type Handler struct {
	registration *service.RegistrationService
	status       *service.StatusReporter
	activation   *service.ActivationService
	events       EventLister
	logger       *zap.Logger
}

// NewHandler returns a Handler. activation and events may be nil when the admin surface is disabled.
func NewHandler(
	registration *service.RegistrationService,
	status *service.StatusReporter,
	activation *service.ActivationService,
	events EventLister,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		registration: registration,
		status:       status,
		activation:   activation,
		events:       events,
		logger:       logger.Named("device_handler"),
	}
}

// deviceRequest is the body of register and activate.
type deviceRequest struct {
	Email    string `json:"email"`
	DeviceID string `json:"device_id"`
}

type deviceData struct {
	APIKey    string    `json:"api_key"`
	DeviceID  string    `json:"device_id"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type registerResponse struct {
	Success               bool       `json:"success"`
	Message               string     `json:"message"`
	Data                  deviceData `json:"data"`
	LoggedOutOtherDevices int        `json:"logged_out_other_devices,omitempty"`
	ActivationTransferred bool       `json:"activation_transferred,omitempty"`
}

type statusResponse struct {
	Success   bool      `json:"success"`
	IsActive  bool      `json:"is_active"`
	Email     string    `json:"email"`
	DeviceID  string    `json:"device_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type activateResponse struct {
	Success   bool      `json:"success"`
	Email     string    `json:"email"`
	DeviceID  string    `json:"device_id"`
	IsActive  bool      `json:"is_active"`
	ExpiresAt time.Time `json:"expires_at"`
}

type eventsResponse struct {
	Success bool                      `json:"success"`
	Events  []*telemetry.SessionEvent `json:"events"`
}

// Register logs a device in for an account.
// POST /api/v1/auth/register
func (h *Handler) Register(c *gin.Context) {
	req := h.bindDeviceRequest(c)
	res, err := h.registration.Login(c.Request.Context(), req.Email, req.DeviceID)
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, registerResponse{
		Success:               true,
		Message:               loginMessage(res),
		Data:                  toDeviceData(res.Device),
		LoggedOutOtherDevices: res.SiblingsLoggedOut,
		ActivationTransferred: res.ActivationTransferred,
	})
}

// CheckStatus reports the caller's activation state. It has no side effects.
// GET /api/v1/auth/check-status
func (h *Handler) CheckStatus(c *gin.Context) {
	res, err := h.status.Status(c.Request.Context(), c.GetHeader(HeaderAPIKey), c.GetHeader(HeaderDeviceID))
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{
		Success:   true,
		IsActive:  res.IsActive,
		Email:     res.AccountID,
		DeviceID:  res.DeviceID,
		ExpiresAt: res.ExpiresAt,
	})
}

// Activate approves one device record.
// POST /api/v1/admin/devices/activate
func (h *Handler) Activate(c *gin.Context) {
	req := h.bindDeviceRequest(c)
	d, err := h.activation.Activate(c.Request.Context(), req.Email, req.DeviceID)
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, activateResponse{
		Success:   true,
		Email:     d.AccountID,
		DeviceID:  d.DeviceID,
		IsActive:  d.IsActive,
		ExpiresAt: d.ExpiresAt,
	})
}

// ListEvents returns the newest session events of an account.
// GET /api/v1/admin/accounts/:email/events?limit=N
func (h *Handler) ListEvents(c *gin.Context) {
	accountID := domain.NormalizeAccountID(c.Param("email"))
	if accountID == "" {
		c.JSON(http.StatusBadRequest, ResponseError{Error: "Email is required", Code: service.CodeMissingFields})
		return
	}
	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, ResponseError{Error: "limit must be a positive integer", Code: "invalid-limit"})
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := h.events.ListByAccount(c.Request.Context(), accountID, limit)
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}
	if events == nil {
		events = []*telemetry.SessionEvent{}
	}
	c.JSON(http.StatusOK, eventsResponse{Success: true, Events: events})
}

// bindDeviceRequest decodes the body. A malformed body is treated like an empty one and the service
// reports the missing fields; the bind error is logged at debug level.
func (h *Handler) bindDeviceRequest(c *gin.Context) deviceRequest {
	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("device request body not bound",
			zap.String("path", c.FullPath()), zap.Error(err))
	}
	return req
}

func loginMessage(res *service.LoginResult) string {
	switch {
	case res.SiblingsLoggedOut > 0:
		return fmt.Sprintf("Logged in successfully. %d other device(s) logged out.", res.SiblingsLoggedOut)
	case res.Created:
		return "Device registered successfully"
	default:
		return "Device logged in successfully"
	}
}

func toDeviceData(d domain.PublicDevice) deviceData {
	return deviceData{
		APIKey:    d.APIKey,
		DeviceID:  d.DeviceID,
		Email:     d.AccountID,
		IsActive:  d.IsActive,
		CreatedAt: d.CreatedAt,
		ExpiresAt: d.ExpiresAt,
	}
}
