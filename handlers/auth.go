package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/device-auth/internal/deviceflow"
	"github.com/gogotex/gogotex/backend/device-auth/internal/models"
	"github.com/gogotex/gogotex/backend/device-auth/internal/provider"
	"github.com/gogotex/gogotex/backend/device-auth/internal/tokens"
	"github.com/gogotex/gogotex/backend/device-auth/internal/users"
	"github.com/gogotex/gogotex/backend/device-auth/pkg/logger"
	"github.com/gogotex/gogotex/backend/device-auth/pkg/middleware"
)

// DeviceFlow is what the handler needs from the device-flow service
type DeviceFlow interface {
	Start(ctx context.Context) (*deviceflow.StartResult, error)
	Complete(ctx context.Context, req deviceflow.CompleteRequest) (*deviceflow.CompleteResult, error)
}

// UserLookup loads stored users for /api/v1/me
type UserLookup interface {
	Get(ctx context.Context, id string) (*models.User, error)
}

// TokenRequest is accepted as JSON or form body. Exactly one field is used;
// access_token wins when both are set.
type TokenRequest struct {
	DeviceCode  string `json:"device_code" form:"device_code"`
	AccessToken string `json:"access_token" form:"access_token"`
}

// DeviceAuthHandler holds dependencies
type DeviceAuthHandler struct {
	flows DeviceFlow
	users UserLookup
}

func NewDeviceAuthHandler(flows DeviceFlow, u UserLookup) *DeviceAuthHandler {
	return &DeviceAuthHandler{flows: flows, users: u}
}

// Register routes under /auth/device. mw runs before every route (rate limiting).
func (h *DeviceAuthHandler) Register(rg *gin.RouterGroup, mw ...gin.HandlerFunc) {
	a := rg.Group("/auth/device", mw...)
	a.POST("/code", h.StartDeviceFlow)
	a.POST("/token", h.CompleteDeviceFlow)
}

// RegisterAPI registers the authenticated user endpoint on rg
func (h *DeviceAuthHandler) RegisterAPI(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	rg.GET("/me", auth, h.Me)
}

// StartDeviceFlow requests a device code from the provider and returns what the
// client shows to the user.
func (h *DeviceAuthHandler) StartDeviceFlow(c *gin.Context) {
	res, err := h.flows.Start(c.Request.Context())
	if err != nil {
		status, body := errorResponse(err)
		logger.Errorf("device flow start failed: %v", err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CompleteDeviceFlow exchanges a finished device code (or a provider access
// token) for a session token.
func (h *DeviceAuthHandler) CompleteDeviceFlow(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.flows.Complete(c.Request.Context(), deviceflow.CompleteRequest{
		DeviceCode:  req.DeviceCode,
		AccessToken: req.AccessToken,
	})
	if err != nil {
		status, body := errorResponse(err)
		if status >= http.StatusInternalServerError {
			logger.Errorf("device flow completion failed: %v", err)
		}
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":        res.User,
		"accessToken": res.Session.AccessToken,
		"tokenType":   res.Session.TokenType,
		"expiresAt":   res.Session.ExpiresAt,
	})
}

// Me returns the stored user behind the session token
func (h *DeviceAuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}
	u, err := h.users.Get(c.Request.Context(), claims.Subject)
	if err != nil {
		logger.Errorf("user lookup failed for %s: %v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return
	}
	if u == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// errorResponse maps device-flow errors onto HTTP status codes
func errorResponse(err error) (int, gin.H) {
	var (
		transport  *provider.TransportError
		protocol   *provider.ProtocolError
		resolution *users.ResolutionError
		signing    *tokens.SigningError
	)
	switch {
	case provider.IsPending(err):
		return http.StatusAccepted, gin.H{"status": "authorization_pending"}
	case errors.Is(err, provider.ErrAccessDenied):
		return http.StatusForbidden, gin.H{"error": "access_denied"}
	case errors.Is(err, deviceflow.ErrUnknownFlow):
		return http.StatusNotFound, gin.H{"error": "unknown or expired device code"}
	case errors.Is(err, deviceflow.ErrMissingCredential):
		return http.StatusBadRequest, gin.H{"error": err.Error()}
	case errors.Is(err, deviceflow.ErrFlowExists):
		return http.StatusConflict, gin.H{"error": "device code already pending"}
	case errors.As(err, &transport), errors.As(err, &protocol):
		return http.StatusBadGateway, gin.H{"error": "identity provider error", "details": err.Error()}
	case errors.As(err, &resolution):
		return http.StatusInternalServerError, gin.H{"error": "user resolution failed"}
	case errors.As(err, &signing):
		return http.StatusInternalServerError, gin.H{"error": "failed to create session token"}
	default:
		return http.StatusInternalServerError, gin.H{"error": "internal error"}
	}
}
