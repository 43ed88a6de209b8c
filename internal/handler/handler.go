// Package handler exposes the broker workflows over HTTP. Handlers are
// thin: bind, delegate, map the result status.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/broker"
)

// Authorizer is the broker surface the HTTP layer consumes.
type Authorizer interface {
	AuthorizeAndProvision(ctx context.Context, req broker.ProvisionRequest) (*broker.AuthResult, error)
	CheckSession(ctx context.Context, username, sessionID string) (*broker.AuthResult, error)
	TerminateSession(ctx context.Context, sessionID string) error
	ReconcileAllUsers(ctx context.Context) (*broker.Report, error)
}

type Handler struct {
	broker Authorizer
	log    *zap.Logger
}

func NewHandler(b Authorizer, log *zap.Logger) *Handler {
	return &Handler{broker: b, log: log}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/authorization", h.Authorization)
	r.POST("/isSessionActive", h.IsSessionActive)
	r.POST("/logout", h.Logout)
	r.POST("/reconcile", h.Reconcile)
	r.GET("/health", h.Health)
}

type sessionRequest struct {
	KeycloakUsername  string `json:"keycloakUsername"`
	KeycloakSessionID string `json:"keycloakSessionId"`
}

// Authorization runs the full authorize-or-provision workflow.
func (h *Handler) Authorization(c *gin.Context) {
	var req broker.ProvisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	result, err := h.broker.AuthorizeAndProvision(c.Request.Context(), req)
	if err != nil {
		h.log.Error("authorization workflow failed",
			zap.String("login", req.Login),
			zap.Error(err),
		)
	}

	if result.Status != http.StatusOK {
		c.JSON(result.Status, gin.H{"message": result.Message})
		return
	}

	c.JSON(http.StatusOK, gin.H{"dsaAuthObject": result})
}

// IsSessionActive answers whether the Keycloak session is still alive.
func (h *Handler) IsSessionActive(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	result, err := h.broker.CheckSession(c.Request.Context(), req.KeycloakUsername, req.KeycloakSessionID)
	if err != nil {
		h.log.Error("session check failed",
			zap.String("username", req.KeycloakUsername),
			zap.Error(err),
		)
	}

	c.JSON(result.Status, result)
}

// Logout revokes the Keycloak session.
func (h *Handler) Logout(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.broker.TerminateSession(c.Request.Context(), req.KeycloakSessionID); err != nil {
		h.log.Error("session termination failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to terminate session"})
		return
	}

	c.Status(http.StatusOK)
}

// Reconcile triggers a bulk membership sync for all users.
func (h *Handler) Reconcile(c *gin.Context) {
	report, err := h.broker.ReconcileAllUsers(c.Request.Context())
	if err != nil {
		h.log.Error("bulk reconciliation failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

// Health is the liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "running"})
}
