package http

import (
	"net/http"
	"strings"
	"time"

	"vidcall/internal/core/domain"
	"vidcall/internal/core/ports"
	"vidcall/pkg/errors"

	"github.com/gin-gonic/gin"
)

// TokenHandler issues signaling tokens. Identity is self-asserted here;
// deployments that need real authentication put an identity provider in
// front of this endpoint or replace it entirely.
type TokenHandler struct {
	authService ports.AuthService
	tokenTTL    time.Duration
}

func NewTokenHandler(authService ports.AuthService, tokenTTL time.Duration) *TokenHandler {
	return &TokenHandler{
		authService: authService,
		tokenTTL:    tokenTTL,
	}
}

func (h *TokenHandler) SetupRoutes(router *gin.Engine) {
	router.POST("/api/v1/token", h.IssueToken)
}

type TokenRequest struct {
	PeerID string `json:"peer_id" binding:"required,min=1,max=128"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	PeerID    string `json:"peer_id"`
	ExpiresIn int64  `json:"expires_in"`
}

func (h *TokenHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	req.PeerID = strings.TrimSpace(req.PeerID)
	if req.PeerID == "" {
		c.Error(errors.NewInvalidInputError("peer_id must not be blank"))
		return
	}

	token, err := h.authService.GenerateToken(domain.PeerID(req.PeerID))
	if err != nil {
		c.Error(errors.NewInternalError("failed to generate token"))
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		PeerID:    req.PeerID,
		ExpiresIn: int64(h.tokenTTL.Seconds()),
	})
}
