package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mikepea/empaccess/pkg/empaccess/access"
	"github.com/mikepea/empaccess/pkg/empaccess/apierr"
	"github.com/mikepea/empaccess/pkg/empaccess/identity"
	"github.com/mikepea/empaccess/pkg/empaccess/logging"
)

// Handler handles authentication requests
type Handler struct {
	tokens       *TokenManager
	authn        Authenticator
	engine       *access.Engine
	defaultGroup string
	logger       *zap.Logger
}

// NewHandler creates a new auth handler. When defaultGroup is set, accounts
// without any active membership are added to it at login.
func NewHandler(tokens *TokenManager, authn Authenticator, engine *access.Engine, defaultGroup string, logger *zap.Logger) *Handler {
	return &Handler{
		tokens:       tokens,
		authn:        authn,
		engine:       engine,
		defaultGroup: defaultGroup,
		logger:       logging.OrNop(logger),
	}
}

// LoginRequest represents the login request body. Username may be
// domain-qualified (DOMAIN\user).
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Profile   *access.Profile `json:"profile"`
}

// Login authenticates, provisions the default group when needed, and
// returns a token with the caller's access profile.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := identity.ResolveAccount(req.Username)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid username"})
		return
	}

	ctx := c.Request.Context()
	if err := h.authn.Authenticate(ctx, account, req.Password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.logger.Info("Login rejected", zap.String("account", account.String()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
			return
		}
		apierr.Respond(c, h.logger, err)
		return
	}

	if h.defaultGroup != "" {
		if _, err := h.engine.Memberships().EnsureDefaultGroup(ctx, account, h.defaultGroup); err != nil {
			if !errors.Is(err, access.ErrNotFound) {
				apierr.Respond(c, h.logger, err)
				return
			}
			h.logger.Warn("Default group missing; account left unprovisioned",
				zap.String("account", account.String()),
				zap.String("group", h.defaultGroup))
		}
	}

	profile, err := h.engine.Profile(ctx, account)
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	token, expiresAt, err := h.tokens.GenerateToken(account.String())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.Set(ContextKeyAccount, account.String())
	c.JSON(http.StatusOK, AuthResponse{Token: token, ExpiresAt: expiresAt, Profile: profile})
}

// Me returns the authenticated account's access profile
func (h *Handler) Me(c *gin.Context) {
	account, exists := GetAccount(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	profile, err := h.engine.Profile(c.Request.Context(), account)
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// Logout handles logout (client-side token invalidation)
func (h *Handler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// RegisterRoutes registers auth routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	rg.POST("/login", h.Login)
	rg.POST("/logout", h.Logout)
	rg.GET("/me", authMiddleware, h.Me)
}
