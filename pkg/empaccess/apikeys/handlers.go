// Package apikeys lets integrating systems query permissions with a
// long-lived key that acts as the account that created it.
package apikeys

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mikepea/empaccess/pkg/empaccess/access"
	"github.com/mikepea/empaccess/pkg/empaccess/apierr"
	"github.com/mikepea/empaccess/pkg/empaccess/auth"
	"github.com/mikepea/empaccess/pkg/empaccess/identity"
	"github.com/mikepea/empaccess/pkg/empaccess/logging"
	"github.com/mikepea/empaccess/pkg/empaccess/models"
)

const (
	// KeyPrefix marks empaccess keys so they are recognisable in logs and config files.
	KeyPrefix = "eak_"
	// KeyBytes is the amount of randomness in a key (32 bytes = 64 hex chars).
	KeyBytes = 32
	// DisplayPrefixLength is how much of a key is kept in clear for identification.
	DisplayPrefixLength = len(KeyPrefix) + 8
	// MaxLifetimeDays bounds ExpiresInDays on creation.
	MaxLifetimeDays = 730

	// lastUsedResolution limits last_used_at writes to one per key per minute.
	lastUsedResolution = time.Minute
)

var (
	errKeyNotFound = errors.New("api key not found")
	errKeyExpired  = errors.New("api key expired")
)

// Handler manages the caller's own integration keys
type Handler struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates a new API keys handler
func NewHandler(db *gorm.DB, logger *zap.Logger) *Handler {
	return &Handler{db: db, logger: logging.OrNop(logger), now: time.Now}
}

// KeyResponse describes a stored key without its secret
type KeyResponse struct {
	ID          uint       `json:"id"`
	KeyPrefix   string     `json:"key_prefix"`
	Description string     `json:"description"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Expired     bool       `json:"expired"`
}

// CreateKeyRequest is the body of POST /api-keys. ExpiresInDays of zero
// creates a key that never expires.
type CreateKeyRequest struct {
	Description   string `json:"description"`
	ExpiresInDays int    `json:"expires_in_days"`
}

// CreateKeyResponse carries the plaintext key. It is never shown again.
type CreateKeyResponse struct {
	KeyResponse
	Key string `json:"key"`
}

func newKey() (string, error) {
	buf := make([]byte, KeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return KeyPrefix + hex.EncodeToString(buf), nil
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (h *Handler) toResponse(k models.APIKey) KeyResponse {
	return KeyResponse{
		ID:          k.ID,
		KeyPrefix:   k.KeyPrefix,
		Description: k.Description,
		ExpiresAt:   k.ExpiresAt,
		LastUsedAt:  k.LastUsedAt,
		CreatedAt:   k.CreatedAt,
		Expired:     k.ExpiresAt != nil && !k.ExpiresAt.After(h.now()),
	}
}

func caller(c *gin.Context) (identity.Account, bool) {
	account, ok := auth.GetAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	}
	return account, ok
}

// Create issues a key for the authenticated account
func (h *Handler) Create(c *gin.Context) {
	account, ok := caller(c)
	if !ok {
		return
	}

	var req CreateKeyRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.ExpiresInDays < 0 || req.ExpiresInDays > MaxLifetimeDays {
		apierr.Respond(c, h.logger, fmt.Errorf("expires_in_days must be between 0 and %d: %w", MaxLifetimeDays, access.ErrInvalidInput))
		return
	}

	key, err := newKey()
	if err != nil {
		h.logger.Error("Failed to generate API key", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate API key"})
		return
	}

	record := models.APIKey{
		Account:     account.String(),
		KeyHash:     hashKey(key),
		KeyPrefix:   key[:DisplayPrefixLength],
		Description: strings.TrimSpace(req.Description),
		IsActive:    true,
	}
	if req.ExpiresInDays > 0 {
		expires := h.now().AddDate(0, 0, req.ExpiresInDays)
		record.ExpiresAt = &expires
	}

	if err := h.db.WithContext(c.Request.Context()).Create(&record).Error; err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	h.logger.Info("API key created",
		zap.String("account", record.Account),
		zap.String("key_prefix", record.KeyPrefix),
		zap.Int("expires_in_days", req.ExpiresInDays))
	c.JSON(http.StatusCreated, CreateKeyResponse{KeyResponse: h.toResponse(record), Key: key})
}

// List returns the caller's active keys, newest first. Expired keys stay
// listed, flagged, until revoked.
func (h *Handler) List(c *gin.Context) {
	account, ok := caller(c)
	if !ok {
		return
	}

	var keys []models.APIKey
	if err := h.db.WithContext(c.Request.Context()).
		Where("account = ? AND is_active = ?", account.String(), true).
		Order("created_at DESC, id DESC").
		Find(&keys).Error; err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	out := make([]KeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, h.toResponse(k))
	}
	c.JSON(http.StatusOK, out)
}

// Revoke deactivates one of the caller's keys
func (h *Handler) Revoke(c *gin.Context) {
	account, ok := caller(c)
	if !ok {
		return
	}
	keyID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid API key ID"})
		return
	}

	now := h.now()
	res := h.db.WithContext(c.Request.Context()).Model(&models.APIKey{}).
		Where("id = ? AND account = ? AND is_active = ?", keyID, account.String(), true).
		Updates(map[string]interface{}{"is_active": false, "revoked_at": now})
	if res.Error != nil {
		apierr.Respond(c, h.logger, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
		return
	}

	h.logger.Info("API key revoked", zap.String("account", account.String()), zap.Uint64("key_id", keyID))
	c.JSON(http.StatusOK, gin.H{"message": "API key revoked"})
}

// ValidateAPIKey returns the active key matching the plaintext value.
// Revoked or unknown keys yield errKeyNotFound, expired ones errKeyExpired.
func ValidateAPIKey(ctx context.Context, db *gorm.DB, key string, now time.Time) (*models.APIKey, error) {
	var record models.APIKey
	err := db.WithContext(ctx).Where("key_hash = ? AND is_active = ?", hashKey(key), true).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errKeyNotFound
		}
		return nil, err
	}
	if !record.UsableAt(now) {
		return nil, errKeyExpired
	}
	return &record, nil
}

func touch(ctx context.Context, db *gorm.DB, key *models.APIKey, now time.Time) {
	if key.LastUsedAt != nil && now.Sub(*key.LastUsedAt) < lastUsedResolution {
		return
	}
	db.WithContext(ctx).Model(&models.APIKey{}).Where("id = ?", key.ID).Update("last_used_at", now)
}

// CombinedAuthMiddleware authenticates via JWT or API key, both passed as
// "Bearer <token>". JWTs contain dots; keys never do.
func CombinedAuthMiddleware(db *gorm.DB, tm *auth.TokenManager, logger *zap.Logger) gin.HandlerFunc {
	logger = logging.OrNop(logger)
	jwtAuth := auth.AuthMiddleware(tm)
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c)
		if !ok {
			return
		}
		if strings.Contains(token, ".") {
			jwtAuth(c)
			return
		}

		ctx := c.Request.Context()
		now := time.Now()
		record, err := ValidateAPIKey(ctx, db, token, now)
		switch {
		case errors.Is(err, errKeyNotFound):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		case errors.Is(err, errKeyExpired):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key has expired"})
			return
		case err != nil:
			logger.Error("API key lookup failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate API key"})
			return
		}

		account, err := identity.ResolveAccount(record.Account)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}

		touch(ctx, db, record, now)
		auth.SetAccount(c, account, "api_key")
		c.Next()
	}
}

// RegisterRoutes registers API key routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/api-keys", h.Create)
	rg.GET("/api-keys", h.List)
	rg.DELETE("/api-keys/:id", h.Revoke)
}
