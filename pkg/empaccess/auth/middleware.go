package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mikepea/empaccess/pkg/empaccess/access"
	"github.com/mikepea/empaccess/pkg/empaccess/apierr"
	"github.com/mikepea/empaccess/pkg/empaccess/identity"
)

const (
	// ContextKeyAccount is the key for the canonical account in gin context
	ContextKeyAccount = "account"
	// ContextKeyAuthMethod records how the caller authenticated ("jwt" or "api_key")
	ContextKeyAuthMethod = "auth_method"
)

// AuthMiddleware validates JWT tokens and sets the account in context
func AuthMiddleware(tm *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := BearerToken(c)
		if !ok {
			return
		}

		claims, err := tm.ValidateToken(tokenString)
		if err != nil {
			if err == ErrExpiredToken {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Token has expired"})
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			c.Abort()
			return
		}

		account, err := identity.ResolveAccount(claims.Account)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		SetAccount(c, account, "jwt")
		c.Next()
	}
}

// BearerToken extracts the bearer token, aborting with 401 when it is
// missing or malformed.
func BearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
		c.Abort()
		return "", false
	}

	// Expect "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
		c.Abort()
		return "", false
	}
	return parts[1], true
}

// SetAccount stores the authenticated account in the gin context
func SetAccount(c *gin.Context, account identity.Account, method string) {
	c.Set(ContextKeyAccount, account.String())
	c.Set(ContextKeyAuthMethod, method)
}

// GetAccount returns the authenticated account from the gin context
func GetAccount(c *gin.Context) (identity.Account, bool) {
	v, exists := c.Get(ContextKeyAccount)
	if !exists {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return identity.Account(s), true
}

// PermissionChecker answers single permission checks.
type PermissionChecker interface {
	CheckAccess(ctx context.Context, account identity.Account, securityID int) (access.PermissionCheckResult, error)
}

// RequirePermission lets the request through only when the authenticated
// account holds securityID. Store failures are reported, never treated as a denial.
func RequirePermission(checker PermissionChecker, securityID int, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		account, ok := GetAccount(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		res, err := checker.CheckAccess(c.Request.Context(), account, securityID)
		if err != nil {
			apierr.Respond(c, logger, err)
			c.Abort()
			return
		}
		if !res.HasAccess {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			c.Abort()
			return
		}

		c.Next()
	}
}
