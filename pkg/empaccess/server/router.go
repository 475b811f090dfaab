// Package server assembles the HTTP API: middleware chain, route groups and
// the admin guard. The serve command and the integration tests share it.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mikepea/empaccess/pkg/empaccess/access"
	"github.com/mikepea/empaccess/pkg/empaccess/admin"
	"github.com/mikepea/empaccess/pkg/empaccess/apikeys"
	"github.com/mikepea/empaccess/pkg/empaccess/auth"
	"github.com/mikepea/empaccess/pkg/empaccess/config"
	"github.com/mikepea/empaccess/pkg/empaccess/employees"
	"github.com/mikepea/empaccess/pkg/empaccess/groups"
	"github.com/mikepea/empaccess/pkg/empaccess/importexport"
	"github.com/mikepea/empaccess/pkg/empaccess/logging"
	"github.com/mikepea/empaccess/pkg/empaccess/metrics"
	"github.com/mikepea/empaccess/pkg/empaccess/middleware"
	"github.com/mikepea/empaccess/pkg/empaccess/permissions"
	"github.com/mikepea/empaccess/pkg/empaccess/systems"
)

// NewEngine builds the permission engine with the configured manager titles.
func NewEngine(cfg *config.Config, db *gorm.DB, logger *zap.Logger) *access.Engine {
	opts := []access.Option{access.WithLogger(logger)}
	if len(cfg.ManagerTitles) > 0 {
		opts = append(opts, access.WithClassifier(access.NewTitleClassifier(cfg.ManagerTitles...)))
	}
	return access.NewEngine(db, opts...)
}

// NewTokenManager builds the JWT manager from configuration.
func NewTokenManager(cfg *config.Config) *auth.TokenManager {
	return auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL, cfg.JWTIssuer)
}

// NewRouter registers every route. ctx bounds background work started by
// middleware, such as the rate limiter's sweeper.
func NewRouter(ctx context.Context, cfg *config.Config, db *gorm.DB, engine *access.Engine, logger *zap.Logger) *gin.Engine {
	logger = logging.OrNop(logger)

	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(logger), metrics.Middleware())

	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "empaccess"})
	}
	r.GET("/health", health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	tokens := NewTokenManager(cfg)
	jwtAuth := auth.AuthMiddleware(tokens)
	combinedAuth := apikeys.CombinedAuthMiddleware(db, tokens, logger)
	requireAdmin := auth.RequirePermission(engine, cfg.AdminSecurityID, logger)

	api := r.Group("/api")
	api.Use(
		middleware.RateLimiter(ctx, middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		}),
		middleware.Timeout(cfg.QueryTimeout),
	)
	{
		api.GET("/health", health)

		// Auth routes (public, except /me)
		authHandler := auth.NewHandler(tokens, auth.NewCredentialAuthenticator(db), engine, cfg.DefaultGroup, logger)
		authHandler.RegisterRoutes(api.Group("/auth"), jwtAuth)

		// API keys are managed with a session token only
		apiKeysHandler := apikeys.NewHandler(db, logger)
		apiKeysHandler.RegisterRoutes(api.Group("", jwtAuth))

		// Permission queries for the calling account (JWT or API key)
		permissionsHandler := permissions.NewHandler(engine, logger)
		permissionsHandler.RegisterRoutes(api.Group("/permissions", combinedAuth))

		// Catalog browsing is open to any authenticated caller; changes need admin
		systemsHandler := systems.NewHandler(engine.Catalog(), logger)
		systemsHandler.RegisterRoutes(api.Group("/systems", combinedAuth))
		systemsHandler.RegisterAdminRoutes(api.Group("/systems", combinedAuth, requireAdmin))
		systemsHandler.RegisterDefinitionRoutes(api.Group("/security-definitions", combinedAuth, requireAdmin))

		groupsHandler := groups.NewHandler(db, engine, logger)
		groupsGroup := api.Group("/groups", combinedAuth, requireAdmin)
		groupsHandler.RegisterRoutes(groupsGroup)
		groupsHandler.RegisterMemberRoutes(groupsGroup)

		employeesHandler := employees.NewHandler(db, engine, logger)
		employeesHandler.RegisterRoutes(api.Group("/employees", combinedAuth, requireAdmin))

		adminGroup := api.Group("/admin", combinedAuth, requireAdmin)
		admin.NewHandler(db, engine, logger).RegisterRoutes(adminGroup)
		importexport.NewHandler(db, logger).RegisterRoutes(adminGroup.Group("/catalog"))
	}

	return r
}
