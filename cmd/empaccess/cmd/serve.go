package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mikepea/empaccess/pkg/empaccess/database"
	"github.com/mikepea/empaccess/pkg/empaccess/server"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  `Migrates the schema, then serves the permission, catalog and administration APIs until interrupted.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.IsProduction() {
			gin.SetMode(gin.ReleaseMode)
		}

		db, err := openDB(true)
		if err != nil {
			return err
		}
		defer database.Close(db)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine := server.NewEngine(cfg, db, logger)
		srv := &http.Server{
			Addr:              cfg.Addr(),
			Handler:           server.NewRouter(ctx, cfg, db, engine, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("Server starting",
				zap.String("addr", srv.Addr),
				zap.String("driver", cfg.DBDriver),
				zap.Int("admin_security_id", cfg.AdminSecurityID))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("Shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}
