package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mikepea/empaccess/pkg/empaccess/config"
	"github.com/mikepea/empaccess/pkg/empaccess/database"
	"github.com/mikepea/empaccess/pkg/empaccess/logging"
	"github.com/mikepea/empaccess/pkg/empaccess/models"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "empaccess",
	Short: "Employee access service",
	Long: `empaccess answers which systems, screens, buttons and controllers an
employee may use, based on group memberships, direct grants and job title.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		flags := cmd.Root().PersistentFlags()
		if v, _ := flags.GetString("db-driver"); v != "" {
			cfg.DBDriver = v
		}
		if v, _ := flags.GetString("db-dsn"); v != "" {
			cfg.DBDSN = v
		}
		if v, _ := flags.GetString("log-level"); v != "" {
			cfg.LogLevel = v
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err = logging.New(cfg.LogLevel, cfg.Env)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("db-driver", "", "Database driver: sqlite or postgres (env: EMPACCESS_DB_DRIVER)")
	rootCmd.PersistentFlags().String("db-dsn", "", "Database DSN or sqlite file path (env: EMPACCESS_DB_DSN)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (env: LOG_LEVEL)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(systemsCmd)
	rootCmd.AddCommand(bootstrapAdminCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openDB connects to the configured store, optionally migrating the schema.
func openDB(migrate bool) (*gorm.DB, error) {
	db, err := database.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if migrate {
		if err := models.AutoMigrate(db); err != nil {
			_ = database.Close(db)
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return db, nil
}
