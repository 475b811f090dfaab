package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikepea/empaccess/pkg/empaccess/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(true)
		if err != nil {
			return err
		}
		defer database.Close(db)

		logger.Info("Database migrated", zap.String("driver", cfg.DBDriver))
		return nil
	},
}
