package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikepea/empaccess/pkg/empaccess/database"
	"github.com/mikepea/empaccess/pkg/empaccess/identity"
	"github.com/mikepea/empaccess/pkg/empaccess/server"
)

var bootstrapAdminCmd = &cobra.Command{
	Use:   "bootstrap-admin <identity>",
	Short: "Grant an account administrative access",
	Long: `Creates the admin security definition (ADMIN_SECURITY_ID) and admin group if
they are missing, adds the account to the group and sets its local password.
Safe to run more than once.`,
	Example: `  empaccess bootstrap-admin 'CORP\ops' --password changeme`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := identity.ResolveAccount(args[0])
		if err != nil {
			return err
		}
		password, _ := cmd.Flags().GetString("password")
		group, _ := cmd.Flags().GetString("group")

		db, err := openDB(true)
		if err != nil {
			return err
		}
		defer database.Close(db)

		engine := server.NewEngine(cfg, db, logger)
		err = server.BootstrapAdmin(cmd.Context(), db, engine, server.BootstrapAdminInput{
			Account:    account,
			Password:   password,
			GroupName:  group,
			SecurityID: cfg.AdminSecurityID,
		})
		if err != nil {
			return err
		}

		logger.Info("Administrator ready",
			zap.String("account", account.String()),
			zap.String("group", group),
			zap.Int("security_id", cfg.AdminSecurityID))
		return nil
	},
}

func init() {
	bootstrapAdminCmd.Flags().String("password", "", "Local password for the account")
	bootstrapAdminCmd.Flags().String("group", server.DefaultAdminGroup, "Name of the admin group")
	_ = bootstrapAdminCmd.MarkFlagRequired("password")
}
