package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mikepea/empaccess/pkg/empaccess/database"
	"github.com/mikepea/empaccess/pkg/empaccess/identity"
	"github.com/mikepea/empaccess/pkg/empaccess/server"
)

var systemsCmd = &cobra.Command{
	Use:   "systems <identity>",
	Short: "List the systems an account can see",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, err := outputFormat(cmd)
		if err != nil {
			return err
		}
		account, err := identity.ResolveAccount(args[0])
		if err != nil {
			return err
		}

		db, err := openDB(false)
		if err != nil {
			return err
		}
		defer database.Close(db)

		visible, err := server.NewEngine(cfg, db, logger).VisibleSystems(cmd.Context(), account)
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(visible)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tNAME\tACCESS\tPERMISSIONS")
		for _, s := range visible {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", s.Code, s.Name, s.AccessLevel, s.TotalPermissions)
		}
		return w.Flush()
	},
}
