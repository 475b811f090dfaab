package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mikepea/empaccess/pkg/empaccess/database"
	"github.com/mikepea/empaccess/pkg/empaccess/identity"
	"github.com/mikepea/empaccess/pkg/empaccess/server"
)

var checkCmd = &cobra.Command{
	Use:   "check <identity> <securityId>...",
	Short: "Check which security ids an account holds",
	Example: `  empaccess check 'CORP\jdoe' 1001 1002
  empaccess check jdoe 1001 -o json`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, err := outputFormat(cmd)
		if err != nil {
			return err
		}
		account, err := identity.ResolveAccount(args[0])
		if err != nil {
			return err
		}
		ids := make([]int, 0, len(args)-1)
		for _, raw := range args[1:] {
			id, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("invalid security id %q", raw)
			}
			ids = append(ids, id)
		}

		db, err := openDB(false)
		if err != nil {
			return err
		}
		defer database.Close(db)

		results, err := server.NewEngine(cfg, db, logger).BatchCheckAccess(cmd.Context(), account, ids)
		if err != nil {
			return err
		}

		keys := make([]int, 0, len(results))
		for id := range results {
			keys = append(keys, id)
		}
		sort.Ints(keys)

		if output == "json" {
			ordered := make([]interface{}, 0, len(keys))
			for _, id := range keys {
				ordered = append(ordered, results[id])
			}
			return printJSON(ordered)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SECURITY ID\tACCESS\tSOURCE\tSYSTEM")
		for _, id := range keys {
			r := results[id]
			display := r.DisplaySecurityID
			if display == "" {
				display = strconv.Itoa(id)
			}
			access := "no"
			if r.HasAccess {
				access = "yes"
			}
			if r.Error != "" {
				access = r.Error
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", display, access, r.AssignmentSource, r.SystemCode)
		}
		return w.Flush()
	},
}

func init() {
	checkCmd.Flags().StringP("output", "o", "table", "Output format: table or json")
	systemsCmd.Flags().StringP("output", "o", "table", "Output format: table or json")
}

func outputFormat(cmd *cobra.Command) (string, error) {
	v, _ := cmd.Flags().GetString("output")
	if v != "table" && v != "json" {
		return "", fmt.Errorf("unsupported output format %q: use 'table' or 'json'", v)
	}
	return v, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
