package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/cscsync/internal/database"
	"github.com/example/cscsync/internal/excel"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every server aggregate row to .csv or .xlsx",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")

		cfg, closeDB, err := openServerDB(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		policy, err := cfg.Policy()
		if err != nil {
			return err
		}
		rows, err := database.NewAggregateRepository(database.DB, policy).All(cmd.Context())
		if err != nil {
			return err
		}
		if err := excel.Export(out, rows); err != nil {
			return err
		}
		fmt.Printf("Exported %d rows to %s\n", len(rows), out)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "aggregates.xlsx", "Output file; the extension picks the format")
}
