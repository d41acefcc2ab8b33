package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/cscsync/internal/database"
	"github.com/example/cscsync/internal/excel"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Merge counters from a .csv or .xlsx file into the server aggregate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sheet, _ := cmd.Flags().GetString("sheet")

		cfg, closeDB, err := openServerDB(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		policy, err := cfg.Policy()
		if err != nil {
			return err
		}
		res, err := excel.ImportCounters(cmd.Context(), excel.ImportConfig{
			FilePath:  args[0],
			SheetName: sheet,
		}, database.NewAggregateRepository(database.DB, policy))
		if err != nil {
			return err
		}

		fmt.Printf("Processed %d rows for %d identities: %d applied, %d skipped\n",
			res.TotalProcessed, res.Identities, res.Applied, res.Skipped)
		for _, e := range res.Errors {
			fmt.Printf("  %s\n", e)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().String("sheet", "", "Sheet to read from an .xlsx file (default: first sheet)")
}
