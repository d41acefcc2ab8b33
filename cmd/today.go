package cmd

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/example/cscsync/pkg/models"
)

var todayCmd = &cobra.Command{
	Use:   "today [YYYYMMDD]",
	Short: "Show the day-scoped streak sets, optionally submitting them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		day := app.engine.Today()
		if len(args) == 1 {
			day = models.Day(args[0])
			if !day.Valid() {
				return errors.Newf("invalid day %q", args[0])
			}
		}

		if submit, _ := cmd.Flags().GetBool("submit"); submit {
			if _, err := app.reconciler.Flush(cmd.Context(), day); err != nil {
				return err
			}
		}

		for _, kind := range models.TodayKinds {
			local := app.reconciler.Local(kind, day)
			pending := app.reconciler.Pending(kind, day)
			fmt.Printf("%-13s %s  %d local, %d unconfirmed\n", kind, day, len(local), len(pending))
			if len(local) > 0 {
				fmt.Printf("  %s\n", strings.Join(local, " "))
			}
			if s, ok := app.reconciler.Summary(kind); ok {
				fmt.Printf("  server: %d unique on %s\n", s.UniqueCount, s.Day)
			}
		}
		return nil
	},
}

func init() {
	todayCmd.Flags().Bool("submit", false, "Submit unconfirmed qids before printing")
}
