package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/cscsync/internal/logger"
	"github.com/example/cscsync/internal/progress"
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Run one sync cycle: guard, delta, submit, commit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return runFlush(cmd, app)
	},
}

func runFlush(cmd *cobra.Command, app *clientApp) error {
	ctx := cmd.Context()
	report, err := app.engine.Flush(ctx)
	printReport(report)
	if err != nil {
		return err
	}

	if _, err := app.reconciler.FlushAll(ctx); err != nil {
		// Union payloads are re-sent on the next cycle.
		app.log.Warnw("Today-unique sync deferred", logger.FieldError, err)
	}
	return nil
}

func printReport(r progress.FlushReport) {
	fmt.Printf("Status: %s", r.Status)
	if r.SubmissionID != "" {
		fmt.Printf("  submission %s", r.SubmissionID)
	}
	if r.Resent {
		fmt.Print("  (pending batch re-sent)")
	}
	if r.Response != nil && r.Response.Duplicate {
		fmt.Print("  (duplicate)")
	}
	fmt.Println()

	qids := make([]string, 0, len(r.QIDs))
	for qid := range r.QIDs {
		qids = append(qids, qid)
	}
	sort.Strings(qids)
	for _, qid := range qids {
		line := fmt.Sprintf("  %-16s %s", qid, r.QIDs[qid])
		if cs := r.Corrections[qid]; len(cs) > 0 {
			parts := make([]string, 0, len(cs))
			for _, c := range cs {
				parts = append(parts, fmt.Sprintf("%s %d→%d", c.Field, c.From, c.To))
			}
			line += "  repaired: " + strings.Join(parts, ", ")
		}
		fmt.Println(line)
	}
}
