package cmd

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var answerCmd = &cobra.Command{
	Use:   "answer <qid> <correct|wrong>",
	Short: "Record one answer in the local store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var correct bool
		switch args[1] {
		case "correct", "c", "ok":
			correct = true
		case "wrong", "w", "ng":
		default:
			return errors.Newf("outcome must be correct or wrong, got %q", args[1])
		}

		app, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		out, err := app.engine.RecordAnswer(args[0], correct)
		if err != nil {
			return err
		}
		c := out.Counters
		fmt.Printf("%s  correct %d  wrong %d  streak %d/%d  max %d (%s)\n",
			args[0], c.CorrectTotal, c.WrongTotal, c.CorrectStreakLen, c.WrongStreakLen,
			c.CorrectStreakMax, c.CorrectStreakMaxDay)
		if out.Streak3Completed {
			fmt.Println("Streak of 3 completed.")
		}

		if flush, _ := cmd.Flags().GetBool("flush"); flush {
			return runFlush(cmd, app)
		}
		return nil
	},
}

func init() {
	answerCmd.Flags().Bool("flush", false, "Run a sync cycle after recording")
}
