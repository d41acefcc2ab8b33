package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset <qid>",
	Short: "Clear the local correct/wrong totals of a question",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.engine.ResetQuestion(args[0]); err != nil {
			return err
		}
		fmt.Printf("Reset %s. The server aggregate is unchanged.\n", args[0])
		return nil
	},
}
