package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state [qid]",
	Short: "Fetch the authoritative aggregate and compare it with local counters",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		state, err := app.engine.RefreshState(cmd.Context())
		if err != nil {
			return err
		}

		qids := args
		if len(qids) == 0 {
			seen := map[string]bool{}
			for qid := range state.Counters {
				seen[qid] = true
			}
			for _, qid := range app.store.QIDs() {
				seen[qid] = true
			}
			for qid := range seen {
				qids = append(qids, qid)
			}
			sort.Strings(qids)
		}

		fmt.Printf("User: %s\n", state.User)
		fmt.Printf("Streak3 today: %d (%s), wrong streak3 today: %d\n",
			state.Streak3Today.UniqueCount, state.Streak3Today.Day, state.Streak3WrongToday.UniqueCount)
		fmt.Printf("%-16s  %-13s  %-13s  %-9s  %s\n", "QID", "Correct l/s", "Wrong l/s", "Streak3", "Max")
		fmt.Println(strings.Repeat("─", 70))
		for _, qid := range qids {
			v := app.engine.View(qid)
			server := state.Counters[qid]
			fmt.Printf("%-16s  %5d/%-7d  %5d/%-7d  %4d/%-4d  %d (%s)\n",
				qid,
				v.Local.CorrectTotal, server.CorrectTotal,
				v.Local.WrongTotal, server.WrongTotal,
				v.Local.CorrectStreak3Total, server.CorrectStreak3Total,
				server.CorrectStreakMax, server.CorrectStreakMaxDay,
			)
		}
		return nil
	},
}
