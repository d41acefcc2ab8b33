package progress

import "github.com/example/cscsync/pkg/models"

// StreakUnit is the run length that counts as one completed streak.
const StreakUnit = 3

// Outcome describes what one answer did to the counters.
type Outcome struct {
	Counters models.CounterFamily
	// Streak3Completed is set when this answer completed a run of StreakUnit.
	Streak3Completed bool
	// NewMax is set when this answer raised the streak maximum.
	NewMax bool
}

// ApplyAnswer records one answer on c. A correct answer extends the correct
// run and breaks the wrong one, and vice versa.
func ApplyAnswer(c models.CounterFamily, correct bool, today models.Day) Outcome {
	var out Outcome
	if correct {
		c.CorrectTotal++
		c.CorrectStreakLen++
		c.WrongStreakLen = 0
		if c.CorrectStreakLen%StreakUnit == 0 {
			c.CorrectStreak3Total++
			out.Streak3Completed = true
		}
		if c.CorrectStreakLen > c.CorrectStreakMax {
			c.CorrectStreakMax = c.CorrectStreakLen
			c.CorrectStreakMaxDay = today
			out.NewMax = true
		}
	} else {
		c.WrongTotal++
		c.WrongStreakLen++
		c.CorrectStreakLen = 0
		if c.WrongStreakLen%StreakUnit == 0 {
			c.WrongStreak3Total++
			out.Streak3Completed = true
		}
		if c.WrongStreakLen > c.WrongStreakMax {
			c.WrongStreakMax = c.WrongStreakLen
			c.WrongStreakMaxDay = today
			out.NewMax = true
		}
	}
	out.Counters = c
	return out
}
