// Package gamify holds the pure payout and progression rules: the streak
// bonus applied to task completions and the level/rank table driven by
// accumulated experience.
package gamify

import "github.com/dxia/starshipplan/internal/model"

const (
	// Every streakBonusEvery consecutive completions add streakBonusStepPct
	// percent of the base coins, up to streakBonusCapPct. Sustained habits
	// are rewarded without unbounded inflation.
	streakBonusEvery   = 7
	streakBonusStepPct = 10
	streakBonusCapPct  = 50
)

// Payout derives the coin and experience reward for completing task with the
// given streak length. Difficulty is already priced into the task's base
// values; only the streak bonus scales the coins. Experience is never
// streak-scaled.
func Payout(task model.Task, streak int) (coins, exp int) {
	coins = task.StarCoins
	exp = task.ExpReward

	pct := (streak / streakBonusEvery) * streakBonusStepPct
	if pct > streakBonusCapPct {
		pct = streakBonusCapPct
	}
	coins += task.StarCoins * pct / 100
	return coins, exp
}
