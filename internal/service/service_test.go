package service

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dxia/starshipplan/internal/database"
	"github.com/dxia/starshipplan/internal/model"
	"github.com/dxia/starshipplan/internal/store"
)

type fixture struct {
	svc    *Service
	parent *model.User
	child  *model.User
	now    time.Time
}

// advance moves the fake clock forward.
func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		// 2026-08-24 is a Monday.
		now: time.Date(2026, time.August, 24, 10, 0, 0, 0, time.UTC),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = New(db, time.UTC, func() time.Time { return f.now }, logger)

	users := store.NewUserStore(db)
	f.parent, err = users.Create("mama", model.RoleParent, nil, "", "")
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	f.child, err = users.Create("xiaoxing", model.RoleChild, &f.parent.ID, "", "星光号")
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	return f
}

func (f *fixture) dailyTask(t *testing.T, coins, exp int) *model.Task {
	t.Helper()
	task, err := f.svc.tasks.Create(model.Task{
		Title:      "整理床铺",
		Type:       model.TaskDaily,
		Frequency:  model.FreqDaily,
		StarCoins:  coins,
		ExpReward:  exp,
		Difficulty: model.DifficultyEasy,
		AssignedTo: &f.child.ID,
		CreatedBy:  f.parent.ID,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestCompleteTaskPaysOut(t *testing.T) {
	f := setup(t)
	task := f.dailyTask(t, 10, 5)

	res, err := f.svc.CompleteTask(task.ID, f.child.ID)
	if err != nil {
		t.Fatalf("complete task: %v", err)
	}
	if res.CoinsEarned != 10 || res.ExpEarned != 5 {
		t.Errorf("payout = (%d, %d), want (10, 5)", res.CoinsEarned, res.ExpEarned)
	}
	if res.Completion.PeriodKey != "2026-08-24" {
		t.Errorf("period key = %q, want 2026-08-24", res.Completion.PeriodKey)
	}
	if res.Completion.StreakCount != 1 {
		t.Errorf("streak = %d, want 1", res.Completion.StreakCount)
	}
	if res.Transaction.Type != model.TxEarn || res.Transaction.Balance != 10 {
		t.Errorf("transaction = %s/%d, want EARN/10", res.Transaction.Type, res.Transaction.Balance)
	}
	if res.Level.Exp != 5 || res.Level.TotalExp != 5 {
		t.Errorf("level exp = %d/%d, want 5/5", res.Level.Exp, res.Level.TotalExp)
	}

	balance, err := f.svc.Balance(f.child.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 10 {
		t.Errorf("balance = %d, want 10", balance)
	}
}

func TestCompleteTaskIdempotent(t *testing.T) {
	f := setup(t)
	task := f.dailyTask(t, 10, 5)

	if _, err := f.svc.CompleteTask(task.ID, f.child.ID); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	_, err := f.svc.CompleteTask(task.ID, f.child.ID)
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("second completion err = %v, want ErrAlreadyCompleted", err)
	}

	// Exactly one completion row and one ledger append.
	n, err := f.svc.tasks.CountCompletions(task.ID, f.child.ID)
	if err != nil {
		t.Fatalf("count completions: %v", err)
	}
	if n != 1 {
		t.Errorf("completions = %d, want 1", n)
	}
	txs, err := f.svc.Transactions(f.child.ID, 10)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txs) != 1 {
		t.Errorf("transactions = %d, want 1", len(txs))
	}
	if balance, _ := f.svc.Balance(f.child.ID); balance != 10 {
		t.Errorf("balance = %d, want 10", balance)
	}
}

func TestCompleteTaskNotDue(t *testing.T) {
	f := setup(t)
	task, err := f.svc.tasks.Create(model.Task{
		Title:      "练琴",
		Type:       model.TaskDaily,
		Frequency:  model.FreqWeekdays,
		Weekdays:   []int{1, 2, 3, 4, 5},
		StarCoins:  5,
		Difficulty: model.DifficultyMedium,
		AssignedTo: &f.child.ID,
		CreatedBy:  f.parent.ID,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	// Jump to Saturday.
	f.advance(5 * 24 * time.Hour)
	_, err = f.svc.CompleteTask(task.ID, f.child.ID)
	if !errors.Is(err, ErrTaskNotDue) {
		t.Fatalf("err = %v, want ErrTaskNotDue", err)
	}
	if balance, _ := f.svc.Balance(f.child.ID); balance != 0 {
		t.Errorf("balance = %d, want 0", balance)
	}
}

func TestStreakGrowsAndResets(t *testing.T) {
	f := setup(t)
	task := f.dailyTask(t, 10, 0)

	for day := 1; day <= 3; day++ {
		res, err := f.svc.CompleteTask(task.ID, f.child.ID)
		if err != nil {
			t.Fatalf("day %d: %v", day, err)
		}
		if res.Completion.StreakCount != day {
			t.Errorf("day %d: streak = %d, want %d", day, res.Completion.StreakCount, day)
		}
		f.advance(24 * time.Hour)
	}

	// Skip one eligible day: streak resets to 1.
	f.advance(24 * time.Hour)
	res, err := f.svc.CompleteTask(task.ID, f.child.ID)
	if err != nil {
		t.Fatalf("after gap: %v", err)
	}
	if res.Completion.StreakCount != 1 {
		t.Errorf("streak after gap = %d, want 1", res.Completion.StreakCount)
	}
}

func TestStreakSkipsIneligibleDays(t *testing.T) {
	f := setup(t)
	task, err := f.svc.tasks.Create(model.Task{
		Title:      "做作业",
		Type:       model.TaskDaily,
		Frequency:  model.FreqWeekdays,
		Weekdays:   []int{1, 2, 3, 4, 5},
		StarCoins:  5,
		Difficulty: model.DifficultyMedium,
		AssignedTo: &f.child.ID,
		CreatedBy:  f.parent.ID,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	// Complete Friday, then Monday: the weekend gap must not break the streak.
	f.advance(4 * 24 * time.Hour) // Friday 2026-08-28
	if _, err := f.svc.CompleteTask(task.ID, f.child.ID); err != nil {
		t.Fatalf("friday: %v", err)
	}
	f.advance(3 * 24 * time.Hour) // Monday 2026-08-31
	res, err := f.svc.CompleteTask(task.ID, f.child.ID)
	if err != nil {
		t.Fatalf("monday: %v", err)
	}
	if res.Completion.StreakCount != 2 {
		t.Errorf("streak = %d, want 2 (weekend is not an eligible gap)", res.Completion.StreakCount)
	}
}

// The worked example: starCoins=10, expReward=5, 7 consecutive days.
// The 7th completion hits the streak bonus: 10 * 1.10 = 11 coins, and the
// total balance is 6*10 + 11 = 71.
func TestSevenDayStreakExample(t *testing.T) {
	f := setup(t)
	task := f.dailyTask(t, 10, 5)

	var last *CompletionResult
	for day := 1; day <= 7; day++ {
		res, err := f.svc.CompleteTask(task.ID, f.child.ID)
		if err != nil {
			t.Fatalf("day %d: %v", day, err)
		}
		last = res
		f.advance(24 * time.Hour)
	}

	if last.Completion.StreakCount != 7 {
		t.Errorf("streak = %d, want 7", last.Completion.StreakCount)
	}
	if last.CoinsEarned != 11 {
		t.Errorf("7th payout = %d, want 11", last.CoinsEarned)
	}
	balance, err := f.svc.Balance(f.child.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 71 {
		t.Errorf("balance = %d, want 71", balance)
	}
	if err := f.svc.VerifyLedger(f.child.ID); err != nil {
		t.Errorf("ledger verify: %v", err)
	}
}

func TestWeeklyTaskOncePerISOWeek(t *testing.T) {
	f := setup(t)
	task, err := f.svc.tasks.Create(model.Task{
		Title:      "打扫房间",
		Type:       model.TaskWeekly,
		Frequency:  model.FreqWeekly,
		StarCoins:  20,
		ExpReward:  10,
		Difficulty: model.DifficultyHard,
		AssignedTo: &f.child.ID,
		CreatedBy:  f.parent.ID,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	if _, err := f.svc.CompleteTask(task.ID, f.child.ID); err != nil {
		t.Fatalf("monday: %v", err)
	}

	// Wednesday, same ISO week.
	f.advance(2 * 24 * time.Hour)
	if _, err := f.svc.CompleteTask(task.ID, f.child.ID); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("same week err = %v, want ErrAlreadyCompleted", err)
	}

	// Next Monday: new week, streak continues.
	f.advance(5 * 24 * time.Hour)
	res, err := f.svc.CompleteTask(task.ID, f.child.ID)
	if err != nil {
		t.Fatalf("next week: %v", err)
	}
	if res.Completion.PeriodKey != "2026-W36" {
		t.Errorf("period key = %q, want 2026-W36", res.Completion.PeriodKey)
	}
	if res.Completion.StreakCount != 2 {
		t.Errorf("streak = %d, want 2", res.Completion.StreakCount)
	}
}

func TestLevelUpOnCompletion(t *testing.T) {
	f := setup(t)
	task := f.dailyTask(t, 5, 250)

	res, err := f.svc.CompleteTask(task.ID, f.child.ID)
	if err != nil {
		t.Fatalf("complete task: %v", err)
	}
	if !res.LeveledUp {
		t.Error("expected a level up")
	}
	if res.Level.Level != 3 || res.Level.Exp != 50 || res.Level.TotalExp != 250 {
		t.Errorf("level = %d/%d/%d, want 3/50/250", res.Level.Level, res.Level.Exp, res.Level.TotalExp)
	}
}

func TestRedeemInsufficientBalance(t *testing.T) {
	f := setup(t)
	if _, err := f.svc.ledger.Append(f.child.ID, model.TxEarn, 30, "seed"); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	reward, err := f.svc.rewards.Create("乐高套装", 50, model.UnlimitedStock, "玩具", f.parent.ID)
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}

	_, err = f.svc.RedeemReward(reward.ID, f.child.ID)
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if balance, _ := f.svc.Balance(f.child.ID); balance != 30 {
		t.Errorf("balance = %d, want 30 (unchanged)", balance)
	}
	redemptions, err := f.svc.rewards.ListRedemptionsByUser(f.child.ID)
	if err != nil {
		t.Fatalf("list redemptions: %v", err)
	}
	if len(redemptions) != 0 {
		t.Errorf("redemptions = %d, want 0", len(redemptions))
	}
}

func TestRedeemStockExhaustion(t *testing.T) {
	f := setup(t)
	if _, err := f.svc.ledger.Append(f.child.ID, model.TxEarn, 100, "seed"); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	reward, err := f.svc.rewards.Create("电影夜", 10, 1, "活动", f.parent.ID)
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}

	res, err := f.svc.RedeemReward(reward.ID, f.child.ID)
	if err != nil {
		t.Fatalf("first redemption: %v", err)
	}
	if res.Reward.Stock != 0 {
		t.Errorf("stock after first = %d, want 0", res.Reward.Stock)
	}

	_, err = f.svc.RedeemReward(reward.ID, f.child.ID)
	if !errors.Is(err, store.ErrOutOfStock) {
		t.Fatalf("second redemption err = %v, want ErrOutOfStock", err)
	}
	if balance, _ := f.svc.Balance(f.child.ID); balance != 90 {
		t.Errorf("balance = %d, want 90 (only one spend)", balance)
	}
	got, _ := f.svc.rewards.GetByID(reward.ID)
	if got.Stock != 0 {
		t.Errorf("final stock = %d, want 0", got.Stock)
	}
}

func TestRedeemUnlimitedStock(t *testing.T) {
	f := setup(t)
	if _, err := f.svc.ledger.Append(f.child.ID, model.TxEarn, 100, "seed"); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	reward, err := f.svc.rewards.Create("看动画片30分钟", 10, model.UnlimitedStock, "屏幕时间", f.parent.ID)
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := f.svc.RedeemReward(reward.ID, f.child.ID); err != nil {
			t.Fatalf("redemption %d: %v", i+1, err)
		}
	}
	got, _ := f.svc.rewards.GetByID(reward.ID)
	if got.Stock != model.UnlimitedStock {
		t.Errorf("stock = %d, want -1 (untouched)", got.Stock)
	}
	if balance, _ := f.svc.Balance(f.child.ID); balance != 70 {
		t.Errorf("balance = %d, want 70", balance)
	}
}

func TestPunishmentDeductClampsAtZero(t *testing.T) {
	f := setup(t)
	if _, err := f.svc.ledger.Append(f.child.ID, model.TxEarn, 5, "seed"); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	levelBefore, err := f.svc.UserLevel(f.child.ID)
	if err != nil {
		t.Fatalf("level before: %v", err)
	}

	rule, err := f.svc.punishments.CreateRule("乱扔玩具", model.PunishDeductCoins, model.SeverityMinor, 20, f.parent.ID)
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	res, err := f.svc.ApplyPunishment(rule.ID, f.child.ID, f.parent.ID)
	if err != nil {
		t.Fatalf("apply punishment: %v", err)
	}
	if res.Transaction.Amount != 5 {
		t.Errorf("deducted = %d, want 5 (clamped)", res.Transaction.Amount)
	}
	if res.Transaction.Balance != 0 {
		t.Errorf("balance after = %d, want 0", res.Transaction.Balance)
	}
	if res.Event.CoinsDeducted != 5 {
		t.Errorf("event coins = %d, want 5", res.Event.CoinsDeducted)
	}

	// Punishments never touch experience or level.
	levelAfter, err := f.svc.UserLevel(f.child.ID)
	if err != nil {
		t.Fatalf("level after: %v", err)
	}
	if levelAfter.Level != levelBefore.Level || levelAfter.TotalExp != levelBefore.TotalExp {
		t.Errorf("level changed by punishment: %+v -> %+v", levelBefore, levelAfter)
	}
	if err := f.svc.VerifyLedger(f.child.ID); err != nil {
		t.Errorf("ledger verify: %v", err)
	}
}

func TestPunishmentExtraTasks(t *testing.T) {
	f := setup(t)
	rule, err := f.svc.punishments.CreateRule("顶嘴", model.PunishExtraTask, model.SeverityMedium, 2, f.parent.ID)
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	res, err := f.svc.ApplyPunishment(rule.ID, f.child.ID, f.parent.ID)
	if err != nil {
		t.Fatalf("apply punishment: %v", err)
	}
	if len(res.ExtraTasks) != 2 {
		t.Fatalf("extra tasks = %d, want 2", len(res.ExtraTasks))
	}
	for _, task := range res.ExtraTasks {
		if task.AssignedTo == nil || *task.AssignedTo != f.child.ID {
			t.Errorf("task %d not assigned to child", task.ID)
		}
		if task.StarCoins != 0 || task.ExpReward != 0 {
			t.Errorf("punishment task %d carries rewards", task.ID)
		}
	}
	if res.Event.TasksAdded != 2 {
		t.Errorf("event tasks = %d, want 2", res.Event.TasksAdded)
	}
}

func TestTodayAndWeeklyViews(t *testing.T) {
	f := setup(t)
	daily := f.dailyTask(t, 10, 5)
	weekend, err := f.svc.tasks.Create(model.Task{
		Title:      "浇花",
		Type:       model.TaskDaily,
		Frequency:  model.FreqWeekends,
		Weekdays:   []int{0, 6},
		StarCoins:  5,
		Difficulty: model.DifficultyEasy,
		AssignedTo: &f.child.ID,
		CreatedBy:  f.parent.ID,
	})
	if err != nil {
		t.Fatalf("create weekend task: %v", err)
	}
	weekly, err := f.svc.tasks.Create(model.Task{
		Title:      "整理书架",
		Type:       model.TaskWeekly,
		Frequency:  model.FreqWeekly,
		StarCoins:  15,
		Difficulty: model.DifficultyMedium,
		AssignedTo: &f.child.ID,
		CreatedBy:  f.parent.ID,
	})
	if err != nil {
		t.Fatalf("create weekly task: %v", err)
	}

	// Monday: the weekend task must not appear.
	today, err := f.svc.TodayTasks(f.child.ID)
	if err != nil {
		t.Fatalf("today tasks: %v", err)
	}
	if len(today) != 1 || today[0].ID != daily.ID {
		t.Fatalf("today = %d tasks, want just the daily one", len(today))
	}
	if today[0].Completed {
		t.Error("daily task should start uncompleted")
	}
	_ = weekend

	if _, err := f.svc.CompleteTask(daily.ID, f.child.ID); err != nil {
		t.Fatalf("complete daily: %v", err)
	}
	today, err = f.svc.TodayTasks(f.child.ID)
	if err != nil {
		t.Fatalf("today tasks: %v", err)
	}
	if !today[0].Completed {
		t.Error("daily task should be marked completed")
	}

	weeklies, err := f.svc.WeeklyTasks(f.child.ID)
	if err != nil {
		t.Fatalf("weekly tasks: %v", err)
	}
	if len(weeklies) != 1 || weeklies[0].ID != weekly.ID {
		t.Fatalf("weekly = %d tasks, want just the weekly one", len(weeklies))
	}
	if weeklies[0].PeriodKey != "2026-W35" {
		t.Errorf("weekly period = %q, want 2026-W35", weeklies[0].PeriodKey)
	}
}
