package service

import (
	"errors"
	"fmt"

	"github.com/dxia/starshipplan/internal/gamify"
	"github.com/dxia/starshipplan/internal/model"
	"github.com/dxia/starshipplan/internal/store"
)

// CompletionResult is what completing a task produced.
type CompletionResult struct {
	Completion  *model.TaskCompletion   `json:"completion"`
	CoinsEarned int                     `json:"coins_earned"`
	ExpEarned   int                     `json:"exp_earned"`
	Transaction *model.PointTransaction `json:"transaction"`
	Level       *model.LevelRecord      `json:"level"`
	LeveledUp   bool                    `json:"leveled_up"`
}

// CompleteTask records a completion for the task's current period and pays
// out coins and experience. At most one completion per (task, user, period)
// ever exists: a repeat inside the same period returns ErrAlreadyCompleted
// with nothing written, including under concurrent requests.
func (s *Service) CompleteTask(taskID, userID int64) (*CompletionResult, error) {
	task, err := s.tasks.GetByID(taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}
	if task.AssignedTo != nil && *task.AssignedTo != userID {
		return nil, fmt.Errorf("task %d not assigned to user %d: %w", taskID, userID, ErrNotFound)
	}

	now := s.now()
	periodKey, err := s.resolver.PeriodKeyOf(*task, now)
	if err != nil {
		return nil, ErrTaskNotDue
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	existing, err := s.tasks.GetCompletionTx(tx, taskID, userID, periodKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyCompleted
	}

	streak := 1
	if prevKey, ok := s.resolver.PreviousPeriodKey(*task, now); ok {
		prev, err := s.tasks.GetCompletionTx(tx, taskID, userID, prevKey)
		if err != nil {
			return nil, err
		}
		if prev != nil {
			streak = prev.StreakCount + 1
		}
	}

	coins, exp := gamify.Payout(*task, streak)

	completion, err := s.tasks.InsertCompletionTx(tx, taskID, userID, periodKey, streak)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateCompletion) {
			// Lost a race with a concurrent completion of the same period.
			return nil, ErrAlreadyCompleted
		}
		return nil, err
	}

	ptx, err := s.ledger.AppendTx(tx, userID, model.TxEarn, coins, "完成任务: "+task.Title)
	if err != nil {
		return nil, err
	}

	rec, err := s.levels.GetTx(tx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("level record for user %d: %w", userID, ErrNotFound)
	}
	updated, leveledUp := gamify.AdvanceLevel(*rec, exp)
	if err := s.levels.SaveTx(tx, updated); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("task completed",
		"task_id", taskID, "user_id", userID, "period", periodKey,
		"streak", streak, "coins", coins, "exp", exp, "leveled_up", leveledUp)

	return &CompletionResult{
		Completion:  completion,
		CoinsEarned: coins,
		ExpEarned:   exp,
		Transaction: ptx,
		Level:       &updated,
		LeveledUp:   leveledUp,
	}, nil
}
