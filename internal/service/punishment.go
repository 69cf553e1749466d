package service

import (
	"fmt"

	"github.com/dxia/starshipplan/internal/model"
)

// PunishmentResult is what applying a rule to a child produced. Exactly one
// of the deduction transaction or the extra tasks is populated, depending on
// the rule type.
type PunishmentResult struct {
	Event       *model.PunishmentEvent  `json:"event"`
	Transaction *model.PointTransaction `json:"transaction,omitempty"`
	ExtraTasks  []model.Task            `json:"extra_tasks,omitempty"`
}

// ApplyPunishment applies a rule to a child. Coin deductions clamp the
// balance at zero rather than rejecting: a parent-initiated punishment always
// takes effect. Experience and level are never touched. EXTRA_TASK rules
// inject one-off tasks assigned to the child, with no coin or exp reward
// attached.
func (s *Service) ApplyPunishment(ruleID, userID, appliedBy int64) (*PunishmentResult, error) {
	rule, err := s.punishments.GetRuleByID(ruleID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, fmt.Errorf("punishment rule %d: %w", ruleID, ErrNotFound)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result := &PunishmentResult{}

	switch rule.Type {
	case model.PunishDeductCoins:
		ptx, err := s.ledger.DeductClampedTx(tx, userID, rule.Value, "惩罚: "+rule.Name)
		if err != nil {
			return nil, err
		}
		result.Transaction = ptx
		result.Event, err = s.punishments.InsertEventTx(tx, ruleID, userID, ptx.Amount, 0, appliedBy)
		if err != nil {
			return nil, err
		}

	case model.PunishExtraTask:
		for i := 0; i < rule.Value; i++ {
			t, err := s.tasks.CreateTx(tx, model.Task{
				Title:      "额外任务: " + rule.Name,
				Type:       model.TaskDaily,
				Frequency:  model.FreqDaily,
				Difficulty: model.DifficultyEasy,
				AssignedTo: &userID,
				CreatedBy:  appliedBy,
			})
			if err != nil {
				return nil, err
			}
			result.ExtraTasks = append(result.ExtraTasks, *t)
		}
		var err error
		result.Event, err = s.punishments.InsertEventTx(tx, ruleID, userID, 0, rule.Value, appliedBy)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown punishment type %q", rule.Type)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("punishment applied",
		"rule_id", ruleID, "user_id", userID, "type", rule.Type, "value", rule.Value)

	return result, nil
}
