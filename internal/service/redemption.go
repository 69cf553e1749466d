package service

import (
	"fmt"

	"github.com/dxia/starshipplan/internal/model"
)

// RedemptionResult is what spending coins on a reward produced.
type RedemptionResult struct {
	Redemption  *model.RewardRedemption `json:"redemption"`
	Transaction *model.PointTransaction `json:"transaction"`
	Reward      *model.Reward           `json:"reward"`
}

// RedeemReward spends a user's balance on a reward. The stock decrement and
// the SPEND ledger append commit together or not at all: an exhausted stock
// returns store.ErrOutOfStock, a short balance store.ErrInsufficientBalance,
// and in both cases nothing is persisted.
func (s *Service) RedeemReward(rewardID, userID int64) (*RedemptionResult, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	reward, err := s.rewards.GetTx(tx, rewardID)
	if err != nil {
		return nil, err
	}
	if reward == nil {
		return nil, fmt.Errorf("reward %d: %w", rewardID, ErrNotFound)
	}

	if err := s.rewards.DecrementStockTx(tx, rewardID); err != nil {
		return nil, err
	}

	ptx, err := s.ledger.AppendTx(tx, userID, model.TxSpend, reward.Cost, "兑换奖励: "+reward.Name)
	if err != nil {
		return nil, err
	}

	redemption, err := s.rewards.InsertRedemptionTx(tx, rewardID, userID, reward.Cost)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("reward redeemed",
		"reward_id", rewardID, "user_id", userID, "cost", reward.Cost, "balance", ptx.Balance)

	updated, err := s.rewards.GetByID(rewardID)
	if err != nil {
		return nil, err
	}

	return &RedemptionResult{
		Redemption:  redemption,
		Transaction: ptx,
		Reward:      updated,
	}, nil
}
