package model

import "time"

// UnlimitedStock marks a reward that never runs out.
const UnlimitedStock = -1

type Reward struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Cost      int       `json:"cost"`
	Stock     int       `json:"stock"` // -1 = unlimited
	Category  string    `json:"category"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RewardRedemption struct {
	ID         int64     `json:"id"`
	RewardID   int64     `json:"reward_id"`
	UserID     int64     `json:"user_id"`
	CoinsSpent int       `json:"coins_spent"`
	RedeemedAt time.Time `json:"redeemed_at"`
}
