package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/dxia/starshipplan/internal/model"
)

// ErrOutOfStock is returned when redeeming a reward whose stock is exhausted.
var ErrOutOfStock = errors.New("reward is out of stock")

type RewardStore struct {
	db *sql.DB
}

func NewRewardStore(db *sql.DB) *RewardStore {
	return &RewardStore{db: db}
}

func scanReward(scanner interface{ Scan(...any) error }) (*model.Reward, error) {
	var r model.Reward
	err := scanner.Scan(&r.ID, &r.Name, &r.Cost, &r.Stock, &r.Category, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const rewardCols = `id, name, cost, stock, category, created_by, created_at, updated_at`

func (s *RewardStore) Create(name string, cost, stock int, category string, createdBy int64) (*model.Reward, error) {
	result, err := s.db.Exec(
		`INSERT INTO rewards (name, cost, stock, category, created_by) VALUES (?, ?, ?, ?, ?)`,
		name, cost, stock, category, createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *RewardStore) GetByID(id int64) (*model.Reward, error) {
	row := s.db.QueryRow(`SELECT `+rewardCols+` FROM rewards WHERE id = ?`, id)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

// GetTx reads a reward inside a caller-owned transaction.
func (s *RewardStore) GetTx(tx *sql.Tx, id int64) (*model.Reward, error) {
	row := tx.QueryRow(`SELECT `+rewardCols+` FROM rewards WHERE id = ?`, id)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

func (s *RewardStore) List() ([]model.Reward, error) {
	rows, err := s.db.Query(`SELECT ` + rewardCols + ` FROM rewards ORDER BY cost ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

func (s *RewardStore) Update(id int64, name string, cost, stock int, category string) (*model.Reward, error) {
	_, err := s.db.Exec(
		`UPDATE rewards SET name = ?, cost = ?, stock = ?, category = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		name, cost, stock, category, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update reward: %w", err)
	}
	return s.GetByID(id)
}

func (s *RewardStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM rewards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reward: %w", err)
	}
	return nil
}

// DecrementStockTx takes one unit of stock inside a caller-owned transaction.
// Unlimited (-1) stock passes through untouched; a guarded UPDATE makes
// exhaustion under concurrency surface as ErrOutOfStock rather than a
// negative count.
func (s *RewardStore) DecrementStockTx(tx *sql.Tx, id int64) error {
	result, err := tx.Exec(
		`UPDATE rewards SET stock = stock - 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND stock > 0`,
		id,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Either unlimited stock (no decrement needed) or exhausted.
		var stock int
		if err := tx.QueryRow(`SELECT stock FROM rewards WHERE id = ?`, id).Scan(&stock); err != nil {
			return fmt.Errorf("read stock: %w", err)
		}
		if stock == model.UnlimitedStock {
			return nil
		}
		return ErrOutOfStock
	}
	return nil
}

// --- Redemption methods ---

func scanRedemption(scanner interface{ Scan(...any) error }) (*model.RewardRedemption, error) {
	var r model.RewardRedemption
	err := scanner.Scan(&r.ID, &r.RewardID, &r.UserID, &r.CoinsSpent, &r.RedeemedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const redemptionCols = `id, reward_id, user_id, coins_spent, redeemed_at`

// InsertRedemptionTx records a redemption inside a caller-owned transaction.
func (s *RewardStore) InsertRedemptionTx(tx *sql.Tx, rewardID, userID int64, coinsSpent int) (*model.RewardRedemption, error) {
	result, err := tx.Exec(
		`INSERT INTO reward_redemptions (reward_id, user_id, coins_spent) VALUES (?, ?, ?)`,
		rewardID, userID, coinsSpent,
	)
	if err != nil {
		return nil, fmt.Errorf("insert redemption: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := tx.QueryRow(`SELECT `+redemptionCols+` FROM reward_redemptions WHERE id = ?`, id)
	return scanRedemption(row)
}

// ListRedemptionsByUser returns a user's redemptions, newest first.
func (s *RewardStore) ListRedemptionsByUser(userID int64) ([]model.RewardRedemption, error) {
	rows, err := s.db.Query(
		`SELECT `+redemptionCols+` FROM reward_redemptions WHERE user_id = ? ORDER BY redeemed_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	defer rows.Close()

	var redemptions []model.RewardRedemption
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		redemptions = append(redemptions, *r)
	}
	return redemptions, rows.Err()
}
