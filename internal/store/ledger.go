package store

import (
	"database/sql"
	"fmt"

	"github.com/dxia/starshipplan/internal/model"
)

// LedgerStore is the append-only star coin ledger. Every row carries the
// running balance for its user, materialized at insert time; the balance
// read is therefore O(1) on the (user_id, id) index. The read-then-append
// sequence always runs inside a single transaction so concurrent spends
// cannot both pass the balance check.
type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func scanTransaction(scanner interface{ Scan(...any) error }) (*model.PointTransaction, error) {
	var p model.PointTransaction
	err := scanner.Scan(&p.ID, &p.UserID, &p.Type, &p.Amount, &p.Balance, &p.Description, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const transactionCols = `id, user_id, type, amount, balance, description, created_at`

// Append records a transaction in its own transaction scope. amount is a
// positive magnitude; the sign comes from typ. A debit that would drive the
// balance negative returns ErrInsufficientBalance and persists nothing.
func (s *LedgerStore) Append(userID int64, typ model.TransactionType, amount int, description string) (*model.PointTransaction, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	pt, err := s.AppendTx(tx, userID, typ, amount, description)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return pt, nil
}

// AppendTx appends inside a caller-owned transaction so the ledger write can
// be atomic with completion inserts or stock decrements.
func (s *LedgerStore) AppendTx(tx *sql.Tx, userID int64, typ model.TransactionType, amount int, description string) (*model.PointTransaction, error) {
	if amount < 0 {
		return nil, fmt.Errorf("amount must be a non-negative magnitude, got %d", amount)
	}

	current, err := balanceOf(tx, userID)
	if err != nil {
		return nil, err
	}

	newBalance := current + amount*typ.Sign()
	if newBalance < 0 {
		return nil, ErrInsufficientBalance
	}

	return insertTransaction(tx, userID, typ, amount, newBalance, description)
}

// DeductClampedTx appends a DEDUCT whose amount is clamped so the balance
// floors at zero. Parent-initiated punishments always take effect, unlike
// voluntary spends which are rejected outright.
func (s *LedgerStore) DeductClampedTx(tx *sql.Tx, userID int64, amount int, description string) (*model.PointTransaction, error) {
	if amount < 0 {
		return nil, fmt.Errorf("amount must be a non-negative magnitude, got %d", amount)
	}

	current, err := balanceOf(tx, userID)
	if err != nil {
		return nil, err
	}

	if amount > current {
		amount = current
	}
	return insertTransaction(tx, userID, model.TxDeduct, amount, current-amount, description)
}

func insertTransaction(tx *sql.Tx, userID int64, typ model.TransactionType, amount, balance int, description string) (*model.PointTransaction, error) {
	result, err := tx.Exec(
		`INSERT INTO point_transactions (user_id, type, amount, balance, description) VALUES (?, ?, ?, ?, ?)`,
		userID, typ, amount, balance, description,
	)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := tx.QueryRow(`SELECT `+transactionCols+` FROM point_transactions WHERE id = ?`, id)
	return scanTransaction(row)
}

// Balance returns the user's current balance: the balance column of their
// latest transaction, zero when they have none. Never recomputed by summing
// history.
func (s *LedgerStore) Balance(userID int64) (int, error) {
	return balanceOf(s.db, userID)
}

func balanceOf(q querier, userID int64) (int, error) {
	var balance int
	err := q.QueryRow(
		`SELECT balance FROM point_transactions WHERE user_id = ? ORDER BY id DESC LIMIT 1`,
		userID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

// ListByUser returns a user's transactions, newest first.
func (s *LedgerStore) ListByUser(userID int64, limit int) ([]model.PointTransaction, error) {
	rows, err := s.db.Query(
		`SELECT `+transactionCols+` FROM point_transactions WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []model.PointTransaction
	for rows.Next() {
		p, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, *p)
	}
	return txs, rows.Err()
}

// VerifyBalance walks the user's full history in insertion order and checks
// that every stored balance equals the prefix sum of signed deltas. Any
// mismatch returns ErrBalanceDrift; the caller must stop writing for this
// user and surface the condition, never patch it up.
func (s *LedgerStore) VerifyBalance(userID int64) error {
	rows, err := s.db.Query(
		`SELECT `+transactionCols+` FROM point_transactions WHERE user_id = ? ORDER BY id ASC`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	defer rows.Close()

	sum := 0
	for rows.Next() {
		p, err := scanTransaction(rows)
		if err != nil {
			return fmt.Errorf("scan transaction: %w", err)
		}
		sum += p.Delta()
		if sum < 0 {
			return fmt.Errorf("%w: user %d negative prefix sum %d at tx %d", ErrBalanceDrift, userID, sum, p.ID)
		}
		if p.Balance != sum {
			return fmt.Errorf("%w: user %d tx %d stored %d, computed %d", ErrBalanceDrift, userID, p.ID, p.Balance, sum)
		}
	}
	return rows.Err()
}
