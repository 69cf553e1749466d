// Package store contains the SQLite persistence layer. Each aggregate gets
// its own XStore around a shared *sql.DB. Methods with a Tx suffix run
// against a caller-owned transaction so services can compose several writes
// into one atomic unit.
package store

import (
	"database/sql"
	"errors"
	"strings"
)

// ErrInsufficientBalance is returned when a voluntary spend would drive a
// user's balance below zero. Nothing is persisted.
var ErrInsufficientBalance = errors.New("insufficient star coin balance")

// ErrBalanceDrift is returned when a user's stored running balance no longer
// matches the sum of their transaction history. It is a defect, never
// repaired automatically.
var ErrBalanceDrift = errors.New("ledger balance drift detected")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
