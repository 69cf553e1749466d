// Package service drives the gamification core: task completion, reward
// redemption, and punishment application. Every operation that touches the
// ledger, completions, stock, or level records runs its writes in a single
// SQLite transaction so concurrent requests either fully apply or fully roll
// back.
package service

import (
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/dxia/starshipplan/internal/cadence"
	"github.com/dxia/starshipplan/internal/model"
	"github.com/dxia/starshipplan/internal/store"
)

var (
	// ErrNotFound covers missing tasks, rewards, rules, and users.
	ErrNotFound = errors.New("not found")

	// ErrTaskNotDue means the task has no period on the reference date.
	ErrTaskNotDue = errors.New("task is not due today")

	// ErrAlreadyCompleted means the task was already completed this period.
	// Callers surface it as a no-op success, never as a second payout.
	ErrAlreadyCompleted = errors.New("task already completed this period")
)

type Service struct {
	db          *sql.DB
	resolver    *cadence.Resolver
	users       *store.UserStore
	tasks       *store.TaskStore
	ledger      *store.LedgerStore
	levels      *store.LevelStore
	rewards     *store.RewardStore
	punishments *store.PunishmentStore
	now         func() time.Time
	logger      *slog.Logger
}

// New wires the service onto an opened database. loc is the canonical period
// time zone; now supplies the clock and defaults to time.Now.
func New(db *sql.DB, loc *time.Location, now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:          db,
		resolver:    cadence.NewResolver(loc),
		users:       store.NewUserStore(db),
		tasks:       store.NewTaskStore(db),
		ledger:      store.NewLedgerStore(db),
		levels:      store.NewLevelStore(db),
		rewards:     store.NewRewardStore(db),
		punishments: store.NewPunishmentStore(db),
		now:         now,
		logger:      logger,
	}
}

// Resolver exposes the cadence resolver for handlers that only need
// eligibility checks.
func (s *Service) Resolver() *cadence.Resolver { return s.resolver }

// Balance returns the user's current star coin balance.
func (s *Service) Balance(userID int64) (int, error) {
	return s.ledger.Balance(userID)
}

// Transactions returns the user's most recent ledger entries.
func (s *Service) Transactions(userID int64, limit int) ([]model.PointTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.ledger.ListByUser(userID, limit)
}

// UserLevel returns the user's progression record.
func (s *Service) UserLevel(userID int64) (*model.LevelRecord, error) {
	rec, err := s.levels.Get(userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// VerifyLedger re-checks the balance consistency invariant for one user.
// A store.ErrBalanceDrift result is a defect needing manual reconciliation.
func (s *Service) VerifyLedger(userID int64) error {
	return s.ledger.VerifyBalance(userID)
}
