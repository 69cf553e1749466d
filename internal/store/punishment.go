package store

import (
	"database/sql"
	"fmt"

	"github.com/dxia/starshipplan/internal/model"
)

type PunishmentStore struct {
	db *sql.DB
}

func NewPunishmentStore(db *sql.DB) *PunishmentStore {
	return &PunishmentStore{db: db}
}

func scanRule(scanner interface{ Scan(...any) error }) (*model.PunishmentRule, error) {
	var r model.PunishmentRule
	err := scanner.Scan(&r.ID, &r.Name, &r.Type, &r.Severity, &r.Value, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const ruleCols = `id, name, type, severity, value, created_by, created_at, updated_at`

func (s *PunishmentStore) CreateRule(name string, typ model.PunishmentType, severity model.Severity, value int, createdBy int64) (*model.PunishmentRule, error) {
	result, err := s.db.Exec(
		`INSERT INTO punishment_rules (name, type, severity, value, created_by) VALUES (?, ?, ?, ?, ?)`,
		name, typ, severity, value, createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert rule: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetRuleByID(id)
}

func (s *PunishmentStore) GetRuleByID(id int64) (*model.PunishmentRule, error) {
	row := s.db.QueryRow(`SELECT `+ruleCols+` FROM punishment_rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return r, nil
}

func (s *PunishmentStore) ListRules() ([]model.PunishmentRule, error) {
	rows, err := s.db.Query(`SELECT ` + ruleCols + ` FROM punishment_rules ORDER BY severity ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []model.PunishmentRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

func (s *PunishmentStore) UpdateRule(id int64, name string, severity model.Severity, value int) (*model.PunishmentRule, error) {
	_, err := s.db.Exec(
		`UPDATE punishment_rules SET name = ?, severity = ?, value = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		name, severity, value, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update rule: %w", err)
	}
	return s.GetRuleByID(id)
}

func (s *PunishmentStore) DeleteRule(id int64) error {
	_, err := s.db.Exec(`DELETE FROM punishment_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return nil
}

// --- Event methods ---

func scanEvent(scanner interface{ Scan(...any) error }) (*model.PunishmentEvent, error) {
	var e model.PunishmentEvent
	err := scanner.Scan(&e.ID, &e.RuleID, &e.UserID, &e.CoinsDeducted, &e.TasksAdded, &e.AppliedBy, &e.AppliedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

const eventCols = `id, rule_id, user_id, coins_deducted, tasks_added, applied_by, applied_at`

// InsertEventTx records an applied punishment inside a caller-owned
// transaction, alongside the ledger deduction or task injection it caused.
func (s *PunishmentStore) InsertEventTx(tx *sql.Tx, ruleID, userID int64, coinsDeducted, tasksAdded int, appliedBy int64) (*model.PunishmentEvent, error) {
	result, err := tx.Exec(
		`INSERT INTO punishment_events (rule_id, user_id, coins_deducted, tasks_added, applied_by) VALUES (?, ?, ?, ?, ?)`,
		ruleID, userID, coinsDeducted, tasksAdded, appliedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := tx.QueryRow(`SELECT `+eventCols+` FROM punishment_events WHERE id = ?`, id)
	return scanEvent(row)
}

// ListEventsByUser returns the punishments applied to a child, newest first.
func (s *PunishmentStore) ListEventsByUser(userID int64) ([]model.PunishmentEvent, error) {
	rows, err := s.db.Query(
		`SELECT `+eventCols+` FROM punishment_events WHERE user_id = ? ORDER BY applied_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.PunishmentEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}
