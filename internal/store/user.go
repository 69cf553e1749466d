package store

import (
	"database/sql"
	"fmt"

	"github.com/dxia/starshipplan/internal/gamify"
	"github.com/dxia/starshipplan/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var parentID sql.NullInt64
	var pinHash string

	err := scanner.Scan(&u.ID, &u.Username, &u.Role, &parentID, &pinHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		u.ParentID = &parentID.Int64
	}
	u.HasPIN = pinHash != ""
	return &u, nil
}

const userCols = `id, username, role, parent_id, pin_hash, created_at, updated_at`

// Create inserts a user and their starting level record in one transaction.
// A child must reference its parent; parents have no parent_id.
func (s *UserStore) Create(username string, role model.Role, parentID *int64, pinHash string, shipName string) (*model.User, error) {
	var pID sql.NullInt64
	if parentID != nil {
		pID = sql.NullInt64{Int64: *parentID, Valid: true}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO users (username, role, parent_id, pin_hash) VALUES (?, ?, ?, ?)`,
		username, role, pID, pinHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("username %q already taken", username)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	rec := gamify.NewLevelRecord(id, shipName)
	if _, err := tx.Exec(
		`INSERT INTO level_records (user_id, level, title, exp, total_exp, ship_name) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.UserID, rec.Level, rec.Title, rec.Exp, rec.TotalExp, rec.ShipName,
	); err != nil {
		return nil, fmt.Errorf("insert level record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByUsername(username string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

// ListChildren returns the children belonging to a parent, ordered by name.
func (s *UserStore) ListChildren(parentID int64) ([]model.User, error) {
	rows, err := s.db.Query(
		`SELECT `+userCols+` FROM users WHERE parent_id = ? ORDER BY username ASC`,
		parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// PINHash returns the stored bcrypt hash for a user ("" when no PIN is set).
func (s *UserStore) PINHash(id int64) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT pin_hash FROM users WHERE id = ?`, id).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get pin hash: %w", err)
	}
	return hash, nil
}

func (s *UserStore) SetPINHash(id int64, hash string) error {
	_, err := s.db.Exec(
		`UPDATE users SET pin_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		hash, id,
	)
	if err != nil {
		return fmt.Errorf("set pin hash: %w", err)
	}
	return nil
}

func (s *UserStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
