package store

import (
	"database/sql"
	"fmt"

	"github.com/dxia/starshipplan/internal/model"
)

type LevelStore struct {
	db *sql.DB
}

func NewLevelStore(db *sql.DB) *LevelStore {
	return &LevelStore{db: db}
}

const levelCols = `user_id, level, title, exp, total_exp, ship_name, updated_at`

func scanLevel(scanner interface{ Scan(...any) error }) (*model.LevelRecord, error) {
	var r model.LevelRecord
	err := scanner.Scan(&r.UserID, &r.Level, &r.Title, &r.Exp, &r.TotalExp, &r.ShipName, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *LevelStore) Get(userID int64) (*model.LevelRecord, error) {
	return getLevel(s.db, userID)
}

// GetTx reads the record inside a caller-owned transaction.
func (s *LevelStore) GetTx(tx *sql.Tx, userID int64) (*model.LevelRecord, error) {
	return getLevel(tx, userID)
}

func getLevel(q querier, userID int64) (*model.LevelRecord, error) {
	row := q.QueryRow(`SELECT `+levelCols+` FROM level_records WHERE user_id = ?`, userID)
	r, err := scanLevel(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get level record: %w", err)
	}
	return r, nil
}

// SaveTx writes an updated record inside a caller-owned transaction. Only the
// leveling engine produces the records passed here.
func (s *LevelStore) SaveTx(tx *sql.Tx, r model.LevelRecord) error {
	_, err := tx.Exec(
		`UPDATE level_records SET level = ?, title = ?, exp = ?, total_exp = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = ?`,
		r.Level, r.Title, r.Exp, r.TotalExp, r.UserID,
	)
	if err != nil {
		return fmt.Errorf("save level record: %w", err)
	}
	return nil
}

// SetShipName renames the user's ship. Progression fields are untouched.
func (s *LevelStore) SetShipName(userID int64, shipName string) error {
	_, err := s.db.Exec(
		`UPDATE level_records SET ship_name = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`,
		shipName, userID,
	)
	if err != nil {
		return fmt.Errorf("set ship name: %w", err)
	}
	return nil
}
