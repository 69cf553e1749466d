package model

import "time"

// LevelRecord is the single progression row kept per user. Exp is the
// experience inside the current level; TotalExp never decreases.
type LevelRecord struct {
	UserID    int64     `json:"user_id"`
	Level     int       `json:"level"`
	Title     string    `json:"title"`
	Exp       int       `json:"exp"`
	TotalExp  int       `json:"total_exp"`
	ShipName  string    `json:"ship_name"`
	UpdatedAt time.Time `json:"updated_at"`
}
