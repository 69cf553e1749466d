package model

import "time"

type PunishmentType string

const (
	PunishDeductCoins PunishmentType = "DEDUCT_COINS"
	PunishExtraTask   PunishmentType = "EXTRA_TASK"
)

type Severity string

const (
	SeverityMinor  Severity = "MINOR"
	SeverityMedium Severity = "MEDIUM"
	SeverityMajor  Severity = "MAJOR"
)

// PunishmentRule is a parent-defined consequence. Value is a coin amount for
// DEDUCT_COINS and a count of extra tasks for EXTRA_TASK.
type PunishmentRule struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Type      PunishmentType `json:"type"`
	Severity  Severity       `json:"severity"`
	Value     int            `json:"value"`
	CreatedBy int64          `json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// PunishmentEvent records one application of a rule to a child.
type PunishmentEvent struct {
	ID            int64     `json:"id"`
	RuleID        int64     `json:"rule_id"`
	UserID        int64     `json:"user_id"`
	CoinsDeducted int       `json:"coins_deducted"`
	TasksAdded    int       `json:"tasks_added"`
	AppliedBy     int64     `json:"applied_by"`
	AppliedAt     time.Time `json:"applied_at"`
}
