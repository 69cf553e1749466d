package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

type TaskType string

const (
	TaskDaily  TaskType = "DAILY"
	TaskWeekly TaskType = "WEEKLY"
)

type Frequency string

const (
	FreqDaily    Frequency = "DAILY"
	FreqWeekdays Frequency = "WEEKDAYS"
	FreqWeekends Frequency = "WEEKENDS"
	FreqWeekly   Frequency = "WEEKLY"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

type Task struct {
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	Type       TaskType   `json:"type"`
	Frequency  Frequency  `json:"frequency"`
	Weekdays   []int      `json:"weekdays,omitempty"` // 0=Sunday .. 6=Saturday
	StarCoins  int        `json:"star_coins"`
	ExpReward  int        `json:"exp_reward"`
	Difficulty Difficulty `json:"difficulty"`
	AssignedTo *int64     `json:"assigned_to"`
	CreatedBy  int64      `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type TaskCompletion struct {
	ID          int64     `json:"id"`
	TaskID      int64     `json:"task_id"`
	UserID      int64     `json:"user_id"`
	PeriodKey   string    `json:"period_key"`
	StreakCount int       `json:"streak_count"`
	CompletedAt time.Time `json:"completed_at"`
}

// Validate checks the frequency/weekdays invariants.
func (t *Task) Validate() error {
	switch t.Frequency {
	case FreqDaily:
		// Weekdays optional; a custom set narrows eligible days.
		for _, d := range t.Weekdays {
			if d < 0 || d > 6 {
				return fmt.Errorf("weekday %d out of range", d)
			}
		}
	case FreqWeekdays:
		if err := requireWeekdaySet(t.Weekdays, []int{1, 2, 3, 4, 5}); err != nil {
			return fmt.Errorf("WEEKDAYS frequency: %w", err)
		}
	case FreqWeekends:
		if err := requireWeekdaySet(t.Weekdays, []int{0, 6}); err != nil {
			return fmt.Errorf("WEEKENDS frequency: %w", err)
		}
	case FreqWeekly:
		if len(t.Weekdays) != 0 {
			return fmt.Errorf("WEEKLY tasks have no weekday set")
		}
	default:
		return fmt.Errorf("unknown frequency %q", t.Frequency)
	}
	if t.StarCoins < 0 {
		return fmt.Errorf("star_coins must be >= 0")
	}
	if t.ExpReward < 0 {
		return fmt.Errorf("exp_reward must be >= 0")
	}
	return nil
}

func requireWeekdaySet(got, allowed []int) error {
	if len(got) == 0 {
		return fmt.Errorf("weekday set must be non-empty")
	}
	ok := make(map[int]bool, len(allowed))
	for _, d := range allowed {
		ok[d] = true
	}
	for _, d := range got {
		if !ok[d] {
			return fmt.Errorf("weekday %d not permitted", d)
		}
	}
	return nil
}

// EncodeWeekdays renders a weekday set as the comma-separated TEXT form the
// tasks table stores ("1,2,3,4,5"). Empty sets encode as "".
func EncodeWeekdays(days []int) string {
	if len(days) == 0 {
		return ""
	}
	sorted := append([]int(nil), days...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, d := range sorted {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

// DecodeWeekdays parses the stored TEXT form back into a weekday set.
func DecodeWeekdays(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	days := make([]int, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("parse weekday %q: %w", p, err)
		}
		days = append(days, d)
	}
	return days, nil
}
