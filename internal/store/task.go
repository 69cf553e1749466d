package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/dxia/starshipplan/internal/model"
)

// ErrDuplicateCompletion is returned when a completion already exists for
// (task, user, period). The UNIQUE index turns concurrent double-completions
// into this error instead of a double payout.
var ErrDuplicateCompletion = errors.New("completion already recorded for this period")

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

func scanTask(scanner interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var weekdays string
	var assignedTo sql.NullInt64

	err := scanner.Scan(
		&t.ID, &t.Title, &t.Type, &t.Frequency, &weekdays,
		&t.StarCoins, &t.ExpReward, &t.Difficulty, &assignedTo,
		&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	days, err := model.DecodeWeekdays(weekdays)
	if err != nil {
		return nil, fmt.Errorf("task %d: %w", t.ID, err)
	}
	t.Weekdays = days
	if assignedTo.Valid {
		t.AssignedTo = &assignedTo.Int64
	}
	return &t, nil
}

const taskCols = `id, title, type, frequency, weekdays, star_coins, exp_reward, difficulty, assigned_to, created_by, created_at, updated_at`

func (s *TaskStore) Create(t model.Task) (*model.Task, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("validate task: %w", err)
	}

	var aTo sql.NullInt64
	if t.AssignedTo != nil {
		aTo = sql.NullInt64{Int64: *t.AssignedTo, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO tasks (title, type, frequency, weekdays, star_coins, exp_reward, difficulty, assigned_to, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Title, t.Type, t.Frequency, model.EncodeWeekdays(t.Weekdays),
		t.StarCoins, t.ExpReward, t.Difficulty, aTo, t.CreatedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

// CreateTx inserts a task inside a caller-owned transaction. Punishments use
// this to inject extra tasks atomically with their event row.
func (s *TaskStore) CreateTx(tx *sql.Tx, t model.Task) (*model.Task, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("validate task: %w", err)
	}

	var aTo sql.NullInt64
	if t.AssignedTo != nil {
		aTo = sql.NullInt64{Int64: *t.AssignedTo, Valid: true}
	}

	result, err := tx.Exec(
		`INSERT INTO tasks (title, type, frequency, weekdays, star_coins, exp_reward, difficulty, assigned_to, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Title, t.Type, t.Frequency, model.EncodeWeekdays(t.Weekdays),
		t.StarCoins, t.ExpReward, t.Difficulty, aTo, t.CreatedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := tx.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

func (s *TaskStore) GetByID(id int64) (*model.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *TaskStore) List() ([]model.Task, error) {
	return s.listQuery(`SELECT ` + taskCols + ` FROM tasks ORDER BY title ASC`)
}

// ListByAssignee returns the tasks assigned to one child.
func (s *TaskStore) ListByAssignee(userID int64) ([]model.Task, error) {
	return s.listQuery(
		`SELECT `+taskCols+` FROM tasks WHERE assigned_to = ? ORDER BY title ASC`,
		userID,
	)
}

// ListByCreator returns the tasks a parent has defined.
func (s *TaskStore) ListByCreator(parentID int64) ([]model.Task, error) {
	return s.listQuery(
		`SELECT `+taskCols+` FROM tasks WHERE created_by = ? ORDER BY title ASC`,
		parentID,
	)
}

func (s *TaskStore) listQuery(query string, args ...any) ([]model.Task, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *TaskStore) Update(id int64, t model.Task) (*model.Task, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("validate task: %w", err)
	}

	var aTo sql.NullInt64
	if t.AssignedTo != nil {
		aTo = sql.NullInt64{Int64: *t.AssignedTo, Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE tasks SET title = ?, type = ?, frequency = ?, weekdays = ?, star_coins = ?,
		 exp_reward = ?, difficulty = ?, assigned_to = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		t.Title, t.Type, t.Frequency, model.EncodeWeekdays(t.Weekdays),
		t.StarCoins, t.ExpReward, t.Difficulty, aTo, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return s.GetByID(id)
}

func (s *TaskStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// --- Completion methods ---

func scanCompletion(scanner interface{ Scan(...any) error }) (*model.TaskCompletion, error) {
	var c model.TaskCompletion
	err := scanner.Scan(&c.ID, &c.TaskID, &c.UserID, &c.PeriodKey, &c.StreakCount, &c.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const completionCols = `id, task_id, user_id, period_key, streak_count, completed_at`

// GetCompletion returns the completion for (task, user, period), or nil.
func (s *TaskStore) GetCompletion(taskID, userID int64, periodKey string) (*model.TaskCompletion, error) {
	return getCompletion(s.db, taskID, userID, periodKey)
}

// GetCompletionTx is GetCompletion inside a caller-owned transaction.
func (s *TaskStore) GetCompletionTx(tx *sql.Tx, taskID, userID int64, periodKey string) (*model.TaskCompletion, error) {
	return getCompletion(tx, taskID, userID, periodKey)
}

func getCompletion(q querier, taskID, userID int64, periodKey string) (*model.TaskCompletion, error) {
	row := q.QueryRow(
		`SELECT `+completionCols+` FROM task_completions WHERE task_id = ? AND user_id = ? AND period_key = ?`,
		taskID, userID, periodKey,
	)
	c, err := scanCompletion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get completion: %w", err)
	}
	return c, nil
}

// InsertCompletionTx records a completion inside a caller-owned transaction.
// A duplicate (task, user, period) insert returns ErrDuplicateCompletion.
func (s *TaskStore) InsertCompletionTx(tx *sql.Tx, taskID, userID int64, periodKey string, streakCount int) (*model.TaskCompletion, error) {
	result, err := tx.Exec(
		`INSERT INTO task_completions (task_id, user_id, period_key, streak_count) VALUES (?, ?, ?, ?)`,
		taskID, userID, periodKey, streakCount,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateCompletion
		}
		return nil, fmt.Errorf("insert completion: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := tx.QueryRow(`SELECT `+completionCols+` FROM task_completions WHERE id = ?`, id)
	return scanCompletion(row)
}

// ListCompletionsByUser returns a user's completions, newest first.
func (s *TaskStore) ListCompletionsByUser(userID int64, limit int) ([]model.TaskCompletion, error) {
	rows, err := s.db.Query(
		`SELECT `+completionCols+` FROM task_completions WHERE user_id = ? ORDER BY completed_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var completions []model.TaskCompletion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		completions = append(completions, *c)
	}
	return completions, rows.Err()
}

// CountCompletions returns how many completions exist for (task, user).
func (s *TaskStore) CountCompletions(taskID, userID int64) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM task_completions WHERE task_id = ? AND user_id = ?`,
		taskID, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completions: %w", err)
	}
	return n, nil
}
