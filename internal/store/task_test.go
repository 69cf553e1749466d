package store

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/dxia/starshipplan/internal/database"
	"github.com/dxia/starshipplan/internal/model"
)

func setupTaskTestDB(t *testing.T) (*TaskStore, *sql.DB, *model.User, *model.User) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	us := NewUserStore(db)
	parent, err := us.Create("mama", model.RoleParent, nil, "", "")
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := us.Create("doudou", model.RoleChild, &parent.ID, "", "")
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	return NewTaskStore(db), db, parent, child
}

func TestTaskCRUD(t *testing.T) {
	ts, _, parent, child := setupTaskTestDB(t)

	task, err := ts.Create(model.Task{
		Title:      "刷牙",
		Type:       model.TaskDaily,
		Frequency:  model.FreqDaily,
		StarCoins:  5,
		ExpReward:  2,
		Difficulty: model.DifficultyEasy,
		AssignedTo: &child.ID,
		CreatedBy:  parent.ID,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Title != "刷牙" || task.StarCoins != 5 {
		t.Errorf("task = %q/%d coins, want 刷牙/5", task.Title, task.StarCoins)
	}

	got, err := ts.GetByID(task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got == nil || got.Title != "刷牙" {
		t.Fatalf("got = %+v, want 刷牙", got)
	}

	task.Title = "早晚刷牙"
	task.StarCoins = 6
	updated, err := ts.Update(task.ID, *task)
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if updated.Title != "早晚刷牙" || updated.StarCoins != 6 {
		t.Errorf("updated = %q/%d, want 早晚刷牙/6", updated.Title, updated.StarCoins)
	}

	if err := ts.Delete(task.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	got, err = ts.GetByID(task.ID)
	if err != nil {
		t.Fatalf("get deleted task: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}
}

func TestTaskWeekdaysRoundTrip(t *testing.T) {
	ts, _, parent, child := setupTaskTestDB(t)

	task, err := ts.Create(model.Task{
		Title:      "上学准备",
		Type:       model.TaskDaily,
		Frequency:  model.FreqWeekdays,
		Weekdays:   []int{5, 1, 3, 2, 4},
		StarCoins:  3,
		Difficulty: model.DifficultyMedium,
		AssignedTo: &child.ID,
		CreatedBy:  parent.ID,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	got, err := ts.GetByID(task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	want := []int{1, 2, 3, 4, 5} // stored sorted
	if len(got.Weekdays) != len(want) {
		t.Fatalf("weekdays = %v, want %v", got.Weekdays, want)
	}
	for i := range want {
		if got.Weekdays[i] != want[i] {
			t.Errorf("weekdays = %v, want %v", got.Weekdays, want)
			break
		}
	}
}

func TestTaskValidateRejectsBadWeekdays(t *testing.T) {
	ts, _, parent, child := setupTaskTestDB(t)

	// WEEKENDS with a Monday in the set is inconsistent.
	_, err := ts.Create(model.Task{
		Title:      "bad",
		Type:       model.TaskDaily,
		Frequency:  model.FreqWeekends,
		Weekdays:   []int{0, 1},
		Difficulty: model.DifficultyEasy,
		AssignedTo: &child.ID,
		CreatedBy:  parent.ID,
	})
	if err == nil {
		t.Fatal("expected validation error")
	}

	// WEEKDAYS with an empty set is inconsistent.
	_, err = ts.Create(model.Task{
		Title:      "bad",
		Type:       model.TaskDaily,
		Frequency:  model.FreqWeekdays,
		Difficulty: model.DifficultyEasy,
		CreatedBy:  parent.ID,
	})
	if err == nil {
		t.Fatal("expected validation error")
	}

	// WEEKLY with weekdays is inconsistent.
	_, err = ts.Create(model.Task{
		Title:      "bad",
		Type:       model.TaskWeekly,
		Frequency:  model.FreqWeekly,
		Weekdays:   []int{1},
		Difficulty: model.DifficultyEasy,
		CreatedBy:  parent.ID,
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestCompletionUniquePerPeriod(t *testing.T) {
	ts, db, parent, child := setupTaskTestDB(t)

	task, err := ts.Create(model.Task{
		Title:      "收拾书包",
		Type:       model.TaskDaily,
		Frequency:  model.FreqDaily,
		StarCoins:  5,
		Difficulty: model.DifficultyEasy,
		AssignedTo: &child.ID,
		CreatedBy:  parent.ID,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := ts.InsertCompletionTx(tx, task.ID, child.ID, "2026-08-24", 1); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx, err = db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	_, err = ts.InsertCompletionTx(tx, task.ID, child.ID, "2026-08-24", 2)
	if !errors.Is(err, ErrDuplicateCompletion) {
		t.Fatalf("err = %v, want ErrDuplicateCompletion", err)
	}

	// A different period inserts fine.
	tx2, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := ts.InsertCompletionTx(tx2, task.ID, child.ID, "2026-08-25", 2); err != nil {
		t.Fatalf("next period insert: %v", err)
	}
	if err := tx2.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	n, err := ts.CountCompletions(task.ID, child.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("completions = %d, want 2", n)
	}
}

func TestGetCompletionMissing(t *testing.T) {
	ts, _, _, child := setupTaskTestDB(t)

	c, err := ts.GetCompletion(999, child.ID, "2026-08-24")
	if err != nil {
		t.Fatalf("get completion: %v", err)
	}
	if c != nil {
		t.Error("expected nil for missing completion")
	}
}
