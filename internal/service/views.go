package service

import (
	"github.com/dxia/starshipplan/internal/model"
)

// TaskStatus annotates a task with its state for the current period.
type TaskStatus struct {
	model.Task
	PeriodKey  string                `json:"period_key"`
	Completed  bool                  `json:"completed"`
	Completion *model.TaskCompletion `json:"completion,omitempty"`
}

// TodayTasks returns the user's daily-cadence tasks that are eligible today,
// annotated with whether the current period is already done. Tasks not due
// today are simply omitted.
func (s *Service) TodayTasks(userID int64) ([]TaskStatus, error) {
	return s.taskView(userID, func(t model.Task) bool {
		return t.Frequency != model.FreqWeekly && s.resolver.IsEligibleDay(t, s.now())
	})
}

// WeeklyTasks returns the user's WEEKLY tasks annotated for the current ISO
// week.
func (s *Service) WeeklyTasks(userID int64) ([]TaskStatus, error) {
	return s.taskView(userID, func(t model.Task) bool {
		return t.Frequency == model.FreqWeekly
	})
}

func (s *Service) taskView(userID int64, include func(model.Task) bool) ([]TaskStatus, error) {
	tasks, err := s.tasks.ListByAssignee(userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	statuses := make([]TaskStatus, 0, len(tasks))
	for _, t := range tasks {
		if !include(t) {
			continue
		}
		key, err := s.resolver.PeriodKeyOf(t, now)
		if err != nil {
			continue
		}
		completion, err := s.tasks.GetCompletion(t.ID, userID, key)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, TaskStatus{
			Task:       t,
			PeriodKey:  key,
			Completed:  completion != nil,
			Completion: completion,
		})
	}
	return statuses, nil
}
