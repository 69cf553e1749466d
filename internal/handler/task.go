package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dxia/starshipplan/internal/auth"
	"github.com/dxia/starshipplan/internal/model"
	"github.com/dxia/starshipplan/internal/service"
	"github.com/dxia/starshipplan/internal/store"
	"github.com/dxia/starshipplan/internal/websocket"
)

type TaskHandler struct {
	taskStore *store.TaskStore
	userStore *store.UserStore
	svc       *service.Service
	hub       *websocket.Hub
	logger    *slog.Logger
}

func NewTaskHandler(ts *store.TaskStore, us *store.UserStore, svc *service.Service, hub *websocket.Hub, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{taskStore: ts, userStore: us, svc: svc, hub: hub, logger: logger}
}

func (h *TaskHandler) broadcast(ev websocket.Event) {
	if h.hub != nil {
		h.hub.Broadcast(ev)
	}
}

type taskRequest struct {
	Title      string           `json:"title"`
	Type       model.TaskType   `json:"type"`
	Frequency  model.Frequency  `json:"frequency"`
	Weekdays   []int            `json:"weekdays"`
	StarCoins  int              `json:"star_coins"`
	ExpReward  int              `json:"exp_reward"`
	Difficulty model.Difficulty `json:"difficulty"`
	AssignedTo *int64           `json:"assigned_to"`
}

func (h *TaskHandler) taskFromRequest(req taskRequest, createdBy int64) model.Task {
	return model.Task{
		Title:      strings.TrimSpace(req.Title),
		Type:       req.Type,
		Frequency:  req.Frequency,
		Weekdays:   req.Weekdays,
		StarCoins:  req.StarCoins,
		ExpReward:  req.ExpReward,
		Difficulty: req.Difficulty,
		AssignedTo: req.AssignedTo,
		CreatedBy:  createdBy,
	}
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	task := h.taskFromRequest(req, auth.UserID(r.Context()))
	if err := task.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.AssignedTo != nil {
		assignee, err := h.userStore.GetByID(*req.AssignedTo)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to check assignee")
			return
		}
		if assignee == nil {
			writeError(w, http.StatusBadRequest, "assignee not found")
			return
		}
	}

	created, err := h.taskStore.Create(task)
	if err != nil {
		h.logger.Error("create task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		tasks []model.Task
		err   error
	)
	if auth.IsParent(r.Context()) {
		tasks, err = h.taskStore.List()
	} else {
		tasks, err = h.taskStore.ListByAssignee(auth.UserID(r.Context()))
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	task, err := h.taskStore.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.taskStore.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	task := h.taskFromRequest(req, existing.CreatedBy)
	if err := task.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.taskStore.Update(id, task)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.taskStore.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	if err := h.taskStore.Delete(id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Complete records the caller's completion of a task for the current period.
// Repeating a completion within the same period is not an error: the response
// flags it instead so a double-tapped button stays harmless.
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	userID := auth.UserID(r.Context())
	result, err := h.svc.CompleteTask(id, userID)
	switch {
	case errors.Is(err, service.ErrAlreadyCompleted):
		writeJSON(w, http.StatusOK, map[string]any{"already_completed": true})
		return
	case errors.Is(err, service.ErrTaskNotDue):
		writeError(w, http.StatusConflict, "task is not due today")
		return
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "task not found")
		return
	case err != nil:
		h.logger.Error("complete task", "task_id", id, "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to complete task")
		return
	}

	h.broadcast(websocket.Event{
		Kind:   "task_completed",
		UserID: userID,
		Payload: map[string]any{
			"task_id":      id,
			"coins_earned": result.CoinsEarned,
			"exp_earned":   result.ExpEarned,
			"streak":       result.Completion.StreakCount,
		},
	})
	if result.LeveledUp {
		h.broadcast(websocket.Event{
			Kind:   "level_up",
			UserID: userID,
			Payload: map[string]any{
				"level": result.Level.Level,
				"title": result.Level.Title,
			},
		})
	}

	writeJSON(w, http.StatusCreated, result)
}

// Today returns the caller's daily-cadence tasks due today.
func (h *TaskHandler) Today(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.svc.TodayTasks(h.viewUserID(r))
	h.writeView(w, statuses, err)
}

// Weekly returns the caller's weekly tasks for the current ISO week.
func (h *TaskHandler) Weekly(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.svc.WeeklyTasks(h.viewUserID(r))
	h.writeView(w, statuses, err)
}

// viewUserID lets parents view a child's board via ?user_id=.
func (h *TaskHandler) viewUserID(r *http.Request) int64 {
	if auth.IsParent(r.Context()) {
		if v := r.URL.Query().Get("user_id"); v != "" {
			if id, err := strconv.ParseInt(v, 10, 64); err == nil {
				return id
			}
		}
	}
	return auth.UserID(r.Context())
}

func (h *TaskHandler) writeView(w http.ResponseWriter, statuses []service.TaskStatus, err error) {
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if statuses == nil {
		statuses = []service.TaskStatus{}
	}
	writeJSON(w, http.StatusOK, statuses)
}
