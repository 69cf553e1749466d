package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dxia/starshipplan/internal/auth"
	"github.com/dxia/starshipplan/internal/model"
	"github.com/dxia/starshipplan/internal/service"
	"github.com/dxia/starshipplan/internal/store"
	"github.com/dxia/starshipplan/internal/websocket"
)

type PunishmentHandler struct {
	punishmentStore *store.PunishmentStore
	userStore       *store.UserStore
	svc             *service.Service
	hub             *websocket.Hub
	logger          *slog.Logger
}

func NewPunishmentHandler(ps *store.PunishmentStore, us *store.UserStore, svc *service.Service, hub *websocket.Hub, logger *slog.Logger) *PunishmentHandler {
	return &PunishmentHandler{punishmentStore: ps, userStore: us, svc: svc, hub: hub, logger: logger}
}

func (h *PunishmentHandler) broadcast(ev websocket.Event) {
	if h.hub != nil {
		h.hub.Broadcast(ev)
	}
}

type ruleRequest struct {
	Name     string               `json:"name"`
	Type     model.PunishmentType `json:"type"`
	Severity model.Severity       `json:"severity"`
	Value    int                  `json:"value"`
}

func (h *PunishmentHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Type != model.PunishDeductCoins && req.Type != model.PunishExtraTask {
		writeError(w, http.StatusBadRequest, "invalid punishment type")
		return
	}
	if req.Value <= 0 {
		writeError(w, http.StatusBadRequest, "value must be positive")
		return
	}

	rule, err := h.punishmentStore.CreateRule(req.Name, req.Type, req.Severity, req.Value, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("create punishment rule", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create rule")
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (h *PunishmentHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.punishmentStore.ListRules()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}
	if rules == nil {
		rules = []model.PunishmentRule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

func (h *PunishmentHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.punishmentStore.GetRuleByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get rule")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "rule not found")
		return
	}

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Value <= 0 {
		writeError(w, http.StatusBadRequest, "value must be positive")
		return
	}

	rule, err := h.punishmentStore.UpdateRule(id, req.Name, req.Severity, req.Value)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update rule")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *PunishmentHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.punishmentStore.GetRuleByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get rule")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "rule not found")
		return
	}

	if err := h.punishmentStore.DeleteRule(id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete rule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type applyRequest struct {
	UserID int64 `json:"user_id"`
}

// Apply applies a punishment rule to one of the caller's children.
func (h *PunishmentHandler) Apply(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	parentID := auth.UserID(r.Context())
	child, err := h.userStore.GetByID(req.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check user")
		return
	}
	if child == nil || child.ParentID == nil || *child.ParentID != parentID {
		writeError(w, http.StatusForbidden, "not your child account")
		return
	}

	result, err := h.svc.ApplyPunishment(id, req.UserID, parentID)
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "rule not found")
		return
	case err != nil:
		h.logger.Error("apply punishment", "rule_id", id, "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to apply punishment")
		return
	}

	h.broadcast(websocket.Event{
		Kind:   "punishment_applied",
		UserID: req.UserID,
		Payload: map[string]any{
			"rule_id":        id,
			"coins_deducted": result.Event.CoinsDeducted,
			"tasks_added":    result.Event.TasksAdded,
		},
	})

	writeJSON(w, http.StatusCreated, result)
}

// Events lists punishment events for a user.
func (h *PunishmentHandler) Events(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	events, err := h.punishmentStore.ListEventsByUser(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []model.PunishmentEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}
