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

type RewardHandler struct {
	rewardStore *store.RewardStore
	svc         *service.Service
	hub         *websocket.Hub
	logger      *slog.Logger
}

func NewRewardHandler(rs *store.RewardStore, svc *service.Service, hub *websocket.Hub, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{rewardStore: rs, svc: svc, hub: hub, logger: logger}
}

func (h *RewardHandler) broadcast(ev websocket.Event) {
	if h.hub != nil {
		h.hub.Broadcast(ev)
	}
}

type rewardRequest struct {
	Name     string `json:"name"`
	Cost     int    `json:"cost"`
	Stock    *int   `json:"stock"` // omitted means unlimited
	Category string `json:"category"`
}

func (h *RewardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Cost <= 0 {
		writeError(w, http.StatusBadRequest, "cost must be positive")
		return
	}

	stock := model.UnlimitedStock
	if req.Stock != nil {
		if *req.Stock < 0 {
			writeError(w, http.StatusBadRequest, "stock must be zero or more")
			return
		}
		stock = *req.Stock
	}

	reward, err := h.rewardStore.Create(req.Name, req.Cost, stock, req.Category, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("create reward", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create reward")
		return
	}
	writeJSON(w, http.StatusCreated, reward)
}

func (h *RewardHandler) List(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.rewardStore.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list rewards")
		return
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (h *RewardHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.rewardStore.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get reward")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "reward not found")
		return
	}

	var req rewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Cost <= 0 {
		writeError(w, http.StatusBadRequest, "cost must be positive")
		return
	}

	stock := model.UnlimitedStock
	if req.Stock != nil {
		stock = *req.Stock
	}

	reward, err := h.rewardStore.Update(id, req.Name, req.Cost, stock, req.Category)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update reward")
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

func (h *RewardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.rewardStore.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get reward")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "reward not found")
		return
	}

	if err := h.rewardStore.Delete(id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete reward")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Redeem spends the caller's StarCoins on a reward.
func (h *RewardHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	userID := auth.UserID(r.Context())
	result, err := h.svc.RedeemReward(id, userID)
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "reward not found")
		return
	case errors.Is(err, store.ErrInsufficientBalance):
		writeError(w, http.StatusUnprocessableEntity, "insufficient balance")
		return
	case errors.Is(err, store.ErrOutOfStock):
		writeError(w, http.StatusUnprocessableEntity, "reward out of stock")
		return
	case err != nil:
		h.logger.Error("redeem reward", "reward_id", id, "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to redeem reward")
		return
	}

	h.broadcast(websocket.Event{
		Kind:   "reward_redeemed",
		UserID: userID,
		Payload: map[string]any{
			"reward_id":   id,
			"reward_name": result.Reward.Name,
			"coins_spent": result.Redemption.CoinsSpent,
		},
	})

	writeJSON(w, http.StatusCreated, result)
}

// Redemptions lists the caller's redemption history.
func (h *RewardHandler) Redemptions(w http.ResponseWriter, r *http.Request) {
	redemptions, err := h.rewardStore.ListRedemptionsByUser(auth.UserID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list redemptions")
		return
	}
	if redemptions == nil {
		redemptions = []model.RewardRedemption{}
	}
	writeJSON(w, http.StatusOK, redemptions)
}
