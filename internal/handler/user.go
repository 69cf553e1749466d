package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/dxia/starshipplan/internal/auth"
	"github.com/dxia/starshipplan/internal/model"
	"github.com/dxia/starshipplan/internal/service"
	"github.com/dxia/starshipplan/internal/store"
)

type UserHandler struct {
	userStore  *store.UserStore
	levelStore *store.LevelStore
	svc        *service.Service
	logger     *slog.Logger
}

func NewUserHandler(us *store.UserStore, ls *store.LevelStore, svc *service.Service, logger *slog.Logger) *UserHandler {
	return &UserHandler{userStore: us, levelStore: ls, svc: svc, logger: logger}
}

type childRequest struct {
	Username string `json:"username"`
	PIN      string `json:"pin"`
	ShipName string `json:"ship_name"`
}

// CreateChild adds a child account under the calling parent.
func (h *UserHandler) CreateChild(w http.ResponseWriter, r *http.Request) {
	var req childRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	existing, err := h.userStore.GetByUsername(req.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check username")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "username already taken")
		return
	}

	var pinHash string
	if req.PIN != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.PIN), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to hash PIN")
			return
		}
		pinHash = string(hash)
	}

	parentID := auth.UserID(r.Context())
	child, err := h.userStore.Create(req.Username, model.RoleChild, &parentID, pinHash, req.ShipName)
	if err != nil {
		h.logger.Error("create child", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create child")
		return
	}

	writeJSON(w, http.StatusCreated, child)
}

// ListChildren returns the calling parent's children.
func (h *UserHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.userStore.ListChildren(auth.UserID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list children")
		return
	}
	if children == nil {
		children = []model.User{}
	}
	writeJSON(w, http.StatusOK, children)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if !h.canAccess(r, id) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	user, err := h.userStore.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Delete removes a child account. Parents cannot delete themselves here.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	child, err := h.userStore.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}
	if child == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if child.ParentID == nil || *child.ParentID != auth.UserID(r.Context()) {
		writeError(w, http.StatusForbidden, "not your child account")
		return
	}

	if err := h.userStore.Delete(id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setPINRequest struct {
	PIN string `json:"pin"`
}

// SetPIN sets or replaces a PIN. Parents change their own; a parent may also
// set a child's.
func (h *UserHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if !h.canManage(r, id) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req setPINRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.PIN) < 4 || !isDigits(req.PIN) {
		writeError(w, http.StatusBadRequest, "PIN must be at least 4 digits")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.PIN), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash PIN")
		return
	}
	if err := h.userStore.SetPINHash(id, string(hash)); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to set PIN")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type shipNameRequest struct {
	ShipName string `json:"ship_name"`
}

// SetShipName renames a user's starship.
func (h *UserHandler) SetShipName(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if !h.canManage(r, id) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req shipNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.ShipName = strings.TrimSpace(req.ShipName)
	if req.ShipName == "" {
		writeError(w, http.StatusBadRequest, "ship name is required")
		return
	}

	if err := h.levelStore.SetShipName(id, req.ShipName); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to set ship name")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Balance returns a user's current StarCoin balance.
func (h *UserHandler) Balance(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if !h.canAccess(r, id) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	balance, err := h.svc.Balance(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get balance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": id, "balance": balance})
}

// Transactions returns a user's recent ledger entries, newest first.
func (h *UserHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if !h.canAccess(r, id) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	txs, err := h.svc.Transactions(id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	if txs == nil {
		txs = []model.PointTransaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// Level returns a user's level record: level, rank title, exp, ship name.
func (h *UserHandler) Level(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if !h.canAccess(r, id) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	rec, err := h.svc.UserLevel(id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get level")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// VerifyLedger recomputes a user's running balances as a consistency check.
func (h *UserHandler) VerifyLedger(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.svc.VerifyLedger(id); err != nil {
		if errors.Is(err, store.ErrBalanceDrift) {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to verify ledger")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// canAccess allows self-access plus parent access to their own children.
func (h *UserHandler) canAccess(r *http.Request, targetID int64) bool {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		return false
	}
	if ac.UserID == targetID {
		return true
	}
	if ac.Role != model.RoleParent {
		return false
	}
	target, err := h.userStore.GetByID(targetID)
	if err != nil || target == nil {
		return false
	}
	return target.ParentID != nil && *target.ParentID == ac.UserID
}

// canManage is canAccess minus child self-service: children cannot change
// their own PIN or ship name.
func (h *UserHandler) canManage(r *http.Request, targetID int64) bool {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		return false
	}
	if ac.Role == model.RoleParent {
		return ac.UserID == targetID || h.canAccess(r, targetID)
	}
	return false
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
