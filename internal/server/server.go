// Package server wires stores, services, and handlers into an HTTP router.
package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dxia/starshipplan/internal/backup"
	"github.com/dxia/starshipplan/internal/config"
	"github.com/dxia/starshipplan/internal/handler"
	"github.com/dxia/starshipplan/internal/middleware"
	"github.com/dxia/starshipplan/internal/service"
	"github.com/dxia/starshipplan/internal/store"
	ws "github.com/dxia/starshipplan/internal/websocket"
)

type Server struct {
	db  *sql.DB
	hub *ws.Hub

	authH       *handler.AuthHandler
	userH       *handler.UserHandler
	taskH       *handler.TaskHandler
	rewardH     *handler.RewardHandler
	punishmentH *handler.PunishmentHandler
	backupH     *handler.BackupHandler

	sessionStore  *store.SessionStore
	userStore     *store.UserStore
	rateLimiter   *middleware.RateLimiter
	backupManager *backup.Manager
	logger        *slog.Logger
}

func New(db *sql.DB, cfg config.Config, loc *time.Location, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	taskStore := store.NewTaskStore(db)
	rewardStore := store.NewRewardStore(db)
	punishmentStore := store.NewPunishmentStore(db)
	levelStore := store.NewLevelStore(db)

	svc := service.New(db, loc, nil, logger.With("component", "service"))

	backupMgr := backup.NewManager(cfg.Backup, cfg.DBPath, db, logger.With("component", "backup"))

	return &Server{
		db:            db,
		hub:           hub,
		authH:         handler.NewAuthHandler(userStore, sessionStore, logger.With("component", "auth")),
		userH:         handler.NewUserHandler(userStore, levelStore, svc, logger.With("component", "user")),
		taskH:         handler.NewTaskHandler(taskStore, userStore, svc, hub, logger.With("component", "task")),
		rewardH:       handler.NewRewardHandler(rewardStore, svc, hub, logger.With("component", "reward")),
		punishmentH:   handler.NewPunishmentHandler(punishmentStore, userStore, svc, hub, logger.With("component", "punishment")),
		backupH:       handler.NewBackupHandler(backupMgr, logger.With("component", "backup_handler")),
		sessionStore:  sessionStore,
		userStore:     userStore,
		rateLimiter:   middleware.NewRateLimiter(),
		backupManager: backupMgr,
		logger:        logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes behind RequireAuth
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.userStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

// parentOnly wraps a handler with the parent-role check.
func parentOnly(h http.HandlerFunc) http.Handler {
	return middleware.RequireParent(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/auth/me", s.authH.Me)

	// User management: children are created and removed by their parent.
	mux.Handle("POST /api/users/children", parentOnly(s.userH.CreateChild))
	mux.Handle("GET /api/users/children", parentOnly(s.userH.ListChildren))
	mux.HandleFunc("GET /api/users/{id}", s.userH.Get)
	mux.Handle("DELETE /api/users/{id}", parentOnly(s.userH.Delete))
	mux.Handle("PUT /api/users/{id}/pin", parentOnly(s.userH.SetPIN))
	mux.Handle("PUT /api/users/{id}/ship-name", parentOnly(s.userH.SetShipName))

	// Progress
	mux.HandleFunc("GET /api/users/{id}/balance", s.userH.Balance)
	mux.HandleFunc("GET /api/users/{id}/transactions", s.userH.Transactions)
	mux.HandleFunc("GET /api/users/{id}/level", s.userH.Level)
	mux.Handle("POST /api/users/{id}/verify-ledger", parentOnly(s.userH.VerifyLedger))

	// Task definitions are parent-only; completing and viewing are not.
	mux.Handle("POST /api/tasks", parentOnly(s.taskH.Create))
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("GET /api/tasks/{id}", s.taskH.Get)
	mux.Handle("PUT /api/tasks/{id}", parentOnly(s.taskH.Update))
	mux.Handle("DELETE /api/tasks/{id}", parentOnly(s.taskH.Delete))
	mux.HandleFunc("POST /api/tasks/{id}/complete", s.taskH.Complete)
	mux.HandleFunc("GET /api/tasks/today", s.taskH.Today)
	mux.HandleFunc("GET /api/tasks/weekly", s.taskH.Weekly)

	// Rewards
	mux.Handle("POST /api/rewards", parentOnly(s.rewardH.Create))
	mux.HandleFunc("GET /api/rewards", s.rewardH.List)
	mux.Handle("PUT /api/rewards/{id}", parentOnly(s.rewardH.Update))
	mux.Handle("DELETE /api/rewards/{id}", parentOnly(s.rewardH.Delete))
	mux.HandleFunc("POST /api/rewards/{id}/redeem", s.rewardH.Redeem)
	mux.HandleFunc("GET /api/redemptions", s.rewardH.Redemptions)

	// Punishments are entirely parent surface.
	mux.Handle("POST /api/punishments", parentOnly(s.punishmentH.CreateRule))
	mux.Handle("GET /api/punishments", parentOnly(s.punishmentH.ListRules))
	mux.Handle("PUT /api/punishments/{id}", parentOnly(s.punishmentH.UpdateRule))
	mux.Handle("DELETE /api/punishments/{id}", parentOnly(s.punishmentH.DeleteRule))
	mux.Handle("POST /api/punishments/{id}/apply", parentOnly(s.punishmentH.Apply))
	mux.Handle("GET /api/users/{id}/punishments", parentOnly(s.punishmentH.Events))

	// Backups
	mux.Handle("GET /api/backup/status", parentOnly(s.backupH.Status))
	mux.Handle("POST /api/backup/run", parentOnly(s.backupH.RunNow))

	// Live board updates
	mux.Handle("GET /ws", ws.Handle(s.hub, s.logger.With("component", "websocket")))
}
