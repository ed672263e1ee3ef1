// Package www is the HTTP surface: REST handlers, the WebSocket command
// relay, and the SSE event stream.
package www

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"teletable/cache"
	"teletable/config"
	"teletable/robot"
	"teletable/store"
)

type Handlers struct {
	db    *store.DB
	users *cache.UserCache
	coord *robot.Coordinator
	hub   *EventHub

	jwtSecret   string
	tokenTTL    time.Duration
	robotAPIKey string
}

func NewRouter(db *store.DB, users *cache.UserCache, coord *robot.Coordinator, cfg *config.Config) (http.Handler, func()) {
	hub := NewEventHub()
	hub.Start()
	hub.SetupCoordinatorListeners(coord)

	h := &Handlers{
		db:          db,
		users:       users,
		coord:       coord,
		hub:         hub,
		jwtSecret:   cfg.Auth.JWTSecret,
		tokenTTL:    cfg.Auth.TokenTTL,
		robotAPIKey: cfg.Robot.APIKey,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public
	r.Get("/", h.handleBanner)
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	r.Get("/status", h.handleStatus)
	r.Get("/events", hub.SSEHandler)

	// Robot ingest (API key)
	r.Group(func(r chi.Router) {
		r.Use(h.requireRobotKey)
		r.Post("/table/state", h.handleTableState)
		r.Post("/table/event", h.handleTableEvent)
	})
	r.Post("/table/register", h.handleTableRegister)

	// WebSockets (the manual endpoint authenticates via ?token=)
	r.Get("/ws/robot/control", h.handleRobotControlWS)
	r.Get("/ws/drive/manual", h.handleManualDriveWS)

	// Authenticated
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/me", h.handleMe)
		r.Get("/nodes", h.handleNodes)
		r.Get("/routes", h.handleGetRoutes)
		r.Post("/routes/select", h.handleSelectRoute)
		r.Post("/drive/lock", h.handleAcquireLock)
		r.Delete("/drive/lock", h.handleReleaseLock)
		r.Get("/robot/check", h.handleCheckRobot)

		// Admin-only
		r.Group(func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Get("/user", h.handleGetUser)
			r.Post("/user", h.handleUpdateUser)
			r.Delete("/user", h.handleDeleteUser)
			r.Post("/routes", h.handleAddRoute)
			r.Delete("/routes/{id}", h.handleDeleteRoute)
			r.Post("/routes/optimize", h.handleOptimizeRoutes)
		})
	})

	stopFn := func() {
		hub.Stop()
	}
	return r, stopFn
}

func (h *Handlers) handleBanner(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("TeleTable backend is running\n"))
}
