package www

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"teletable/robot"
)

type nodesResponse struct {
	Nodes []string `json:"nodes"`
}

// handleNodes returns the known node list, or 503 with an empty list
// when the robot has never told us.
func (h *Handlers) handleNodes(w http.ResponseWriter, r *http.Request) {
	nodes := h.coord.Nodes(r.Context())
	if nodes == nil {
		writeJSON(w, http.StatusServiceUnavailable, nodesResponse{Nodes: []string{}})
		return
	}
	writeJSON(w, http.StatusOK, nodesResponse{Nodes: nodes})
}

type routesResponse struct {
	Pending []robot.Route `json:"pending"`
	Active  *robot.Route  `json:"active"`
}

func (h *Handlers) handleGetRoutes(w http.ResponseWriter, r *http.Request) {
	pending, active := h.coord.Routes()
	if pending == nil {
		pending = []robot.Route{}
	}
	writeJSON(w, http.StatusOK, routesResponse{Pending: pending, Active: active})
}

type addRouteRequest struct {
	Start       string `json:"start"`
	Destination string `json:"destination"`
}

func (h *Handlers) handleAddRoute(w http.ResponseWriter, r *http.Request) {
	var req addRouteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Start == "" || req.Destination == "" {
		jsonError(w, http.StatusBadRequest, "start and destination are required")
		return
	}
	route := h.coord.Enqueue(req.Start, req.Destination, identityFrom(r).Name)
	writeJSON(w, http.StatusCreated, route)
}

func (h *Handlers) handleDeleteRoute(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid route id")
		return
	}
	if err := h.coord.RemoveRoute(id); err != nil {
		if errors.Is(err, robot.ErrRouteNotFound) {
			jsonError(w, http.StatusNotFound, "Route not found")
			return
		}
		jsonError(w, http.StatusInternalServerError, "failed to remove route")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleOptimizeRoutes(w http.ResponseWriter, r *http.Request) {
	h.coord.OptimizeRoutes()
	controlOK(w, "Optimization triggered")
}

type selectRouteRequest struct {
	Start       string `json:"start"`
	Destination string `json:"destination"`
}

// handleSelectRoute publishes a direct NAVIGATE. Refused while a manual
// lock is active; the refusal is data, not a transport error.
func (h *Handlers) handleSelectRoute(w http.ResponseWriter, r *http.Request) {
	var req selectRouteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.coord.SelectRoute(req.Start, req.Destination); err != nil {
		controlError(w, err.Error())
		return
	}
	controlOK(w, "Route selected")
}

func (h *Handlers) handleAcquireLock(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	out := h.coord.AcquireLock(id.UserID, id.Name, id.Role)
	switch out.Status {
	case robot.LockAcquired:
		controlOK(w, "Lock acquired")
	case robot.LockRefusedHeld:
		controlError(w, fmt.Sprintf("Lock held by %s", out.HeldBy))
	case robot.LockRefusedActiveRoute:
		controlError(w, "Cannot acquire lock while a route is active")
	case robot.LockForbidden:
		jsonError(w, http.StatusForbidden, "Role may not acquire the manual lock")
	default:
		controlError(w, "Lock not acquired")
	}
}

func (h *Handlers) handleReleaseLock(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	out := h.coord.ReleaseLock(id.UserID)
	if out.Status == robot.LockReleased {
		controlOK(w, "Lock released")
		return
	}
	controlError(w, "You do not hold the lock")
}

type checkRobotResponse struct {
	Status      string `json:"status"`
	Connected   bool   `json:"connected"`
	URL         string `json:"url,omitempty"`
	RobotStatus int    `json:"robot_status,omitempty"`
	Message     string `json:"message,omitempty"`
}

func (h *Handlers) handleCheckRobot(w http.ResponseWriter, r *http.Request) {
	res := h.coord.CheckRobot(r.Context())
	resp := checkRobotResponse{
		Connected:   res.Connected,
		URL:         res.URL,
		RobotStatus: res.RobotStatus,
		Message:     res.Message,
	}
	// "success" means the probe got an HTTP response at all; connected
	// additionally requires a 2xx.
	if res.RobotStatus != 0 {
		resp.Status = "success"
	} else {
		resp.Status = "error"
	}
	writeJSON(w, http.StatusOK, resp)
}
