package www

import (
	"net/http"

	"teletable/robot"
)

type lastRoute struct {
	StartNode string `json:"start_node"`
	EndNode   string `json:"end_node"`
}

// statusResponse mirrors the robot's camelCase telemetry vocabulary.
type statusResponse struct {
	SystemHealth         string     `json:"systemHealth"`
	BatteryLevel         int        `json:"batteryLevel"`
	DriveMode            string     `json:"driveMode"`
	CargoStatus          string     `json:"cargoStatus"`
	LastRoute            *lastRoute `json:"lastRoute"`
	Position             string     `json:"position"`
	ManualLockHolderName *string    `json:"manualLockHolderName"`
	RobotConnected       bool       `json:"robotConnected"`
}

// handleStatus reports the last-known robot state. Unknown fields come
// back as UNKNOWN rather than an error so the UI can always render.
func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.coord.Snapshot()

	resp := statusResponse{
		SystemHealth:   robot.HealthUnknown,
		DriveMode:      robot.DriveModeUnknown,
		CargoStatus:    robot.CargoUnknown,
		Position:       "UNKNOWN",
		RobotConnected: snap.Connected,
	}
	if t := snap.Telemetry; t != nil {
		resp.SystemHealth = t.SystemHealth
		resp.BatteryLevel = t.BatteryLevel
		resp.DriveMode = t.DriveMode
		resp.CargoStatus = t.CargoStatus
		resp.Position = t.CurrentPosition
		if t.LastNode != nil && t.TargetNode != nil {
			resp.LastRoute = &lastRoute{StartNode: *t.LastNode, EndNode: *t.TargetNode}
		}
	}
	if snap.LockHolder != "" {
		holder := snap.LockHolder
		resp.ManualLockHolderName = &holder
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTableState ingests a telemetry report from the robot.
func (h *Handlers) handleTableState(w http.ResponseWriter, r *http.Request) {
	var t robot.Telemetry
	if !decodeBody(w, r, &t) {
		return
	}
	h.coord.UpdateTelemetry(t)
	writeJSON(w, http.StatusOK, controlResult{Status: "success"})
}

// handleTableEvent ingests an out-of-band robot event.
func (h *Handlers) handleTableEvent(w http.ResponseWriter, r *http.Request) {
	var e robot.Event
	if !decodeBody(w, r, &e) {
		return
	}
	h.coord.NotifyEvent(e)
	writeJSON(w, http.StatusOK, controlResult{Status: "success"})
}

type registerTableRequest struct {
	URL string `json:"url"`
}

// handleTableRegister records the robot's control URL, the HTTP
// alternative to UDP discovery.
func (h *Handlers) handleTableRegister(w http.ResponseWriter, r *http.Request) {
	var req registerTableRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.URL == "" {
		jsonError(w, http.StatusBadRequest, "url is required")
		return
	}
	h.coord.RegisterRobot(req.URL)
	writeJSON(w, http.StatusOK, controlResult{Status: "success"})
}
