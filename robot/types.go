package robot

import (
	"time"

	"github.com/google/uuid"

	"teletable/auth"
)

// Telemetry is the table's self-reported state, replaced wholesale on
// every ingest. Field names match the robot's camelCase wire format.
type Telemetry struct {
	SystemHealth    string  `json:"systemHealth"`
	BatteryLevel    int     `json:"batteryLevel"`
	DriveMode       string  `json:"driveMode"`
	CargoStatus     string  `json:"cargoStatus"`
	CurrentPosition string  `json:"currentPosition"`
	LastNode        *string `json:"lastNode"`
	TargetNode      *string `json:"targetNode"`
}

const (
	HealthOK      = "OK"
	HealthWarning = "WARNING"
	HealthError   = "ERROR"
	HealthOffline = "OFFLINE"
	HealthUnknown = "UNKNOWN"

	DriveModeManual  = "MANUAL"
	DriveModeAuto    = "AUTO"
	DriveModeIdle    = "IDLE"
	DriveModeUnknown = "UNKNOWN"

	CargoLoading           = "LOADING"
	CargoInTransit         = "IN_TRANSIT"
	CargoDeliveryConfirmed = "DELIVERY_CONFIRMED"
	CargoEmpty             = "EMPTY"
	CargoUnknown           = "UNKNOWN"
)

// Event is an out-of-band notification pushed by the table.
type Event struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// Route is a queued or active navigation job.
type Route struct {
	ID          uuid.UUID `json:"id"`
	Start       string    `json:"start"`
	Destination string    `json:"destination"`
	AddedAt     time.Time `json:"added_at"`
	AddedBy     string    `json:"added_by"`
}

// ManualLock is the exclusive manual-drive claim. A lock whose ExpiresAt
// is in the past is treated as absent everywhere.
type ManualLock struct {
	HolderID   uuid.UUID `json:"holder_id"`
	HolderName string    `json:"holder_name"`
	HolderRole auth.Role `json:"holder_role"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}
