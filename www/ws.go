package www

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"teletable/auth"
	"teletable/robot"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The robot and the SPA connect cross-origin on the LAN.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleRobotControlWS is the downlink: the robot connects here and
// receives every published command as JSON. Write-only; inbound frames
// are read and discarded to service control messages.
func (h *Handlers) handleRobotControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("www: robot ws upgrade: %v", err)
		return
	}
	defer conn.Close()

	id, cmds := h.coord.Bus.Subscribe()
	defer h.coord.Bus.Unsubscribe(id)
	log.Printf("www: robot command downlink connected from %s", r.RemoteAddr)

	// Reader pump: discard inbound frames, detect disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case cmd, ok := <-cmds:
			if !ok {
				// Evicted for lagging; the robot must reconnect.
				log.Printf("www: robot downlink evicted (lagging)")
				return
			}
			data, err := robot.EncodeCommand(cmd)
			if err != nil {
				log.Printf("www: encode command: %v", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// handleManualDriveWS relays user commands onto the command bus. The
// token travels as a query parameter because browser WebSocket clients
// cannot set headers. Disallowed frames are dropped without closing the
// session.
func (h *Handlers) handleManualDriveWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	id, err := auth.VerifyToken(token, h.jwtSecret)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("www: manual ws upgrade: %v", err)
		return
	}
	defer conn.Close()
	log.Printf("www: manual drive session opened by %s (%s)", id.Name, id.Role)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		cmd, err := robot.DecodeCommand(data)
		if err != nil {
			continue
		}
		h.coord.HandleManualCommand(id.UserID, id.Name, id.Role, cmd)
	}
}
