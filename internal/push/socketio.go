package push

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Engine.IO v4 packet types.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
)

// Socket.IO v5 packet types, carried inside Engine.IO messages.
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioConnectError = '4'
)

type eioHandshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"`
	PingTimeout  int64    `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

type eioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// encodeSocketIOEvent renders 42["event",data] for the default namespace.
func encodeSocketIOEvent(event string, data any) ([]byte, error) {
	body, err := json.Marshal([]any{event, data})
	if err != nil {
		return nil, err
	}
	return append([]byte{eioMessage, sioEvent}, body...), nil
}

// ServeSocketIO accepts Socket.IO clients on the websocket transport. The
// subscriber joins the hub once it connects to the default namespace.
func (h *Hub) ServeSocketIO(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("EIO") != "4" {
		writeEIOError(w, 5, "Unsupported protocol version")
		return
	}
	if q.Get("transport") != "websocket" {
		writeEIOError(w, 0, "Transport unknown")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("websocket upgrade failed")
		return
	}
	s := h.newSubscriber(conn, framingSocketIO)

	open, err := json.Marshal(eioHandshake{
		SID:          s.id,
		Upgrades:     []string{},
		PingInterval: h.pingInterval.Milliseconds(),
		PingTimeout:  h.pingInterval.Milliseconds(),
		MaxPayload:   maxMessageSize,
	})
	if err != nil {
		_ = conn.Close()
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, append([]byte{eioOpen}, open...)); err != nil {
		_ = conn.Close()
		return
	}

	go s.writePump(h.pingInterval)
	go func() {
		s.readPump(h.pingInterval, func(msg []byte) bool {
			return h.handleSocketIO(r, s, msg)
		})
		h.remove(s)
		s.close()
	}()
}

// handleSocketIO reacts to one inbound packet and reports whether the
// connection stays open.
func (h *Hub) handleSocketIO(r *http.Request, s *subscriber, msg []byte) bool {
	if len(msg) == 0 {
		return true
	}
	switch msg[0] {
	case eioPong:
		return true
	case eioClose:
		return false
	case eioMessage:
		if len(msg) < 2 {
			return true
		}
		switch msg[1] {
		case sioConnect:
			if len(msg) > 2 && msg[2] == '/' {
				reply, _ := json.Marshal(map[string]string{"message": "Invalid namespace"})
				s.enqueue(append([]byte{eioMessage, sioConnectError}, reply...))
				return true
			}
			reply, _ := json.Marshal(map[string]string{"sid": s.id})
			s.enqueue(append([]byte{eioMessage, sioConnect}, reply...))
			if !h.add(s) {
				return false
			}
			h.logConnect(r, s)
		case sioDisconnect:
			return false
		}
	}
	return true
}

func writeEIOError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(eioError{Code: code, Message: message})
}
