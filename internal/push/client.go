package push

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// framing selects how messages are written to a subscriber.
type framing int

const (
	framingEnvelope framing = iota
	framingSocketIO
)

type subscriber struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	framing framing

	once sync.Once
	done chan struct{}
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// enqueue queues msg without blocking and reports whether it fit.
func (s *subscriber) enqueue(msg []byte) bool {
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

// writePump is the only goroutine writing to the connection once the
// handshake is done.
func (s *subscriber) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.close()
	}()
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			kind, ping := websocket.PingMessage, []byte(nil)
			if s.framing == framingSocketIO {
				kind, ping = websocket.TextMessage, []byte{eioPing}
			}
			if err := s.conn.WriteMessage(kind, ping); err != nil {
				return
			}
		}
	}
}

// readPump keeps the read deadline moving on pongs and inbound messages and
// hands each message to onMessage, if set. It returns when the peer goes away
// or onMessage returns false.
func (s *subscriber) readPump(pingInterval time.Duration, onMessage func([]byte) bool) {
	pongWait := pingInterval * 2
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		if onMessage != nil && !onMessage(msg) {
			return
		}
	}
}
