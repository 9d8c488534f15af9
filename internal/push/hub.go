package push

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"onecam/internal/domain"
	"onecam/internal/middleware"
)

// EventNewImage is the event name carried by replication announcements.
const EventNewImage = "new_image"

// Envelope is the wire form of every pushed message.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Options configures a Hub.
type Options struct {
	AllowedOrigins []string
	SendBuffer     int
	PingInterval   time.Duration
	Logger         zerolog.Logger
}

// Hub fans notifications out to every connected websocket subscriber. A
// subscriber that cannot keep up is disconnected instead of slowing the others.
type Hub struct {
	upgrader     websocket.Upgrader
	sendBuffer   int
	pingInterval time.Duration
	logger       zerolog.Logger

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

func NewHub(opts Options) *Hub {
	buffer := opts.SendBuffer
	if buffer <= 0 {
		buffer = 16
	}
	ping := opts.PingInterval
	if ping <= 0 {
		ping = 30 * time.Second
	}
	h := &Hub{
		sendBuffer:   buffer,
		pingInterval: ping,
		logger:       opts.Logger,
		subs:         make(map[*subscriber]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

// Broadcast delivers n to every current subscriber in its framing. It never
// blocks on a slow subscriber.
func (h *Hub) Broadcast(n domain.Notification) {
	envelope, err := json.Marshal(Envelope{Event: EventNewImage, Data: n})
	if err != nil {
		h.logger.Error().Err(err).Msg("encode notification")
		return
	}
	event, err := encodeSocketIOEvent(EventNewImage, n)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode notification")
		return
	}

	h.mu.Lock()
	targets := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		payload := envelope
		if s.framing == framingSocketIO {
			payload = event
		}
		if !s.enqueue(payload) {
			h.logger.Warn().Str("subscriber", s.id).Msg("subscriber too slow; disconnecting")
			h.remove(s)
		}
	}
	h.logger.Debug().Str("image_path", n.ImagePath).Int("subscribers", len(targets)).Msg("notification broadcast")
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()
	for _, s := range subs {
		h.remove(s)
	}
}

// ServeWS upgrades the request and registers the connection as a subscriber
// receiving Envelope frames.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("websocket upgrade failed")
		return
	}
	s := h.newSubscriber(conn, framingEnvelope)
	if !h.add(s) {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	h.logConnect(r, s)

	go s.writePump(h.pingInterval)
	go func() {
		s.readPump(h.pingInterval, nil)
		h.remove(s)
	}()
}

func (h *Hub) newSubscriber(conn *websocket.Conn, f framing) *subscriber {
	return &subscriber{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan []byte, h.sendBuffer),
		framing: f,
		done:    make(chan struct{}),
	}
}

func (h *Hub) logConnect(r *http.Request, s *subscriber) {
	log := h.logger.Info().Str("subscriber", s.id).Str("remote", middleware.ClientIP(r))
	if country := middleware.CountryFromContext(r.Context()); country != "" {
		log = log.Str("country", country)
	}
	log.Msg("client connected")
}

func (h *Hub) add(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subs[s] = struct{}{}
	return true
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s]
	delete(h.subs, s)
	h.mu.Unlock()
	if ok {
		s.close()
		h.logger.Info().Str("subscriber", s.id).Msg("client disconnected")
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
