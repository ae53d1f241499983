// Package hub is the relay that clients log in to. It tracks who is online
// and forwards call invitations and answers between them.
package hub

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"peercall/internal/domain"
	"peercall/internal/signal"
)

const (
	writeWait        = 10 * time.Second
	handshakeWait    = 10 * time.Second
	maxMessageBytes  = 1 << 20
	sendQueueLength  = 256
	defaultPingEvery = 30 * time.Second
)

var (
	errNameTaken    = errors.New("name already in use")
	errBadHandshake = errors.New("first message must be User/add with a name")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Clients are native programs, not browser pages.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Option configures a Hub.
type Option func(*Hub)

// WithICEServers sets the ICE servers published on /ice.
func WithICEServers(servers []domain.ICEServer) Option {
	return func(h *Hub) { h.iceServers = servers }
}

// conference is an offered call waiting for its invitees to accept.
type conference struct {
	initiator string
	pending   map[string]struct{}
}

// Hub holds the connected clients and open conferences.
type Hub struct {
	pingInterval time.Duration
	iceServers   []domain.ICEServer
	log          zerolog.Logger

	mu          sync.Mutex
	clients     []*client
	conferences map[string]*conference
}

// New creates an empty hub. Connections are pinged every pingInterval.
func New(pingInterval time.Duration, opts ...Option) *Hub {
	if pingInterval <= 0 {
		pingInterval = defaultPingEvery
	}
	h := &Hub{
		pingInterval: pingInterval,
		log:          log.With().Str("component", "hub").Logger(),
		conferences:  make(map[string]*conference),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router serves the websocket endpoint and a health check.
func (h *Hub) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/websocket", h.ServeWS)
	r.Get("/ice", h.serveICE)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

func (h *Hub) serveICE(w http.ResponseWriter, r *http.Request) {
	servers := h.iceServers
	if servers == nil {
		servers = []domain.ICEServer{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"iceServers": servers}); err != nil {
		h.log.Warn().Err(err).Msg("write ICE servers")
	}
}

// Conferences reports how many offered calls still wait for an accept.
func (h *Hub) Conferences() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conferences)
}

// Names lists connected participants in join order.
func (h *Hub) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.clients))
	for _, c := range h.clients {
		names = append(names, c.name)
	}
	return names
}

// ServeWS upgrades the request and runs the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade")
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	name, err := readLogin(conn)
	if err != nil {
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("rejecting connection")
		reject(conn, err)
		return
	}

	c := &client{
		hub:  h,
		name: name,
		conn: conn,
		send: make(chan []byte, sendQueueLength),
		log:  h.log.With().Str("name", name).Logger(),
	}
	if err := h.register(c); err != nil {
		c.log.Warn().Err(err).Msg("rejecting connection")
		reject(conn, err)
		return
	}

	go c.writePump()
	c.readPump()
}

func readLogin(conn *websocket.Conn) (string, error) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeWait))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", err
	}
	ev, err := signal.Decode(data)
	if err != nil {
		return "", errBadHandshake
	}
	add, ok := ev.(domain.UserAdded)
	if !ok || add.Name == "" {
		return "", errBadHandshake
	}
	return add.Name, nil
}

func reject(conn *websocket.Conn, reason error) {
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason.Error()),
		time.Now().Add(writeWait),
	)
	conn.Close()
}

// register adds c, sends it the current participants (itself last) and
// announces it to everyone else.
func (h *Hub) register(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, other := range h.clients {
		if other.name == c.name {
			return errNameTaken
		}
	}

	for _, other := range h.clients {
		c.enqueue(domain.UserAdded{Name: other.name})
		other.enqueue(domain.UserAdded{Name: c.name})
	}
	h.clients = append(h.clients, c)
	c.enqueue(domain.UserAdded{Name: c.name})

	c.log.Info().Int("online", len(h.clients)).Msg("joined")
	return nil
}

// unregister removes c, drops the conferences it started and tells everyone
// it left.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, other := range h.clients {
		if other == c {
			h.clients = append(h.clients[:i], h.clients[i+1:]...)
			break
		}
	}
	for id, conf := range h.conferences {
		delete(conf.pending, c.name)
		if conf.initiator == c.name || len(conf.pending) == 0 {
			delete(h.conferences, id)
		}
	}
	close(c.send)

	for _, other := range h.clients {
		other.enqueue(domain.UserRemoved{Name: c.name})
	}
	c.log.Info().Int("online", len(h.clients)).Msg("left")
}

// route handles one message from c.
func (h *Hub) route(c *client, ev domain.Event) {
	switch ev := ev.(type) {
	case domain.CallOffer:
		h.startConference(c, ev)
	case domain.CallAccepted:
		h.acceptConference(c, ev)
	default:
		c.log.Debug().Str("object", ev.Object()).Str("action", ev.Action()).Msg("ignoring message")
	}
}

func (h *Hub) startConference(c *client, offer domain.CallOffer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.NewString()
	conf := &conference{initiator: c.name, pending: make(map[string]struct{})}
	c.log.Info().Str("conference", id).Strs("users", offer.Users).Msg("call offered")

	for _, target := range offer.Users {
		if target == c.name {
			continue
		}
		peer := h.findLocked(target)
		if peer == nil {
			c.log.Warn().Str("target", target).Msg("offer to unknown participant")
			continue
		}
		conf.pending[target] = struct{}{}
		peer.enqueue(domain.CallInvite{
			From:             c.name,
			Conference:       id,
			LocalDescription: offer.LocalDescription,
		})
	}
	if len(conf.pending) > 0 {
		h.conferences[id] = conf
	}
}

func (h *Hub) acceptConference(c *client, accepted domain.CallAccepted) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conf, ok := h.conferences[accepted.Conference]
	if !ok {
		c.log.Warn().Str("conference", accepted.Conference).Msg("accept for unknown conference")
		return
	}
	if _, invited := conf.pending[c.name]; !invited {
		c.log.Warn().Str("conference", accepted.Conference).Msg("accept from someone not waiting on this conference")
		return
	}
	delete(conf.pending, c.name)
	if len(conf.pending) == 0 {
		delete(h.conferences, accepted.Conference)
	}

	initiator := conf.initiator
	peer := h.findLocked(initiator)
	if peer == nil {
		c.log.Warn().Str("initiator", initiator).Msg("initiator gone")
		return
	}
	c.log.Info().Str("conference", accepted.Conference).Str("initiator", initiator).Msg("call accepted")
	peer.enqueue(domain.CallAnswer{LocalDescription: accepted.LocalDescription})
}

func (h *Hub) findLocked(name string) *client {
	for _, c := range h.clients {
		if c.name == name {
			return c
		}
	}
	return nil
}
