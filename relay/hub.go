// Package relay is a websocket fan-out server for peers without a reachable host
package relay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lixenwraith/buildrun/network"
)

// Config tunes the relay
type Config struct {
	MaxPeers     int
	SendQueue    int
	EventRate    rate.Limit // per client events/second
	EventBurst   int
	WriteTimeout time.Duration
	HelloTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxPeers:     8,
		SendQueue:    256,
		EventRate:    200,
		EventBurst:   400,
		WriteTimeout: 5 * time.Second,
		HelloTimeout: 5 * time.Second,
	}
}

// Stats are cumulative hub counters
type Stats struct {
	Clients   int
	Relayed   uint64
	Limited   uint64
	Overflow  uint64
	Rejected  uint64
	Malformed uint64
}

type client struct {
	id      string
	ws      *websocket.Conn
	sendCh  chan []byte
	limiter *rate.Limiter

	closeCh   chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.closeCh) })
}

// Hub tracks connected peers in join order; the oldest holds authority
type Hub struct {
	cfg    Config
	logger *zap.Logger

	mu      deadlock.Mutex
	clients map[string]*client
	order   []string

	relayed   atomic.Uint64
	limited   atomic.Uint64
	overflow  atomic.Uint64
	rejected  atomic.Uint64
	malformed atomic.Uint64
}

func NewHub(cfg Config, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.SendQueue = max(cfg.SendQueue, 1)
	return &Hub{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "relay.hub")),
		clients: make(map[string]*client),
	}
}

// join registers c and queues its welcome; false if the id is taken or the hub is full
func (h *Hub) join(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, dup := h.clients[c.id]; dup || len(h.clients) >= h.cfg.MaxPeers {
		h.rejected.Add(1)
		return false
	}
	h.clients[c.id] = c
	h.order = append(h.order, c.id)

	players := len(h.clients)
	c.sendCh <- network.WelcomeFrame(network.Welcome{Authority: h.order[0], Players: players}).Marshal()
	h.fanoutLocked(network.RosterFrame(players).Marshal(), c.id)
	h.logger.Info("peer joined", zap.String("id", c.id), zap.Int("players", players))
	return true
}

// leave unregisters c; when the authority leaves the next oldest peer takes over
func (h *Hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.id] != c {
		return
	}
	delete(h.clients, c.id)
	wasAuthority := h.order[0] == c.id
	for i, id := range h.order {
		if id == c.id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}

	players := len(h.clients)
	h.logger.Info("peer left", zap.String("id", c.id), zap.Int("players", players))
	if players == 0 {
		return
	}
	if wasAuthority {
		h.logger.Info("authority moved", zap.String("authority", h.order[0]))
		h.fanoutLocked(network.WelcomeFrame(network.Welcome{Authority: h.order[0], Players: players}).Marshal(), "")
		return
	}
	h.fanoutLocked(network.RosterFrame(players).Marshal(), "")
}

// relay forwards one event frame from c to every other client
func (h *Hub) relay(c *client, data []byte) {
	if !c.limiter.Allow() {
		h.limited.Add(1)
		h.logger.Warn("rate limited", zap.String("id", c.id))
		return
	}
	h.mu.Lock()
	h.fanoutLocked(data, c.id)
	h.mu.Unlock()
	h.relayed.Add(1)
}

func (h *Hub) fanoutLocked(data []byte, skip string) {
	for id, c := range h.clients {
		if id == skip {
			continue
		}
		select {
		case c.sendCh <- data:
		default:
			h.overflow.Add(1)
			h.logger.Warn("client send queue full, disconnecting", zap.String("id", id))
			c.close()
		}
	}
}

// Authority returns the current authoritative peer id
func (h *Hub) Authority() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.order) == 0 {
		return "", false
	}
	return h.order[0], true
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	n := len(h.clients)
	h.mu.Unlock()
	return Stats{
		Clients:   n,
		Relayed:   h.relayed.Load(),
		Limited:   h.limited.Load(),
		Overflow:  h.overflow.Load(),
		Rejected:  h.rejected.Load(),
		Malformed: h.malformed.Load(),
	}
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		c.close()
	}
}
