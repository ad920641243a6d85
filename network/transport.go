package network

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/lixenwraith/buildrun/logging"
)

// Host accepts TCP peers, relays every event frame to all other peers and holds authority
type Host struct {
	*endpoint
	cfg *Config
	ln  net.Listener

	mu    sync.RWMutex
	conns map[string]*conn

	closed atomic.Bool
	wg     sync.WaitGroup
}

// ListenHost binds cfg.Address and starts accepting peers
func ListenHost(cfg *Config, logger *zap.Logger) (*Host, error) {
	var (
		ln  net.Listener
		err error
	)
	if cfg.TLS != nil {
		ln, err = tls.Listen("tcp", cfg.Address, cfg.TLS)
	} else {
		ln, err = net.Listen("tcp", cfg.Address)
	}
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Address, err)
	}

	h := &Host{
		endpoint: newEndpoint(cfg.LocalID, cfg.RecvQueueSize, logger.With(zap.String("component", "network.host"))),
		cfg:      cfg,
		ln:       ln,
		conns:    make(map[string]*conn),
	}
	h.send = h.broadcast

	h.wg.Add(1)
	logging.Go(h.logger, "host-accept", h.acceptLoop)
	h.logger.Info("hosting session", zap.String("addr", ln.Addr().String()))
	return h, nil
}

// Addr returns the bound listener address
func (h *Host) Addr() net.Addr { return h.ln.Addr() }

func (h *Host) acceptLoop() {
	defer h.wg.Done()

	for {
		nc, err := h.ln.Accept()
		if err != nil {
			if h.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			h.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		logging.Go(h.logger, "host-admit", func() { h.admit(nc) })
	}
}

// admit runs the hello/welcome handshake and registers the peer
func (h *Host) admit(nc net.Conn) {
	c := newConn(nc, h.cfg, h.logger)
	f, err := c.handshakeRead()
	if err == nil {
		c.id, err = ParseHello(f)
	}
	if err != nil {
		h.logger.Warn("handshake failed", zap.String("addr", c.addr), zap.Error(err))
		c.close()
		return
	}

	h.mu.Lock()
	_, dup := h.conns[c.id]
	if dup || c.id == h.local || len(h.conns) >= h.cfg.MaxPeers || h.closed.Load() {
		h.mu.Unlock()
		h.logger.Warn("rejecting peer", zap.String("id", c.id), zap.Bool("duplicate", dup))
		c.close()
		return
	}
	h.conns[c.id] = c
	players := len(h.conns) + 1
	h.players.Store(int32(players))
	h.mu.Unlock()

	if err := c.handshakeWrite(WelcomeFrame(Welcome{Authority: h.local, Players: players})); err != nil {
		h.logger.Warn("welcome failed", zap.String("id", c.id), zap.Error(err))
		h.drop(c)
		c.close()
		return
	}
	c.start(h.onFrame, h.drop)
	h.fanout(RosterFrame(players), c.id)
	h.logger.Info("peer joined", zap.String("id", c.id), zap.Int("players", players))
}

func (h *Host) onFrame(c *conn, f Frame) {
	switch f.Type {
	case FrameEvent:
		h.deliver(f.Payload)
		h.fanout(f, c.id)
	default:
		h.logger.Debug("ignoring frame", zap.String("from", c.id), zap.Uint8("type", uint8(f.Type)))
	}
}

func (h *Host) drop(c *conn) {
	h.mu.Lock()
	if h.conns[c.id] != c {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c.id)
	players := len(h.conns) + 1
	h.players.Store(int32(players))
	h.mu.Unlock()

	h.logger.Info("peer left", zap.String("id", c.id), zap.Int("players", players))
	h.fanout(RosterFrame(players), "")
}

// fanout queues f on every peer except skip
func (h *Host) fanout(f Frame, skip string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var err error
	for id, c := range h.conns {
		if id == skip {
			continue
		}
		if !c.send(f) {
			err = multierr.Append(err, fmt.Errorf("%w: %s", ErrQueueFull, id))
		}
	}
	return err
}

func (h *Host) broadcast(payload []byte) error {
	if h.closed.Load() {
		return ErrClosed
	}
	return h.fanout(Frame{Type: FrameEvent, Payload: payload}, "")
}

// Close stops accepting and disconnects every peer
func (h *Host) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := h.ln.Close()

	h.mu.Lock()
	for _, c := range h.conns {
		c.close()
	}
	h.mu.Unlock()

	h.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// Client is a peer connected to a Host
type Client struct {
	*endpoint
	c    *conn
	done chan struct{}
}

// DialHost connects and completes the handshake before returning
func DialHost(ctx context.Context, cfg *Config, logger *zap.Logger) (*Client, error) {
	nc, err := dial(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Address, err)
	}

	e := newEndpoint(cfg.LocalID, cfg.RecvQueueSize, logger.With(zap.String("component", "network.client")))
	c := newConn(nc, cfg, e.logger)
	c.id = "host"

	welcome, err := func() (Welcome, error) {
		if err := c.handshakeWrite(HelloFrame(e.local)); err != nil {
			return Welcome{}, err
		}
		f, err := c.handshakeRead()
		if err != nil {
			return Welcome{}, fmt.Errorf("%w: %v", ErrPeerRejected, err)
		}
		return ParseWelcome(f)
	}()
	if err != nil {
		c.close()
		return nil, fmt.Errorf("handshake with %s: %w", cfg.Address, err)
	}

	e.setAuthority(welcome.Authority)
	e.players.Store(int32(welcome.Players))

	cl := &Client{endpoint: e, c: c, done: make(chan struct{})}
	cl.send = func(payload []byte) error {
		if !c.send(Frame{Type: FrameEvent, Payload: payload}) {
			select {
			case <-cl.done:
				return ErrClosed
			default:
				return ErrQueueFull
			}
		}
		return nil
	}
	c.start(cl.onFrame, func(*conn) {
		e.logger.Info("disconnected from host")
		close(cl.done)
	})
	e.logger.Info("joined session",
		zap.String("authority", welcome.Authority),
		zap.Int("players", welcome.Players),
	)
	return cl, nil
}

func (cl *Client) onFrame(_ *conn, f Frame) {
	switch f.Type {
	case FrameEvent:
		cl.deliver(f.Payload)
	case FrameRoster:
		if n, err := ParseRoster(f); err == nil {
			cl.players.Store(int32(n))
		}
	case FrameWelcome:
		if w, err := ParseWelcome(f); err == nil {
			cl.setAuthority(w.Authority)
			cl.players.Store(int32(w.Players))
		}
	}
}

// Done is closed when the host connection drops
func (cl *Client) Done() <-chan struct{} { return cl.done }

func (cl *Client) Close() error {
	cl.c.close()
	return nil
}
