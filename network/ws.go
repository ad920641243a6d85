package network

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lixenwraith/buildrun/logging"
)

// WSChannel is a peer connected to a websocket relay
// The relay names the authority; it is the longest-connected peer
type WSChannel struct {
	*endpoint
	ws     *websocket.Conn
	cfg    *Config
	sendCh chan []byte

	closeCh   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// DialRelay connects to cfg.Address, a ws:// or wss:// URL, and completes the handshake
func DialRelay(ctx context.Context, cfg *Config, logger *zap.Logger) (*WSChannel, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.ConnectTimeout,
		TLSClientConfig:  cfg.TLS,
	}
	ws, _, err := dialer.DialContext(ctx, cfg.Address, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", cfg.Address, err)
	}

	e := newEndpoint(cfg.LocalID, cfg.RecvQueueSize, logger.With(zap.String("component", "network.ws")))

	welcome, err := func() (Welcome, error) {
		_ = ws.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
		if err := ws.WriteMessage(websocket.BinaryMessage, HelloFrame(e.local).Marshal()); err != nil {
			return Welcome{}, err
		}
		_ = ws.SetReadDeadline(time.Now().Add(cfg.ConnectTimeout))
		_, data, err := ws.ReadMessage()
		if err != nil {
			return Welcome{}, fmt.Errorf("%w: %v", ErrPeerRejected, err)
		}
		f, err := ParseFrame(data)
		if err != nil {
			return Welcome{}, err
		}
		return ParseWelcome(f)
	}()
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("relay handshake: %w", err)
	}
	_ = ws.SetReadDeadline(time.Time{})

	e.setAuthority(welcome.Authority)
	e.players.Store(int32(welcome.Players))

	w := &WSChannel{
		endpoint: e,
		ws:       ws,
		cfg:      cfg,
		sendCh:   make(chan []byte, cfg.SendQueueSize),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	e.send = w.enqueue

	logging.Go(e.logger, "ws-read", w.readLoop)
	logging.Go(e.logger, "ws-write", w.writeLoop)
	e.logger.Info("joined relay",
		zap.String("authority", welcome.Authority),
		zap.Int("players", welcome.Players),
	)
	return w, nil
}

func (w *WSChannel) enqueue(payload []byte) error {
	select {
	case <-w.closeCh:
		return ErrClosed
	default:
	}
	data := Frame{Type: FrameEvent, Payload: payload}.Marshal()
	select {
	case w.sendCh <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *WSChannel) readLoop() {
	defer close(w.done)
	defer w.Close()

	for {
		_, data, err := w.ws.ReadMessage()
		if err != nil {
			select {
			case <-w.closeCh:
			default:
				w.logger.Info("relay connection ended", zap.Error(err))
			}
			return
		}
		f, err := ParseFrame(data)
		if err != nil {
			w.malformed.Add(1)
			continue
		}
		switch f.Type {
		case FrameEvent:
			w.deliver(f.Payload)
		case FrameRoster:
			if n, err := ParseRoster(f); err == nil {
				w.players.Store(int32(n))
			}
		case FrameWelcome:
			if wl, err := ParseWelcome(f); err == nil {
				w.setAuthority(wl.Authority)
				w.players.Store(int32(wl.Players))
				w.logger.Info("authority changed", zap.String("authority", wl.Authority))
			}
		}
	}
}

// writeLoop is the connection's only writer
func (w *WSChannel) writeLoop() {
	var ping <-chan time.Time
	if w.cfg.HeartbeatInterval > 0 {
		ticker := time.NewTicker(w.cfg.HeartbeatInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-w.closeCh:
			_ = w.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
				time.Now().Add(w.cfg.WriteTimeout))
			w.ws.Close()
			return
		case data := <-w.sendCh:
			_ = w.ws.SetWriteDeadline(time.Now().Add(w.cfg.WriteTimeout))
			if err := w.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
				w.Close()
				return
			}
		case <-ping:
			if err := w.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.cfg.WriteTimeout)); err != nil {
				w.Close()
				return
			}
		}
	}
}

// Done is closed when the relay connection drops
func (w *WSChannel) Done() <-chan struct{} { return w.done }

func (w *WSChannel) Close() error {
	w.closeOnce.Do(func() { close(w.closeCh) })
	return nil
}
