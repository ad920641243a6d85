package network

import (
	"sync"

	"go.uber.org/zap"
)

// Loopback connects peers inside one process; the first peer to join holds authority
// Delivery is synchronous in the sender's goroutine
type Loopback struct {
	mu        sync.Mutex
	ends      []*LoopbackEnd
	authority string
	duplicate bool
	held      map[string][][]byte
	logger    *zap.Logger
}

func NewLoopback(logger *zap.Logger) *Loopback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loopback{held: make(map[string][][]byte), logger: logger}
}

// LoopbackEnd is one peer's Link onto a Loopback
type LoopbackEnd struct {
	*endpoint
	hub    *Loopback
	closed bool
}

// Join adds a peer; an empty id generates one
func (l *Loopback) Join(id string) *LoopbackEnd {
	e := newEndpoint(id, 0, l.logger.With(zap.String("component", "network.loopback")))
	end := &LoopbackEnd{endpoint: e, hub: l}
	e.send = func(payload []byte) error { return l.broadcast(end, payload) }

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.authority == "" {
		l.authority = e.local
	}
	e.setAuthority(l.authority)
	l.ends = append(l.ends, end)
	l.updateRosterLocked()
	return end
}

// SetDuplicate makes every delivery happen twice, as an at-least-once channel may
func (l *Loopback) SetDuplicate(on bool) {
	l.mu.Lock()
	l.duplicate = on
	l.mu.Unlock()
}

// Hold buffers deliveries to id until Release, simulating a stalled link
func (l *Loopback) Hold(id string) {
	l.mu.Lock()
	if _, ok := l.held[id]; !ok {
		l.held[id] = nil
	}
	l.mu.Unlock()
}

// Release flushes held deliveries to id in their original order
func (l *Loopback) Release(id string) {
	l.mu.Lock()
	pending, ok := l.held[id]
	delete(l.held, id)
	var target *LoopbackEnd
	for _, end := range l.ends {
		if end.local == id {
			target = end
		}
	}
	l.mu.Unlock()

	if !ok || target == nil {
		return
	}
	for _, payload := range pending {
		target.deliver(payload)
	}
}

func (l *Loopback) broadcast(from *LoopbackEnd, payload []byte) error {
	l.mu.Lock()
	if from.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	var targets []*LoopbackEnd
	copies := 1
	if l.duplicate {
		copies = 2
	}
	for _, end := range l.ends {
		if end == from {
			continue
		}
		if pending, held := l.held[end.local]; held {
			for range copies {
				pending = append(pending, payload)
			}
			l.held[end.local] = pending
			continue
		}
		targets = append(targets, end)
	}
	l.mu.Unlock()

	for _, end := range targets {
		for range copies {
			end.deliver(payload)
		}
	}
	return nil
}

func (l *Loopback) updateRosterLocked() {
	for _, end := range l.ends {
		end.players.Store(int32(len(l.ends)))
	}
}

// Close leaves the loopback
func (end *LoopbackEnd) Close() error {
	l := end.hub
	l.mu.Lock()
	defer l.mu.Unlock()
	if end.closed {
		return nil
	}
	end.closed = true
	for i, e := range l.ends {
		if e == end {
			l.ends = append(l.ends[:i], l.ends[i+1:]...)
			break
		}
	}
	l.updateRosterLocked()
	return nil
}
