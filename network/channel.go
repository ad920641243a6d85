// Package network moves message envelopes between peers of one session
package network

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lixenwraith/buildrun/event"
	"github.com/lixenwraith/buildrun/message"
)

var (
	ErrClosed       = errors.New("link closed")
	ErrQueueFull    = errors.New("send queue full")
	ErrPeerRejected = errors.New("peer rejected")
)

// Channel is the per-peer inbound queue and outbound broadcast
// Inbound order is FIFO per sender; the local peer never receives its own sends
type Channel interface {
	IsInAvailable() bool
	PopInEvent() (message.Envelope, bool)
	PushOutEvent(msg message.Message) error
}

// Session answers identity questions about the running session
type Session interface {
	LocalID() string
	PlayerCount() int
	IsAuthoritative() bool
	AuthorityID() string
}

// Link is a connected transport
type Link interface {
	Channel
	Session
	Close() error
}

// Stats counts inbound traffic the transport discarded
type Stats struct {
	Malformed uint64
	Overflow  uint64
}

// NewPeerID returns a short random id
func NewPeerID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// endpoint is the transport-independent half of a Link
type endpoint struct {
	local     string
	inbox     *event.Queue[message.Envelope]
	seq       atomic.Uint32
	authority atomic.Pointer[string]
	players   atomic.Int32
	malformed atomic.Uint64
	logger    *zap.Logger

	// send broadcasts an encoded envelope
	send func(payload []byte) error
}

func newEndpoint(local string, queueSize int, logger *zap.Logger) *endpoint {
	if local == "" {
		local = NewPeerID()
	}
	if queueSize <= 0 {
		queueSize = event.DefaultCapacity
	}
	e := &endpoint{
		local:  local,
		inbox:  event.NewQueue[message.Envelope](queueSize),
		logger: logger.With(zap.String("peer", local)),
	}
	e.players.Store(1)
	e.setAuthority(local)
	return e
}

func (e *endpoint) LocalID() string  { return e.local }
func (e *endpoint) PlayerCount() int { return int(e.players.Load()) }

func (e *endpoint) AuthorityID() string { return *e.authority.Load() }

func (e *endpoint) IsAuthoritative() bool { return e.AuthorityID() == e.local }

func (e *endpoint) setAuthority(id string) { e.authority.Store(&id) }

func (e *endpoint) IsInAvailable() bool { return e.inbox.Ready() }

func (e *endpoint) PopInEvent() (message.Envelope, bool) { return e.inbox.Pop() }

// PushOutEvent stamps the next sequence number and broadcasts
func (e *endpoint) PushOutEvent(msg message.Message) error {
	payload, err := message.Encode(message.Envelope{Sender: e.local, Seq: e.seq.Add(1), Msg: msg})
	if err != nil {
		return err
	}
	return e.send(payload)
}

// deliver decodes an inbound envelope into the inbox
func (e *endpoint) deliver(payload []byte) {
	env, err := message.Decode(payload)
	if err != nil {
		e.malformed.Add(1)
		e.logger.Warn("dropping inbound envelope", zap.Error(err))
		return
	}
	if env.Sender == e.local {
		return
	}
	if !e.inbox.Push(env) {
		e.logger.Warn("inbox full, dropping envelope",
			zap.String("sender", env.Sender),
			zap.Stringer("tag", env.Msg.Tag()),
		)
	}
}

func (e *endpoint) Stats() Stats {
	return Stats{Malformed: e.malformed.Load(), Overflow: e.inbox.Dropped()}
}
