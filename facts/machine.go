package facts

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lixenwraith/buildrun/message"
	"github.com/lixenwraith/buildrun/spawn"
)

var (
	// ErrUnauthorized reports an authoritative-only fact sent by a non-authoritative peer
	ErrUnauthorized = errors.New("sender is not authoritative")
	// ErrUnhandled reports a message the machine does not own
	ErrUnhandled = errors.New("message not handled")
)

// Authority answers which peer may make binding random choices
type Authority interface {
	IsAuthoritative() bool
	AuthorityID() string
}

// EffectKind enumerates world-side consequences of a fact change
type EffectKind uint8

const (
	// EffectClearPossession detaches the treasure from whichever local player carries it
	EffectClearPossession EffectKind = iota
	// EffectMoveTreasure repositions the treasure body to Pos
	EffectMoveTreasure
	// EffectResetLevel removes every non-avatar obstacle
	EffectResetLevel
	// EffectBroadcastSpawn sends Pos to all peers as the new authoritative spawn
	EffectBroadcastSpawn
)

var effectNames = [...]string{"clear_possession", "move_treasure", "reset_level", "broadcast_spawn"}

func (k EffectKind) String() string {
	if int(k) < len(effectNames) {
		return effectNames[k]
	}
	return fmt.Sprintf("effect(%d)", uint8(k))
}

// Effect is applied by the caller after Apply returns
type Effect struct {
	Kind EffectKind
	Pos  spawn.Position
}

// Machine applies inbound messages to Facts
type Machine struct {
	facts    *Facts
	auth     Authority
	selector *spawn.Selector
	logger   *zap.Logger
}

// NewMachine starts with the treasure at the selector's first candidate, marked as the current spawn
func NewMachine(auth Authority, selector *spawn.Selector, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	initial := selector.First()
	selector.Mark(initial)
	return &Machine{
		facts:    New(initial),
		auth:     auth,
		selector: selector,
		logger:   logger.With(zap.String("component", "facts")),
	}
}

// Facts returns a copy of the current facts
func (m *Machine) Facts() Facts { return m.facts.Clone() }

// Snapshot is the deterministic encoding of the current facts
func (m *Machine) Snapshot() []byte { return m.facts.Snapshot() }

// ResetRound zeroes the ready and reset counters between rounds
func (m *Machine) ResetRound() {
	m.facts.ReadyCount = 0
	m.facts.ResetCount = 0
}

// ClearLevelReset acknowledges a handled level reset
func (m *Machine) ClearLevelReset() { m.facts.LevelReset = false }

// Apply mutates facts for one message from sender and returns the resulting effects
// Create messages and unknown tags return ErrUnhandled with facts unchanged
func (m *Machine) Apply(sender string, msg message.Message) ([]Effect, error) {
	switch msg := msg.(type) {
	case message.Signal:
		return m.applySignal(msg.Kind), nil
	case message.ColorAssign:
		m.facts.Colors[msg.PlayerID] = msg.Color
		return nil, nil
	case message.TreasureSpawn:
		return m.applySpawn(sender, spawn.Position{X: msg.X, Y: msg.Y})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnhandled, msg.Tag())
	}
}

func (m *Machine) applySignal(tag message.Tag) []Effect {
	f := m.facts
	switch tag {
	case message.TagBuildReady:
		f.ReadyCount++
	case message.TagMovementEnd:
		f.ResetCount++
	case message.TagTreasureTaken:
		f.TreasureTaken = true
	case message.TagTreasureStolen:
		f.TreasureTaken = false
		return []Effect{{Kind: EffectClearPossession}}
	case message.TagTreasureLost:
		f.TreasureTaken = false
		f.TreasureStealable = true
		f.TreasurePos = f.LastSpawn
		return []Effect{
			{Kind: EffectClearPossession},
			{Kind: EffectMoveTreasure, Pos: f.LastSpawn},
		}
	case message.TagTreasureWon:
		f.TreasureTaken = false
		f.TreasureStealable = true
		if !m.auth.IsAuthoritative() {
			return []Effect{{Kind: EffectClearPossession}}
		}
		next := m.selector.PickNext()
		f.TreasurePos = next
		f.LastSpawn = next
		m.logger.Debug("treasure respawn picked", zap.Stringer("pos", next))
		return []Effect{
			{Kind: EffectClearPossession},
			{Kind: EffectMoveTreasure, Pos: next},
			{Kind: EffectBroadcastSpawn, Pos: next},
		}
	case message.TagMakeUnstealable:
		f.TreasureStealable = false
	case message.TagHostStart:
		f.HostStarted = true
	case message.TagScoreUpdate:
	case message.TagResetLevel:
		f.LevelReset = true
		f.ReadyCount = 0
		f.ResetCount = 0
		f.TreasureTaken = false
		f.TreasureStealable = true
		f.TreasurePos = f.LastSpawn
		return []Effect{{Kind: EffectResetLevel}}
	}
	return nil
}

func (m *Machine) applySpawn(sender string, pos spawn.Position) ([]Effect, error) {
	if m.auth.IsAuthoritative() {
		// own spawn echoed back, already applied when picked
		return nil, nil
	}
	if sender != m.auth.AuthorityID() {
		return nil, fmt.Errorf("%w: treasure spawn from %q", ErrUnauthorized, sender)
	}
	m.facts.TreasurePos = pos
	m.facts.LastSpawn = pos
	// keep the rotation in step in case authority passes to this peer
	if !m.selector.Mark(pos) {
		m.logger.Warn("mirrored spawn outside local pool", zap.Stringer("pos", pos))
	}
	return []Effect{{Kind: EffectMoveTreasure, Pos: pos}}, nil
}
