package controller

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lixenwraith/buildrun/facts"
	"github.com/lixenwraith/buildrun/message"
	"github.com/lixenwraith/buildrun/obstacle"
	"github.com/lixenwraith/buildrun/physics"
)

// Stats are cumulative counters for diagnostics
type Stats struct {
	Steps         uint64
	Received      uint64
	Created       uint64 // shared by this peer
	Remote        uint64 // built from peers' create messages
	Removed       uint64
	Duplicates    uint64
	Unknown       uint64
	Malformed     uint64
	Unauthorized  uint64
	SendErrors    uint64
	GridConflicts uint64
	ConfigErrors  uint64
}

// ProcessMessageEvent applies a game-fact signal
func (c *Controller) ProcessMessageEvent(sender string, m message.Signal) error {
	return c.applyFact(sender, m)
}

// ProcessColorEvent records a player's color
func (c *Controller) ProcessColorEvent(sender string, m message.ColorAssign) error {
	return c.applyFact(sender, m)
}

// ProcessTreasureEvent mirrors an authoritative treasure respawn
func (c *Controller) ProcessTreasureEvent(sender string, m message.TreasureSpawn) error {
	return c.applyFact(sender, m)
}

func (c *Controller) applyFact(sender string, msg message.Message) error {
	if err := c.mutable(); err != nil {
		return err
	}
	// resolve the taker before facts change; the color map is read as of arrival
	var taker *obstacle.Obstacle
	if s, ok := msg.(message.Signal); ok && s.Kind == message.TagTreasureTaken {
		taker = c.playerByColor(c.machine.Facts().ColorOf(sender))
	}

	effects, err := c.machine.Apply(sender, msg)
	if err != nil {
		if isUnauthorized(err) {
			c.stats.Unauthorized++
		}
		return err
	}

	if taker != nil {
		c.carrier = taker
		c.swapVisual(c.treasure, "treasure.taken")
	}
	for _, e := range effects {
		c.applyEffect(e)
	}
	if c.observer != nil {
		c.observer.Observe(sender, msg)
	}
	return nil
}

func (c *Controller) applyEffect(e facts.Effect) {
	switch e.Kind {
	case facts.EffectClearPossession:
		c.carrier = nil
		c.swapVisual(c.treasure, "treasure")
	case facts.EffectMoveTreasure:
		if c.treasure != nil {
			c.treasure.Body.Teleport(e.Pos.X, e.Pos.Y)
		}
	case facts.EffectBroadcastSpawn:
		if err := c.net.PushOutEvent(message.TreasureSpawn{X: e.Pos.X, Y: e.Pos.Y}); err != nil {
			c.stats.SendErrors++
			c.logger.Warn("spawn broadcast failed", zap.Error(err))
		}
	case facts.EffectResetLevel:
		c.resetLevel()
	}
}

// resetLevel removes every non-avatar obstacle
func (c *Controller) resetLevel() {
	var doomed []*obstacle.Obstacle
	for _, o := range c.objects {
		if o.Kind != obstacle.KindPlayer {
			doomed = append(doomed, o)
		}
	}
	doomed = append(doomed, c.pending...)
	for _, o := range doomed {
		c.forget(o)
	}
	c.carrier = nil
	c.machine.ClearLevelReset()
	c.logger.Info("level reset", zap.Int("removed", len(doomed)))
}

// Signal shares a game-fact signal and applies it locally
func (c *Controller) Signal(tag message.Tag) error {
	if err := c.mutable(); err != nil {
		return err
	}
	if !tag.IsSignal() {
		return fmt.Errorf("%w: %s", ErrNotSignal, tag)
	}
	msg := message.NewSignal(tag)
	if err := c.net.PushOutEvent(msg); err != nil {
		c.stats.SendErrors++
		c.logger.Warn("signal broadcast failed", zap.Stringer("tag", tag), zap.Error(err))
	}
	return c.applyFact(c.net.LocalID(), msg)
}

// AssignColor shares a player's color and applies it locally
func (c *Controller) AssignColor(playerID string, color message.Color) error {
	if err := c.mutable(); err != nil {
		return err
	}
	msg := message.ColorAssign{PlayerID: playerID, Color: color}
	if err := c.net.PushOutEvent(msg); err != nil {
		c.stats.SendErrors++
		c.logger.Warn("color broadcast failed", zap.Error(err))
	}
	return c.applyFact(c.net.LocalID(), msg)
}

// BuildReady shares staged placements then announces readiness
func (c *Controller) BuildReady() error {
	if _, err := c.CommitPlacements(); err != nil {
		return err
	}
	return c.Signal(message.TagBuildReady)
}

// TrySetFilters stops player avatars colliding with each other once every expected player is present
// Returns true once filters are set; later calls are no-ops
func (c *Controller) TrySetFilters() bool {
	if c.filtersSet {
		return true
	}
	if c.net.PlayerCount() < c.cfg.ExpectedPlayers {
		return false
	}
	var players []*obstacle.Obstacle
	for _, o := range c.objects {
		if o.Kind == obstacle.KindPlayer {
			players = append(players, o)
		}
	}
	if len(players) < c.cfg.ExpectedPlayers {
		return false
	}
	for _, p := range players {
		p.Body.Mask = physics.MaskAll &^ physics.CategoryPlayer
	}
	c.filtersSet = true
	c.logger.Info("player collision filters set", zap.Int("players", len(players)))
	return true
}

// playerByColor finds the first avatar with color, nil for ColorNone or no match
func (c *Controller) playerByColor(color message.Color) *obstacle.Obstacle {
	if color == message.ColorNone {
		return nil
	}
	for _, o := range c.objects {
		if p, ok := o.Player(); ok && p.Color == color {
			return o
		}
	}
	return nil
}

// carryTreasure keeps a held treasure on top of its carrier
func (c *Controller) carryTreasure() {
	if c.carrier == nil || c.treasure == nil {
		return
	}
	cb, tb := c.carrier.Body, c.treasure.Body
	tb.X = cb.X
	tb.Y = cb.Y + cb.HalfH + tb.HalfH
}

func isUnauthorized(err error) bool { return errors.Is(err, facts.ErrUnauthorized) }
