// Package controller keeps one peer's shared obstacles and game facts in step with every other peer
//
// All mutation happens on the update loop goroutine: local actions are submitted and run at the start
// of the next fixed step, inbound messages are drained right after them
package controller

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lixenwraith/buildrun/event"
	"github.com/lixenwraith/buildrun/facts"
	"github.com/lixenwraith/buildrun/grid"
	"github.com/lixenwraith/buildrun/message"
	"github.com/lixenwraith/buildrun/network"
	"github.com/lixenwraith/buildrun/obstacle"
	"github.com/lixenwraith/buildrun/physics"
	"github.com/lixenwraith/buildrun/spawn"
	"github.com/lixenwraith/buildrun/visual"
)

var (
	// ErrWrongPhase reports a mutation attempted during pre or post update
	ErrWrongPhase = errors.New("mutation outside idle or fixed phase")
	ErrNotSignal  = errors.New("tag is not a signal")
	ErrNotMovable = errors.New("no movable object at cell")
)

// Phase is the scheduler phase the controller is currently executing
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhasePre
	PhaseFixed
	PhasePost
)

var phaseNames = [...]string{"idle", "pre", "fixed", "post"}

func (p Phase) String() string { return phaseNames[p] }

// Network is the event channel plus session identity
type Network interface {
	network.Channel
	network.Session
}

// Observer is told about every fact message after it has been applied
type Observer interface {
	Observe(sender string, msg message.Message)
}

// Config holds per-session controller settings
type Config struct {
	// ExpectedPlayers gates TrySetFilters
	ExpectedPlayers int
	// CellSize is the build grid cell edge in world units
	CellSize float64
	// CommandQueue bounds local actions buffered between fixed steps, power of two
	CommandQueue int
}

func DefaultConfig() Config {
	return Config{ExpectedPlayers: 2, CellSize: 1, CommandQueue: 256}
}

// Controller owns the physics world, obstacle list, grid and facts of one peer
type Controller struct {
	cfg    Config
	logger *zap.Logger
	net    Network
	assets visual.Factory

	world    *physics.World
	registry *obstacle.Registry
	grid     *grid.Index[*obstacle.Obstacle]
	machine  *facts.Machine

	objects  []*obstacle.Obstacle
	pending  []*obstacle.Obstacle
	treasure *obstacle.Obstacle
	carrier  *obstacle.Obstacle

	commands *event.Queue[func(*Controller)]
	lastSeen map[string]uint32
	observer Observer

	phase      Phase
	filtersSet bool
	stats      Stats
}

// New wires a controller to a session; the selector is only drawn from on the authoritative peer
func New(cfg Config, net Network, selector *spawn.Selector, assets visual.Factory, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CellSize <= 0 {
		cfg.CellSize = 1
	}
	if cfg.CommandQueue <= 0 {
		cfg.CommandQueue = 256
	}
	logger = logger.With(zap.String("component", "controller"), zap.String("peer", net.LocalID()))

	world := physics.NewWorld()
	registry := obstacle.NewRegistry(world, assets)
	obstacle.RegisterDefaults(registry)

	return &Controller{
		cfg:      cfg,
		logger:   logger,
		net:      net,
		assets:   assets,
		world:    world,
		registry: registry,
		grid:     grid.New[*obstacle.Obstacle](),
		machine:  facts.NewMachine(net, selector, logger),
		commands: event.NewQueue[func(*Controller)](cfg.CommandQueue),
		lastSeen: make(map[string]uint32),
	}
}

func (c *Controller) SetObserver(o Observer) { c.observer = o }

// Submit buffers a local action for the next fixed step; safe from any goroutine
func (c *Controller) Submit(fn func(*Controller)) bool {
	return c.commands.Push(fn)
}

func (c *Controller) mutable() error {
	if c.phase != PhaseIdle && c.phase != PhaseFixed {
		return fmt.Errorf("%w: %s", ErrWrongPhase, c.phase)
	}
	return nil
}

// PreUpdate handles non-simulation bookkeeping
func (c *Controller) PreUpdate(time.Duration) {
	c.phase = PhasePre
	defer func() { c.phase = PhaseIdle }()
	c.TrySetFilters()
}

// FixedUpdate runs local actions, drains the inbox in arrival order, then advances physics
func (c *Controller) FixedUpdate(step time.Duration) {
	c.phase = PhaseFixed
	defer func() { c.phase = PhaseIdle }()

	for {
		fn, ok := c.commands.Pop()
		if !ok {
			break
		}
		fn(c)
	}

	for c.net.IsInAvailable() {
		env, ok := c.net.PopInEvent()
		if !ok {
			break
		}
		c.dispatch(env)
	}

	c.world.Step(step)
	c.carryTreasure()
	c.stats.Steps++
}

// PostUpdate interpolates placeholders only
func (c *Controller) PostUpdate(alpha float64) {
	c.phase = PhasePost
	defer func() { c.phase = PhaseIdle }()
	for _, o := range c.objects {
		o.Interpolate(alpha)
	}
	for _, o := range c.pending {
		o.Interpolate(alpha)
	}
}

// dispatch suppresses redelivered envelopes and routes by message type
func (c *Controller) dispatch(env message.Envelope) {
	if last, seen := c.lastSeen[env.Sender]; seen && env.Seq <= last {
		c.stats.Duplicates++
		c.logger.Debug("duplicate envelope",
			zap.String("sender", env.Sender),
			zap.Uint32("seq", env.Seq),
		)
		return
	}
	c.lastSeen[env.Sender] = env.Seq
	c.stats.Received++

	var err error
	switch msg := env.Msg.(type) {
	case message.Signal:
		err = c.ProcessMessageEvent(env.Sender, msg)
	case message.ColorAssign:
		err = c.ProcessColorEvent(env.Sender, msg)
	case message.TreasureSpawn:
		err = c.ProcessTreasureEvent(env.Sender, msg)
	case message.Create:
		_, err = c.ProcessCreateEvent(env.Sender, msg)
	case message.Unknown:
		c.stats.Unknown++
		c.logger.Warn("ignoring unknown message",
			zap.String("sender", env.Sender),
			zap.Stringer("tag", msg.Tag()),
		)
	}
	if err != nil {
		c.logger.Warn("dropping message",
			zap.String("sender", env.Sender),
			zap.Stringer("tag", env.Msg.Tag()),
			zap.Error(err),
		)
	}
}

func (c *Controller) World() *physics.World { return c.world }

func (c *Controller) Facts() facts.Facts { return c.machine.Facts() }

func (c *Controller) Snapshot() []byte { return c.machine.Snapshot() }

func (c *Controller) Stats() Stats { return c.stats }

func (c *Controller) Phase() Phase { return c.phase }

// Objects returns shared obstacles in creation order
func (c *Controller) Objects() []*obstacle.Obstacle {
	return append([]*obstacle.Obstacle(nil), c.objects...)
}

// Pending returns local placements not yet shared
func (c *Controller) Pending() []*obstacle.Obstacle {
	return append([]*obstacle.Obstacle(nil), c.pending...)
}

func (c *Controller) Treasure() *obstacle.Obstacle { return c.treasure }

// Carrier returns the player holding the treasure, nil if nobody does
func (c *Controller) Carrier() *obstacle.Obstacle { return c.carrier }

// Items returns everything drawable
func (c *Controller) Items() []visual.Item {
	items := make([]visual.Item, 0, len(c.objects)+len(c.pending))
	for _, o := range c.objects {
		items = append(items, o.Item())
	}
	for _, o := range c.pending {
		items = append(items, o.Item())
	}
	return items
}

// ResetRound zeroes the ready and reset counters
func (c *Controller) ResetRound() error {
	if err := c.mutable(); err != nil {
		return err
	}
	c.machine.ResetRound()
	return nil
}
