package controller

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lixenwraith/buildrun/codec"
	"github.com/lixenwraith/buildrun/grid"
	"github.com/lixenwraith/buildrun/message"
	"github.com/lixenwraith/buildrun/obstacle"
	"github.com/lixenwraith/buildrun/physics"
)

func (c *Controller) CreatePlatformNetworked(p obstacle.PlatformParams) (*obstacle.Obstacle, error) {
	return c.createNetworked(obstacle.TypePlatform, p)
}

func (c *Controller) CreateMovingPlatformNetworked(p obstacle.MovingPlatformParams) (*obstacle.Obstacle, error) {
	return c.createNetworked(obstacle.TypeMovingPlatform, p)
}

func (c *Controller) CreateTreasureNetworked(p obstacle.TreasureParams) (*obstacle.Obstacle, error) {
	return c.createNetworked(obstacle.TypeTreasure, p)
}

func (c *Controller) CreateHazardNetworked(p obstacle.HazardParams) (*obstacle.Obstacle, error) {
	return c.createNetworked(obstacle.TypeHazard, p)
}

func (c *Controller) CreateBoostNetworked(p obstacle.BoostParams) (*obstacle.Obstacle, error) {
	return c.createNetworked(obstacle.TypeBoost, p)
}

func (c *Controller) CreatePlayerNetworked(p obstacle.PlayerParams) (*obstacle.Obstacle, error) {
	return c.createNetworked(obstacle.TypePlayer, p)
}

// createNetworked builds locally, then broadcasts the same params
func (c *Controller) createNetworked(id obstacle.TypeID, p obstacle.Params) (*obstacle.Obstacle, error) {
	if err := c.mutable(); err != nil {
		return nil, err
	}
	o, err := c.registry.Create(id, p)
	if err != nil {
		c.configError("local create failed", err, zap.Uint8("type", uint8(id)))
		return nil, err
	}
	c.track(o, false)
	c.stats.Created++
	c.broadcastCreate(o)
	return o, nil
}

func (c *Controller) broadcastCreate(o *obstacle.Obstacle) {
	payload, err := obstacle.EncodeParams(o.Params)
	if err == nil {
		err = c.net.PushOutEvent(message.Create{Type: uint8(o.Type), Params: payload})
	}
	if err != nil {
		c.stats.SendErrors++
		c.logger.Warn("create broadcast failed", zap.Stringer("kind", o.Kind), zap.Error(err))
	}
}

// ProcessCreateEvent builds a peer's obstacle from its wire params
// Malformed params drop the message; an unknown type id is a configuration error
func (c *Controller) ProcessCreateEvent(sender string, m message.Create) (*obstacle.Obstacle, error) {
	if err := c.mutable(); err != nil {
		return nil, err
	}
	o, err := c.registry.CreateFromBytes(obstacle.TypeID(m.Type), m.Params)
	switch {
	case err == nil:
	case errors.Is(err, codec.ErrMalformed):
		c.stats.Malformed++
		return nil, err
	default:
		c.configError("remote create failed", err, zap.String("sender", sender), zap.Uint8("type", m.Type))
		return nil, err
	}
	c.track(o, false)
	c.stats.Remote++
	return o, nil
}

// configError reports wiring mistakes; zap's DPanic crashes development builds only
func (c *Controller) configError(msg string, err error, fields ...zap.Field) {
	c.stats.ConfigErrors++
	c.logger.DPanic(msg, append(fields, zap.Error(err))...)
}

// track adds a new obstacle to the object list and grid
func (c *Controller) track(o *obstacle.Obstacle, movable bool) {
	switch o.Kind {
	case obstacle.KindTreasure:
		if c.treasure != nil {
			c.logger.Warn("replacing existing treasure")
		}
		c.treasure = o
	case obstacle.KindPlayer:
		if c.filtersSet {
			o.Body.Mask = physics.MaskAll &^ physics.CategoryPlayer
		}
	}
	if movable {
		c.pending = append(c.pending, o)
	} else {
		c.objects = append(c.objects, o)
	}
	if o.Kind == obstacle.KindPlayer || o.Kind == obstacle.KindTreasure {
		return
	}

	x, y, w, h := o.Footprint(c.cfg.CellSize)
	anchor := grid.Cell{X: x, Y: y}
	if o.IsArt() {
		c.grid.AddArt(o, anchor, w, h)
		return
	}
	var err error
	if movable {
		err = c.grid.AddMoveableObject(o, anchor, w, h)
	} else {
		err = c.grid.AddObject(o, anchor, w, h)
	}
	if err != nil {
		// shared objects exist regardless; the grid only guards local placement
		c.stats.GridConflicts++
		c.logger.Debug("grid conflict", zap.Stringer("kind", o.Kind), zap.Stringer("anchor", anchor), zap.Error(err))
	}
}

// forget removes an obstacle from world, grid and lists
func (c *Controller) forget(o *obstacle.Obstacle) {
	c.registry.Remove(o)
	c.grid.Remove(o)
	c.objects = removeObstacle(c.objects, o)
	c.pending = removeObstacle(c.pending, o)
	if c.treasure == o {
		c.treasure = nil
	}
	if c.carrier == o {
		c.carrier = nil
	}
	c.stats.Removed++
}

func removeObstacle(list []*obstacle.Obstacle, o *obstacle.Obstacle) []*obstacle.Obstacle {
	for i, other := range list {
		if other == o {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// CanPlace reports whether a w×h footprint at cell is free
func (c *Controller) CanPlace(cell grid.Cell, w, h int) bool {
	return c.grid.CanPlace(cell, w, h)
}

// CanPlaceParams checks the footprint params would claim
func (c *Controller) CanPlaceParams(p obstacle.Params) bool {
	if pp, ok := p.(obstacle.PlatformParams); ok && pp.Tag == obstacle.PlatformArt {
		return true
	}
	x, y, w, h := obstacle.FootprintOf(p, c.cfg.CellSize)
	return c.grid.CanPlace(grid.Cell{X: x, Y: y}, w, h)
}

// PlaceObject stages a build-phase placement; it stays local and movable until CommitPlacements
func (c *Controller) PlaceObject(p obstacle.Params) (*obstacle.Obstacle, error) {
	if err := c.mutable(); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: nil params", obstacle.ErrKindMismatch)
	}
	id, ok := c.registry.TypeOf(p.Kind())
	if !ok {
		return nil, fmt.Errorf("%w: kind %s", obstacle.ErrUnregistered, p.Kind())
	}
	if !c.CanPlaceParams(p) {
		x, y, _, _ := obstacle.FootprintOf(p, c.cfg.CellSize)
		return nil, fmt.Errorf("%w: %s at %s", grid.ErrOccupied, p.Kind(), grid.Cell{X: x, Y: y})
	}
	o, err := c.registry.Create(id, p)
	if err != nil {
		c.configError("placement failed", err, zap.Stringer("kind", p.Kind()))
		return nil, err
	}
	c.track(o, true)
	return o, nil
}

// MoveObject lifts a staged placement covering cell so it can be placed again
func (c *Controller) MoveObject(cell grid.Cell) (*obstacle.Obstacle, error) {
	if err := c.mutable(); err != nil {
		return nil, err
	}
	o, ok := c.grid.MoveObject(cell)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotMovable, cell)
	}
	c.registry.Remove(o)
	c.pending = removeObstacle(c.pending, o)
	return o, nil
}

// RemoveWorldObject deletes the solid object covering cell from this peer
// Shared objects are removed on every peer only through a level reset
func (c *Controller) RemoveWorldObject(cell grid.Cell) (*obstacle.Obstacle, bool) {
	if c.mutable() != nil {
		return nil, false
	}
	o, ok := c.grid.OccupantAt(cell)
	if !ok {
		return nil, false
	}
	c.forget(o)
	return o, true
}

// CommitPlacements shares every staged placement and fixes it in the grid
func (c *Controller) CommitPlacements() (int, error) {
	if err := c.mutable(); err != nil {
		return 0, err
	}
	staged := c.pending
	c.pending = nil
	for _, o := range staged {
		if !o.IsArt() {
			if anchor, w, h, ok := c.grid.Anchor(o); ok {
				c.grid.Remove(o)
				_ = c.grid.AddObject(o, anchor, w, h)
			}
		}
		c.objects = append(c.objects, o)
		c.stats.Created++
		c.broadcastCreate(o)
	}
	return len(staged), nil
}

// swapVisual replaces an obstacle's placeholder keeping its render position
func (c *Controller) swapVisual(o *obstacle.Obstacle, asset string) {
	if o == nil || o.Visual == nil || o.Visual.Asset == asset {
		return
	}
	ph, err := c.assets.New(asset)
	if err != nil {
		c.configError("visual swap failed", err, zap.String("asset", asset))
		return
	}
	ph.RenderX, ph.RenderY = o.Visual.RenderX, o.Visual.RenderY
	o.Visual = ph
}
