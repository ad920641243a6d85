// Package obstacle builds shared physics bodies from construction parameters
//
// A factory is registered per type id; ids follow registration order and are never sent on the wire
// Every obstacle is attached to the world before a factory call returns
package obstacle

import (
	"math"

	"github.com/lixenwraith/buildrun/physics"
	"github.com/lixenwraith/buildrun/visual"
)

// TypeID is the session-local factory index, identical on peers that register in the same order
type TypeID uint8

// Kind is the variant tag carried by every obstacle; consumers switch on it instead of casting
type Kind uint8

const (
	KindPlatform Kind = iota
	KindMovingPlatform
	KindTreasure
	KindHazard
	KindBoost
	KindPlayer
)

func (k Kind) String() string {
	switch k {
	case KindPlatform:
		return "platform"
	case KindMovingPlatform:
		return "moving_platform"
	case KindTreasure:
		return "treasure"
	case KindHazard:
		return "hazard"
	case KindBoost:
		return "boost"
	case KindPlayer:
		return "player"
	default:
		return "unknown"
	}
}

// Type ids assigned by RegisterDefaults
const (
	TypePlatform TypeID = iota
	TypeMovingPlatform
	TypeTreasure
	TypeHazard
	TypeBoost
	TypePlayer
)

// Player body extents in world units
const (
	PlayerWidth  = 0.75
	PlayerHeight = 1.5
)

// World is the physics surface consumed by factories
type World interface {
	AddObstacle(b *physics.Body)
	RemoveObstacle(b *physics.Body) bool
	Each(fn func(*physics.Body) bool)
}

// Obstacle is a simulated body paired with its visual placeholder
type Obstacle struct {
	Type   TypeID
	Kind   Kind
	Body   *physics.Body
	Visual *visual.Placeholder
	Params Params
}

// IsArt reports a visual-only overlay that never claims grid occupancy
func (o *Obstacle) IsArt() bool {
	p, ok := o.Params.(PlatformParams)
	return ok && p.Tag == PlatformArt
}

// Platform returns the platform params when Kind is KindPlatform
func (o *Obstacle) Platform() (PlatformParams, bool) {
	p, ok := o.Params.(PlatformParams)
	return p, ok && o.Kind == KindPlatform
}

// Treasure returns the treasure params when Kind is KindTreasure
func (o *Obstacle) Treasure() (TreasureParams, bool) {
	p, ok := o.Params.(TreasureParams)
	return p, ok && o.Kind == KindTreasure
}

// Player returns the player params when Kind is KindPlayer
func (o *Obstacle) Player() (PlayerParams, bool) {
	p, ok := o.Params.(PlayerParams)
	return p, ok && o.Kind == KindPlayer
}

// Footprint returns the anchor cell (bottom-left) and size in cells for a grid of cellSize units
// Positions are body centers; every obstacle covers at least one cell
func (o *Obstacle) Footprint(cellSize float64) (x, y, w, h int) {
	b := o.Body
	return cellFootprint(physics.ToFloat(b.X), physics.ToFloat(b.Y),
		physics.ToFloat(b.HalfW), physics.ToFloat(b.HalfH), cellSize)
}

// FootprintOf is Footprint for params not yet built into a body
func FootprintOf(p Params, cellSize float64) (x, y, w, h int) {
	bx, by, bw, bh := Bounds(p)
	fx := func(v float32) float64 { return physics.ToFloat(physics.FromFloat32(v)) }
	halfW := physics.ToFloat(physics.FromFloat32(bw) / 2)
	halfH := physics.ToFloat(physics.FromFloat32(bh) / 2)
	return cellFootprint(fx(bx), fx(by), halfW, halfH, cellSize)
}

// Bounds returns the center and extents params describe
func Bounds(p Params) (x, y, w, h float32) {
	switch p := p.(type) {
	case PlatformParams:
		return p.X, p.Y, p.W, p.H
	case MovingPlatformParams:
		return p.X, p.Y, p.W, p.H
	case TreasureParams:
		return p.X, p.Y, p.W, p.H
	case HazardParams:
		return p.X, p.Y, p.W, p.H
	case BoostParams:
		return p.X, p.Y, p.W, p.H
	case PlayerParams:
		return p.X, p.Y, PlayerWidth, PlayerHeight
	}
	return 0, 0, 0, 0
}

func cellFootprint(cx, cy, halfW, halfH, cellSize float64) (x, y, w, h int) {
	if cellSize <= 0 {
		cellSize = 1
	}
	left := cx - halfW
	bottom := cy - halfH

	x = int(math.Floor(left/cellSize + 1e-9))
	y = int(math.Floor(bottom/cellSize + 1e-9))
	w = max(1, int(math.Ceil(2*halfW/cellSize-1e-9)))
	h = max(1, int(math.Ceil(2*halfH/cellSize-1e-9)))
	return x, y, w, h
}

// Interpolate moves the placeholder between the previous and current body positions
func (o *Obstacle) Interpolate(alpha float64) {
	if o.Visual == nil {
		return
	}
	b := o.Body
	o.Visual.RenderX = visual.Lerp(physics.ToFloat(b.PrevX), physics.ToFloat(b.X), alpha)
	o.Visual.RenderY = visual.Lerp(physics.ToFloat(b.PrevY), physics.ToFloat(b.Y), alpha)
}

// Item returns the drawable view of the obstacle
func (o *Obstacle) Item() visual.Item {
	return visual.Item{
		P:     o.Visual,
		HalfW: physics.ToFloat(o.Body.HalfW),
		HalfH: physics.ToFloat(o.Body.HalfH),
	}
}
