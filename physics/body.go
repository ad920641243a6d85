// Package physics is a deterministic fixed-point body store
//
// Collision resolution is out of scope: the world integrates kinematic paths and velocities,
// answers overlap queries with collision filters, and produces a digest for desync checks
package physics

import "math/bits"

// Mode selects how a body is advanced by Step
type Mode uint8

const (
	ModeStatic    Mode = iota // Never moves
	ModeKinematic             // Follows a Path
	ModeDynamic               // Integrates velocity
	ModeSensor                // Static, overlap-only
)

// Collision categories
const (
	CategoryLevel  uint16 = 1 << 0
	CategoryPlayer uint16 = 1 << 1
	CategoryPickup uint16 = 1 << 2
	CategoryHazard uint16 = 1 << 3
	MaskAll        uint16 = 0xFFFF
)

// Path is a back-and-forth route between Start and End at Speed units per second
type Path struct {
	StartX, StartY int64
	EndX, EndY     int64
	Speed          int64
	toEnd          bool
}

// Body is an axis-aligned box; X, Y is the center, all fields Q32.32
type Body struct {
	id    uint32
	Mode  Mode
	X, Y  int64
	HalfW int64
	HalfH int64
	VX    int64
	VY    int64

	Category uint16
	Mask     uint16

	Path *Path

	// Position before the last Step, for render interpolation
	PrevX, PrevY int64
}

// NewBody creates a body from wire-precision values
func NewBody(mode Mode, x, y, w, h float32) *Body {
	return &Body{
		Mode:     mode,
		X:        FromFloat32(x),
		Y:        FromFloat32(y),
		HalfW:    FromFloat32(w) / 2,
		HalfH:    FromFloat32(h) / 2,
		Category: CategoryLevel,
		Mask:     MaskAll,
	}
}

// ID returns the world-assigned id, zero while detached
func (b *Body) ID() uint32 { return b.id }

// SetPath turns the body into a kinematic mover starting at its current position
func (b *Body) SetPath(endX, endY, speed float32) {
	b.Mode = ModeKinematic
	b.Path = &Path{
		StartX: b.X,
		StartY: b.Y,
		EndX:   FromFloat32(endX),
		EndY:   FromFloat32(endY),
		Speed:  FromFloat32(speed),
		toEnd:  true,
	}
}

// Teleport moves the body without interpolation
func (b *Body) Teleport(x, y float32) {
	b.X, b.Y = FromFloat32(x), FromFloat32(y)
	b.PrevX, b.PrevY = b.X, b.Y
}

// Filters reports whether a and b may interact under their category masks
func Filters(a, b *Body) bool {
	return a.Category&b.Mask != 0 && b.Category&a.Mask != 0
}

// Overlaps reports strict box intersection, touching edges do not overlap
func Overlaps(a, b *Body) bool {
	return Abs(a.X-b.X) < a.HalfW+b.HalfW && Abs(a.Y-b.Y) < a.HalfH+b.HalfH
}

// advance moves a kinematic body along its path by dist
func (p *Path) advance(b *Body, dist int64) {
	tx, ty := p.EndX, p.EndY
	if !p.toEnd {
		tx, ty = p.StartX, p.StartY
	}
	dx, dy := tx-b.X, ty-b.Y

	// Chebyshev-limited step keeps the integer path exact on both axes
	remaining := max(Abs(dx), Abs(dy))
	if remaining <= dist {
		b.X, b.Y = tx, ty
		p.toEnd = !p.toEnd
		return
	}
	ratio := divQ(dist, remaining)
	b.X += Mul(dx, ratio)
	b.Y += Mul(dy, ratio)
}

// divQ divides two positive Q32.32 values, a < b, result in [0, Scale)
func divQ(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	q, _ := bits.Div64(uint64(a)>>32, uint64(a)<<32, uint64(b))
	return int64(q)
}
