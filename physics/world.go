package physics

import (
	"bytes"
	"encoding/binary"
	"slices"
	"time"

	"lukechampine.com/blake3"
)

// World owns every simulated body of one peer
// Iteration order is insertion order
type World struct {
	bodies []*Body
	nextID uint32
	steps  uint64
}

// NewWorld creates an empty world
func NewWorld() *World {
	return &World{}
}

// AddObstacle attaches a body and assigns its id
// Adding an attached body is a no-op
func (w *World) AddObstacle(b *Body) {
	if b.id != 0 {
		return
	}
	w.nextID++
	b.id = w.nextID
	b.PrevX, b.PrevY = b.X, b.Y
	w.bodies = append(w.bodies, b)
}

// RemoveObstacle detaches a body, reporting whether it was attached
func (w *World) RemoveObstacle(b *Body) bool {
	if b == nil || b.id == 0 {
		return false
	}
	for i, other := range w.bodies {
		if other == b {
			w.bodies = append(w.bodies[:i], w.bodies[i+1:]...)
			b.id = 0
			return true
		}
	}
	return false
}

// Each visits bodies in insertion order until fn returns false
func (w *World) Each(fn func(*Body) bool) {
	for _, b := range w.bodies {
		if !fn(b) {
			return
		}
	}
}

// Len returns the attached body count
func (w *World) Len() int { return len(w.bodies) }

// Steps returns how many times Step has run
func (w *World) Steps() uint64 { return w.steps }

// Step advances kinematic and dynamic bodies by one fixed step
func (w *World) Step(step time.Duration) {
	dt := StepSeconds(step)
	for _, b := range w.bodies {
		b.PrevX, b.PrevY = b.X, b.Y
		switch b.Mode {
		case ModeKinematic:
			if b.Path != nil && b.Path.Speed > 0 {
				b.Path.advance(b, Mul(b.Path.Speed, dt))
			}
		case ModeDynamic:
			b.X += Mul(b.VX, dt)
			b.Y += Mul(b.VY, dt)
		}
	}
	w.steps++
}

// Query returns bodies overlapping probe that pass its collision filter, in insertion order
func (w *World) Query(probe *Body) []*Body {
	var hits []*Body
	for _, b := range w.bodies {
		if b == probe {
			continue
		}
		if Filters(probe, b) && Overlaps(probe, b) {
			hits = append(hits, b)
		}
	}
	return hits
}

// Digest hashes positions and filters of every body
// Records are hashed in sorted order, so peers that attached the same bodies in a different order still agree
func (w *World) Digest() [32]byte {
	const recordSize = 1 + 4*8 + 2*2
	records := make([][]byte, 0, len(w.bodies))
	for _, b := range w.bodies {
		rec := make([]byte, 0, recordSize)
		rec = append(rec, byte(b.Mode))
		rec = binary.BigEndian.AppendUint64(rec, uint64(b.X))
		rec = binary.BigEndian.AppendUint64(rec, uint64(b.Y))
		rec = binary.BigEndian.AppendUint64(rec, uint64(b.HalfW))
		rec = binary.BigEndian.AppendUint64(rec, uint64(b.HalfH))
		rec = binary.BigEndian.AppendUint16(rec, b.Category)
		rec = binary.BigEndian.AppendUint16(rec, b.Mask)
		records = append(records, rec)
	}
	slices.SortFunc(records, bytes.Compare)

	h := blake3.New(32, nil)
	var count [8]byte
	binary.BigEndian.PutUint64(count[:], uint64(len(records)))
	h.Write(count[:])
	for _, rec := range records {
		h.Write(rec)
	}
	var sum [32]byte
	h.Sum(sum[:0])
	return sum
}
