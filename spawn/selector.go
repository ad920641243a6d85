// Package spawn rotates the treasure's respawn point through a fixed pool
package spawn

import (
	"errors"
	"fmt"
	"slices"
)

var ErrEmptyPool = errors.New("spawn pool is empty")

// Position is a world-space spawn point
type Position struct {
	X, Y float32
}

func (p Position) String() string { return fmt.Sprintf("(%.2f,%.2f)", p.X, p.Y) }

// Intn is the draw source; *Rand satisfies it
type Intn interface {
	Intn(n int) int
}

// Selector picks from candidates never repeating a position until the pool has cycled
// Only the authoritative peer calls PickNext; others mirror its result
type Selector struct {
	pool  []Position
	used  []bool
	nUsed int
	last  int
	rng   Intn
	free  []int
}

// NewSelector copies pool; order is significant since draws index into it
func NewSelector(pool []Position, rng Intn) (*Selector, error) {
	if len(pool) == 0 {
		return nil, ErrEmptyPool
	}
	if rng == nil {
		rng = NewRand(1)
	}
	return &Selector{
		pool: append([]Position(nil), pool...),
		used: make([]bool, len(pool)),
		last: -1,
		rng:  rng,
		free: make([]int, 0, len(pool)),
	}, nil
}

// PickNext draws once from the unused candidates
// The previous pick or mark is always in the used set, so a pool of two or more never repeats it
func (s *Selector) PickNext() Position {
	if len(s.pool) == 1 {
		s.last = 0
		return s.pool[0]
	}

	s.free = s.free[:0]
	for i, u := range s.used {
		if !u {
			s.free = append(s.free, i)
		}
	}
	// used is always a strict subset here, free is never empty
	idx := s.free[s.rng.Intn(len(s.free))]

	s.use(idx)
	return s.pool[idx]
}

// Mark records pos as the current spawn without drawing
// Peers mirroring the authority mark each spawn they apply, so a peer that inherits authority
// continues the same rotation. Reports false when pos is not in the pool
func (s *Selector) Mark(pos Position) bool {
	idx := slices.Index(s.pool, pos)
	if idx < 0 {
		return false
	}
	if s.used[idx] {
		// out of step with the rotation; restart around the live spawn
		clear(s.used)
		s.nUsed = 0
	}
	s.use(idx)
	return true
}

// use marks idx as picked; a pick that would exhaust the pool restarts the used set holding only idx
func (s *Selector) use(idx int) {
	s.used[idx] = true
	s.nUsed++
	if s.nUsed == len(s.pool) {
		clear(s.used)
		s.used[idx] = true
		s.nUsed = 1
	}
	s.last = idx
}

// Last returns the previous pick
func (s *Selector) Last() (Position, bool) {
	if s.last < 0 {
		return Position{}, false
	}
	return s.pool[s.last], true
}

// First returns the pool head, used as the initial treasure placement
func (s *Selector) First() Position { return s.pool[0] }

func (s *Selector) Len() int { return len(s.pool) }

// Reset forgets rotation history
func (s *Selector) Reset() {
	clear(s.used)
	s.nUsed = 0
	s.last = -1
}
