// Package grid tracks which build-phase cells are claimed by placed objects
package grid

import (
	"errors"
	"fmt"
)

// ErrOccupied reports a placement over a cell already claimed by a solid object
var ErrOccupied = errors.New("cell occupied")

// Cell is an integer grid coordinate
type Cell struct {
	X, Y int
}

func (c Cell) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

// claim is one solid object's footprint
type claim[T comparable] struct {
	obj     T
	anchor  Cell
	w, h    int
	movable bool
}

// cells visits every footprint cell from the bottom-left anchor
func (c *claim[T]) cells(fn func(Cell)) {
	for dy := 0; dy < c.h; dy++ {
		for dx := 0; dx < c.w; dx++ {
			fn(Cell{X: c.anchor.X + dx, Y: c.anchor.Y + dy})
		}
	}
}

// Index maps cells to at most one solid occupant and any number of art overlays
// Not safe for concurrent use; owned by the build-phase input path
type Index[T comparable] struct {
	solid   map[Cell]*claim[T]
	byObj   map[T]*claim[T]
	art     map[Cell][]T
	artObjs map[T]*claim[T]
}

// New creates an empty index
func New[T comparable]() *Index[T] {
	return &Index[T]{
		solid:   make(map[Cell]*claim[T]),
		byObj:   make(map[T]*claim[T]),
		art:     make(map[Cell][]T),
		artObjs: make(map[T]*claim[T]),
	}
}

func clampSize(w, h int) (int, int) {
	return max(1, w), max(1, h)
}

// CanPlace reports whether every cell of a w×h footprint at anchor is free of solid occupants
func (g *Index[T]) CanPlace(anchor Cell, w, h int) bool {
	w, h = clampSize(w, h)
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			if _, taken := g.solid[Cell{X: anchor.X + dx, Y: anchor.Y + dy}]; taken {
				return false
			}
		}
	}
	return true
}

// AddObject claims a footprint for a fixed level object
func (g *Index[T]) AddObject(obj T, anchor Cell, w, h int) error {
	return g.add(obj, anchor, w, h, false)
}

// AddMoveableObject claims a footprint for an object that may be lifted again with MoveObject
func (g *Index[T]) AddMoveableObject(obj T, anchor Cell, w, h int) error {
	return g.add(obj, anchor, w, h, true)
}

func (g *Index[T]) add(obj T, anchor Cell, w, h int, movable bool) error {
	w, h = clampSize(w, h)
	if _, exists := g.byObj[obj]; exists {
		return fmt.Errorf("%w: object already placed", ErrOccupied)
	}
	if !g.CanPlace(anchor, w, h) {
		return fmt.Errorf("%w: %dx%d at %s", ErrOccupied, w, h, anchor)
	}
	c := &claim[T]{obj: obj, anchor: anchor, w: w, h: h, movable: movable}
	c.cells(func(cell Cell) { g.solid[cell] = c })
	g.byObj[obj] = c
	return nil
}

// AddArt registers a visual overlay on every footprint cell; overlays never conflict
func (g *Index[T]) AddArt(obj T, anchor Cell, w, h int) {
	if _, exists := g.artObjs[obj]; exists {
		return
	}
	w, h = clampSize(w, h)
	c := &claim[T]{obj: obj, anchor: anchor, w: w, h: h}
	c.cells(func(cell Cell) { g.art[cell] = append(g.art[cell], obj) })
	g.artObjs[obj] = c
}

// MoveObject lifts the movable object covering cell, clearing its whole footprint
func (g *Index[T]) MoveObject(cell Cell) (T, bool) {
	c, ok := g.solid[cell]
	if !ok || !c.movable {
		var zero T
		return zero, false
	}
	g.release(c)
	return c.obj, true
}

// RemoveWorldObject removes the solid object covering cell, clearing its whole footprint
func (g *Index[T]) RemoveWorldObject(cell Cell) (T, bool) {
	c, ok := g.solid[cell]
	if !ok {
		var zero T
		return zero, false
	}
	g.release(c)
	return c.obj, true
}

// Remove drops an object by identity, solid or art
func (g *Index[T]) Remove(obj T) bool {
	if c, ok := g.byObj[obj]; ok {
		g.release(c)
		return true
	}
	if c, ok := g.artObjs[obj]; ok {
		c.cells(func(cell Cell) {
			list := g.art[cell]
			for i, o := range list {
				if o == obj {
					list = append(list[:i], list[i+1:]...)
					break
				}
			}
			if len(list) == 0 {
				delete(g.art, cell)
			} else {
				g.art[cell] = list
			}
		})
		delete(g.artObjs, obj)
		return true
	}
	return false
}

func (g *Index[T]) release(c *claim[T]) {
	c.cells(func(cell Cell) {
		if g.solid[cell] == c {
			delete(g.solid, cell)
		}
	})
	delete(g.byObj, c.obj)
}

// OccupantAt returns the solid object covering cell
func (g *Index[T]) OccupantAt(cell Cell) (T, bool) {
	c, ok := g.solid[cell]
	if !ok {
		var zero T
		return zero, false
	}
	return c.obj, true
}

// Anchor returns the bottom-left cell and size recorded for a solid object
func (g *Index[T]) Anchor(obj T) (Cell, int, int, bool) {
	c, ok := g.byObj[obj]
	if !ok {
		return Cell{}, 0, 0, false
	}
	return c.anchor, c.w, c.h, true
}

// ArtAt returns the overlays on cell in insertion order
func (g *Index[T]) ArtAt(cell Cell) []T {
	return append([]T(nil), g.art[cell]...)
}

// Len returns the number of solid objects
func (g *Index[T]) Len() int { return len(g.byObj) }

// Clear removes everything
func (g *Index[T]) Clear() {
	clear(g.solid)
	clear(g.byObj)
	clear(g.art)
	clear(g.artObjs)
}
