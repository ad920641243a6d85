package visual

import (
	"math"

	"github.com/gdamore/tcell/v2"
)

// Item is one drawable: a placeholder and the half extents of its body in world units
type Item struct {
	P            *Placeholder
	HalfW, HalfH float64
}

// Renderer maps world units onto terminal cells
// World Y grows upward, terminal rows grow downward
type Renderer struct {
	screen       tcell.Screen
	cellsPerUnit float64
	originX      float64
	originY      float64
	status       string
	statusStyle  tcell.Style
}

// NewRenderer binds a renderer to an initialized screen
func NewRenderer(screen tcell.Screen, cellsPerUnit float64) *Renderer {
	if cellsPerUnit <= 0 {
		cellsPerUnit = 1
	}
	return &Renderer{
		screen:       screen,
		cellsPerUnit: cellsPerUnit,
		statusStyle:  tcell.StyleDefault.Reverse(true),
	}
}

// SetOrigin sets the world coordinate shown at the bottom-left cell
func (r *Renderer) SetOrigin(x, y float64) {
	r.originX, r.originY = x, y
}

// SetStatus sets the text drawn on the top row
func (r *Renderer) SetStatus(s string) {
	r.status = s
}

// ToCell converts a world position to a terminal cell
func (r *Renderer) ToCell(x, y float64) (int, int) {
	_, h := r.screen.Size()
	col := int(math.Floor((x - r.originX) * r.cellsPerUnit))
	row := h - 1 - int(math.Floor((y-r.originY)*r.cellsPerUnit))
	return col, row
}

// Draw clears the screen, paints every visible item, then the status line
func (r *Renderer) Draw(items []Item) {
	r.screen.Clear()
	w, h := r.screen.Size()

	for _, it := range items {
		if it.P == nil || it.P.Hidden {
			continue
		}
		x0, y1 := r.ToCell(it.P.RenderX-it.HalfW, it.P.RenderY-it.HalfH)
		x1, y0 := r.ToCell(it.P.RenderX+it.HalfW, it.P.RenderY+it.HalfH)
		// Boxes thinner than a cell still paint one cell
		if x1 <= x0 {
			x1 = x0 + 1
		}
		if y1 <= y0 {
			y0 = y1 - 1
		}
		for row := y0 + 1; row <= y1; row++ {
			if row < 1 || row >= h {
				continue
			}
			for col := x0; col < x1; col++ {
				if col < 0 || col >= w {
					continue
				}
				r.screen.SetContent(col, row, it.P.Sprite.Glyph, nil, it.P.Sprite.Style)
			}
		}
	}

	for i, ch := range []rune(r.status) {
		if i >= w {
			break
		}
		r.screen.SetContent(i, 0, ch, nil, r.statusStyle)
	}
	r.screen.Show()
}
