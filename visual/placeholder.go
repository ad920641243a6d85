// Package visual provides the stand-in visuals attached to shared obstacles
package visual

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gdamore/tcell/v2"
)

// ErrMissingAsset reports a lookup for an asset name the catalog does not hold
var ErrMissingAsset = errors.New("missing asset")

// Sprite is the terminal appearance of one asset
type Sprite struct {
	Glyph rune
	Style tcell.Style
}

// Placeholder is the visual half of a shared obstacle
// Render positions are written only by interpolation, never read by simulation
type Placeholder struct {
	Asset   string
	Sprite  Sprite
	RenderX float64
	RenderY float64
	Hidden  bool
}

// Factory builds placeholders by asset name
type Factory interface {
	New(asset string) (*Placeholder, error)
}

// Catalog is a fixed asset table, identical on every peer
type Catalog struct {
	sprites map[string]Sprite
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{sprites: make(map[string]Sprite)}
}

// Add registers or replaces an asset
func (c *Catalog) Add(asset string, s Sprite) {
	c.sprites[asset] = s
}

// New implements Factory
func (c *Catalog) New(asset string) (*Placeholder, error) {
	s, ok := c.sprites[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingAsset, asset)
	}
	return &Placeholder{Asset: asset, Sprite: s}, nil
}

// Assets returns asset names in sorted order
func (c *Catalog) Assets() []string {
	names := make([]string, 0, len(c.sprites))
	for name := range c.sprites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultCatalog holds the assets of every built-in obstacle kind
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	base := tcell.StyleDefault

	c.Add("platform", Sprite{Glyph: '█', Style: base.Foreground(tcell.ColorGray)})
	c.Add("platform.art", Sprite{Glyph: '░', Style: base.Foreground(tcell.ColorDarkGreen)})
	c.Add("platform.kinematic", Sprite{Glyph: '▓', Style: base.Foreground(tcell.ColorSilver)})
	c.Add("platform.moving", Sprite{Glyph: '═', Style: base.Foreground(tcell.ColorAqua)})
	c.Add("treasure", Sprite{Glyph: '$', Style: base.Foreground(tcell.ColorGold).Bold(true)})
	c.Add("treasure.taken", Sprite{Glyph: '$', Style: base.Foreground(tcell.ColorOlive)})
	c.Add("hazard", Sprite{Glyph: '^', Style: base.Foreground(tcell.ColorRed)})
	c.Add("boost", Sprite{Glyph: '+', Style: base.Foreground(tcell.ColorLime)})
	c.Add("player.none", Sprite{Glyph: '@', Style: base.Foreground(tcell.ColorWhite)})
	c.Add("player.red", Sprite{Glyph: '@', Style: base.Foreground(tcell.ColorRed).Bold(true)})
	c.Add("player.blue", Sprite{Glyph: '@', Style: base.Foreground(tcell.ColorBlue).Bold(true)})
	c.Add("player.green", Sprite{Glyph: '@', Style: base.Foreground(tcell.ColorGreen).Bold(true)})
	c.Add("player.yellow", Sprite{Glyph: '@', Style: base.Foreground(tcell.ColorYellow).Bold(true)})
	return c
}

// Lerp interpolates a render coordinate between the last two simulated positions
func Lerp(prev, cur, alpha float64) float64 {
	return prev + (cur-prev)*alpha
}
