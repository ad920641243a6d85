// Package facts holds the small set of game facts every peer mirrors
// and the state machine that mutates them from inbound messages
package facts

import (
	"maps"
	"slices"

	"github.com/lixenwraith/buildrun/codec"
	"github.com/lixenwraith/buildrun/message"
	"github.com/lixenwraith/buildrun/spawn"
)

// Facts is the shared game state; only Machine writes it
type Facts struct {
	ReadyCount int
	ResetCount int
	Colors     map[string]message.Color

	TreasureTaken     bool
	TreasureStealable bool
	TreasurePos       spawn.Position
	// LastSpawn is the most recent authoritative spawn, where a lost treasure returns
	LastSpawn spawn.Position

	LevelReset  bool
	HostStarted bool
}

// New returns facts for a fresh session with the treasure at its initial spawn
func New(initial spawn.Position) *Facts {
	return &Facts{
		Colors:            make(map[string]message.Color),
		TreasureStealable: true,
		TreasurePos:       initial,
		LastSpawn:         initial,
	}
}

// Clone returns a deep copy
func (f *Facts) Clone() Facts {
	c := *f
	c.Colors = maps.Clone(f.Colors)
	if c.Colors == nil {
		c.Colors = make(map[string]message.Color)
	}
	return c
}

// ColorOf returns the player's assigned color, ColorNone if unassigned
func (f Facts) ColorOf(playerID string) message.Color {
	return f.Colors[playerID]
}

// Snapshot encodes the facts deterministically; equal facts yield equal bytes
func (f *Facts) Snapshot() []byte {
	w := codec.NewWriter()
	w.Int32(int32(f.ReadyCount))
	w.Int32(int32(f.ResetCount))
	w.Bool(f.TreasureTaken)
	w.Bool(f.TreasureStealable)
	w.Float32(f.TreasurePos.X)
	w.Float32(f.TreasurePos.Y)
	w.Float32(f.LastSpawn.X)
	w.Float32(f.LastSpawn.Y)
	w.Bool(f.LevelReset)
	w.Bool(f.HostStarted)

	ids := slices.Sorted(maps.Keys(f.Colors))
	w.Uint32(uint32(len(ids)))
	for _, id := range ids {
		w.Text(id)
		w.Int32(int32(f.Colors[id]))
	}
	return w.Bytes()
}
