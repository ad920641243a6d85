// Package message defines the closed vocabulary exchanged between peers
package message

import (
	"fmt"

	"github.com/lixenwraith/buildrun/codec"
)

// Tag identifies the semantic meaning of a message
type Tag uint8

const (
	// Game-fact signals, no payload
	TagBuildReady      Tag = 0x01
	TagMovementEnd     Tag = 0x02
	TagTreasureTaken   Tag = 0x03
	TagTreasureLost    Tag = 0x04
	TagTreasureStolen  Tag = 0x05
	TagTreasureWon     Tag = 0x06
	TagMakeUnstealable Tag = 0x07
	TagHostStart       Tag = 0x08
	TagScoreUpdate     Tag = 0x09
	TagResetLevel      Tag = 0x0A

	// Payload-carrying events
	TagColorAssign   Tag = 0x20
	TagTreasureSpawn Tag = 0x21
	TagCreate        Tag = 0x30
)

var tagNames = map[Tag]string{
	TagBuildReady:      "BUILD_READY",
	TagMovementEnd:     "MOVEMENT_END",
	TagTreasureTaken:   "TREASURE_TAKEN",
	TagTreasureLost:    "TREASURE_LOST",
	TagTreasureStolen:  "TREASURE_STOLEN",
	TagTreasureWon:     "TREASURE_WON",
	TagMakeUnstealable: "MAKE_UNSTEALABLE",
	TagHostStart:       "HOST_START",
	TagScoreUpdate:     "SCORE_UPDATE",
	TagResetLevel:      "RESET_LEVEL",
	TagColorAssign:     "COLOR_ASSIGN",
	TagTreasureSpawn:   "TREASURE_SPAWN",
	TagCreate:          "CREATE",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TAG(0x%02x)", uint8(t))
}

// IsSignal reports whether the tag is a payload-less game-fact signal
func (t Tag) IsSignal() bool {
	return t >= TagBuildReady && t <= TagResetLevel
}

// Color is the per-player color enumeration, also used to infer treasure ownership
type Color int32

const (
	ColorNone Color = iota
	ColorRed
	ColorBlue
	ColorGreen
	ColorYellow
)

func (c Color) String() string {
	switch c {
	case ColorRed:
		return "red"
	case ColorBlue:
		return "blue"
	case ColorGreen:
		return "green"
	case ColorYellow:
		return "yellow"
	default:
		return "none"
	}
}

// Message is the closed set of payloads; only types in this package implement it
type Message interface {
	Tag() Tag
	encode(w *codec.Writer)
}

// Signal is a payload-less game-fact message
type Signal struct {
	Kind Tag
}

// ColorAssign binds a player to a color
type ColorAssign struct {
	PlayerID string
	Color    Color
}

// TreasureSpawn carries an authoritative treasure respawn position
type TreasureSpawn struct {
	X, Y float32
}

// Create carries the construction parameters of one shared obstacle
// Params is the obstacle kind's own fixed-order payload
type Create struct {
	Type   uint8
	Params []byte
}

// Unknown is produced when decoding a tag this build does not know
// The remainder of the payload is not interpreted
type Unknown struct {
	Raw Tag
}

func (m Signal) Tag() Tag      { return m.Kind }
func (ColorAssign) Tag() Tag   { return TagColorAssign }
func (TreasureSpawn) Tag() Tag { return TagTreasureSpawn }
func (Create) Tag() Tag        { return TagCreate }
func (m Unknown) Tag() Tag     { return m.Raw }

func (Signal) encode(*codec.Writer)  {}
func (Unknown) encode(*codec.Writer) {}

func (m ColorAssign) encode(w *codec.Writer) {
	w.Text(m.PlayerID)
	w.Int32(int32(m.Color))
}

func (m TreasureSpawn) encode(w *codec.Writer) {
	w.Float32(m.X)
	w.Float32(m.Y)
}

func (m Create) encode(w *codec.Writer) {
	w.Uint8(m.Type)
	w.Raw(m.Params)
}

// NewSignal builds a signal message, panics on a non-signal tag
func NewSignal(t Tag) Signal {
	if !t.IsSignal() {
		panic(fmt.Sprintf("message: %s is not a signal tag", t))
	}
	return Signal{Kind: t}
}
