package obstacle

import (
	"github.com/lixenwraith/buildrun/codec"
	"github.com/lixenwraith/buildrun/message"
)

// Params is the ordered construction field set of one obstacle kind
// Encode writes fields in the kind's fixed wire order; the matching decoder reads the same order
type Params interface {
	Kind() Kind
	Encode(w *codec.Writer)
}

// PlatformTag selects platform behavior, carried as an int32 on the wire
type PlatformTag int32

const (
	PlatformSolid     PlatformTag = iota // Static, collides
	PlatformArt                          // Visual overlay only, never occupies a grid cell
	PlatformKinematic                    // Collides, may be moved by code
)

// PlatformParams wire order: posX, posY, width, height, kindTag, scale
type PlatformParams struct {
	X, Y  float32
	W, H  float32
	Tag   PlatformTag
	Scale float32
}

// MovingPlatformParams wire order: posX, posY, width, height, endX, endY, speed, scale
type MovingPlatformParams struct {
	X, Y       float32
	W, H       float32
	EndX, EndY float32
	Speed      float32
	Scale      float32
}

// TreasureParams wire order: posX, posY, width, height, scale, takenFlag
type TreasureParams struct {
	X, Y  float32
	W, H  float32
	Scale float32
	Taken bool
}

// HazardParams wire order: posX, posY, width, height
type HazardParams struct {
	X, Y float32
	W, H float32
}

// BoostParams wire order: posX, posY, width, height, scale
type BoostParams struct {
	X, Y  float32
	W, H  float32
	Scale float32
}

// PlayerParams wire order: posX, posY, scale, colorEnum
type PlayerParams struct {
	X, Y  float32
	Scale float32
	Color message.Color
}

func (PlatformParams) Kind() Kind       { return KindPlatform }
func (MovingPlatformParams) Kind() Kind { return KindMovingPlatform }
func (TreasureParams) Kind() Kind       { return KindTreasure }
func (HazardParams) Kind() Kind         { return KindHazard }
func (BoostParams) Kind() Kind          { return KindBoost }
func (PlayerParams) Kind() Kind         { return KindPlayer }

func (p PlatformParams) Encode(w *codec.Writer) {
	w.Float32(p.X)
	w.Float32(p.Y)
	w.Float32(p.W)
	w.Float32(p.H)
	w.Int32(int32(p.Tag))
	w.Float32(p.Scale)
}

func decodePlatform(r *codec.Reader) PlatformParams {
	return PlatformParams{
		X:     r.Float32(),
		Y:     r.Float32(),
		W:     r.Float32(),
		H:     r.Float32(),
		Tag:   PlatformTag(r.Int32()),
		Scale: r.Float32(),
	}
}

func (p MovingPlatformParams) Encode(w *codec.Writer) {
	w.Float32(p.X)
	w.Float32(p.Y)
	w.Float32(p.W)
	w.Float32(p.H)
	w.Float32(p.EndX)
	w.Float32(p.EndY)
	w.Float32(p.Speed)
	w.Float32(p.Scale)
}

func decodeMovingPlatform(r *codec.Reader) MovingPlatformParams {
	return MovingPlatformParams{
		X:     r.Float32(),
		Y:     r.Float32(),
		W:     r.Float32(),
		H:     r.Float32(),
		EndX:  r.Float32(),
		EndY:  r.Float32(),
		Speed: r.Float32(),
		Scale: r.Float32(),
	}
}

func (p TreasureParams) Encode(w *codec.Writer) {
	w.Float32(p.X)
	w.Float32(p.Y)
	w.Float32(p.W)
	w.Float32(p.H)
	w.Float32(p.Scale)
	w.Bool(p.Taken)
}

func decodeTreasure(r *codec.Reader) TreasureParams {
	return TreasureParams{
		X:     r.Float32(),
		Y:     r.Float32(),
		W:     r.Float32(),
		H:     r.Float32(),
		Scale: r.Float32(),
		Taken: r.Bool(),
	}
}

func (p HazardParams) Encode(w *codec.Writer) {
	w.Float32(p.X)
	w.Float32(p.Y)
	w.Float32(p.W)
	w.Float32(p.H)
}

func decodeHazard(r *codec.Reader) HazardParams {
	return HazardParams{
		X: r.Float32(),
		Y: r.Float32(),
		W: r.Float32(),
		H: r.Float32(),
	}
}

func (p BoostParams) Encode(w *codec.Writer) {
	w.Float32(p.X)
	w.Float32(p.Y)
	w.Float32(p.W)
	w.Float32(p.H)
	w.Float32(p.Scale)
}

func decodeBoost(r *codec.Reader) BoostParams {
	return BoostParams{
		X:     r.Float32(),
		Y:     r.Float32(),
		W:     r.Float32(),
		H:     r.Float32(),
		Scale: r.Float32(),
	}
}

func (p PlayerParams) Encode(w *codec.Writer) {
	w.Float32(p.X)
	w.Float32(p.Y)
	w.Float32(p.Scale)
	w.Int32(int32(p.Color))
}

func decodePlayer(r *codec.Reader) PlayerParams {
	return PlayerParams{
		X:     r.Float32(),
		Y:     r.Float32(),
		Scale: r.Float32(),
		Color: message.Color(r.Int32()),
	}
}

// EncodeParams serializes params into a fresh payload
func EncodeParams(p Params) ([]byte, error) {
	w := codec.NewWriter()
	p.Encode(w)
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
