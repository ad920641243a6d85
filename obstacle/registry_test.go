package obstacle

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixenwraith/buildrun/codec"
	"github.com/lixenwraith/buildrun/message"
	"github.com/lixenwraith/buildrun/physics"
	"github.com/lixenwraith/buildrun/visual"
)

func newRegistry(t *testing.T) (*Registry, *physics.World) {
	t.Helper()
	w := physics.NewWorld()
	r := NewRegistry(w, visual.DefaultCatalog())
	RegisterDefaults(r)
	return r, w
}

var samples = []struct {
	name string
	id   TypeID
	p    Params
}{
	{"platform zero", TypePlatform, PlatformParams{}},
	{"platform art", TypePlatform, PlatformParams{X: -4.5, Y: 2, W: 3, H: 1, Tag: PlatformArt, Scale: 0.5}},
	{"platform large", TypePlatform, PlatformParams{X: 1e9, Y: -1e9, W: 1e-3, H: 1e6, Tag: PlatformKinematic, Scale: -1}},
	{"moving", TypeMovingPlatform, MovingPlatformParams{X: 1, Y: 2, W: 3, H: 0.5, EndX: -7.25, EndY: 2, Speed: 1.5, Scale: 1}},
	{"treasure", TypeTreasure, TreasureParams{X: 10, Y: 3, W: 1, H: 1, Scale: 2, Taken: true}},
	{"hazard", TypeHazard, HazardParams{X: -0.0001, Y: 0, W: 1, H: 1}},
	{"boost", TypeBoost, BoostParams{X: 5, Y: 5, W: 1, H: 1, Scale: 3.75}},
	{"player", TypePlayer, PlayerParams{X: -2, Y: 40000, Scale: 1, Color: message.ColorYellow}},
	{"player negative color", TypePlayer, PlayerParams{Color: message.Color(-3)}},
}

func TestParamsRoundTrip(t *testing.T) {
	r, _ := newRegistry(t)
	cases := append(samples[:len(samples):len(samples)],
		struct {
			name string
			id   TypeID
			p    Params
		}{"extremes", TypeMovingPlatform, MovingPlatformParams{X: math.MaxFloat32, Y: -math.MaxFloat32, W: math.SmallestNonzeroFloat32, Speed: -0}},
	)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := EncodeParams(tc.p)
			require.NoError(t, err)

			f, err := r.factory(tc.id)
			require.NoError(t, err)
			rd := codec.NewReader(b)
			got := f.Decode(rd)
			require.NoError(t, rd.Err())
			assert.Zero(t, rd.Remaining())
			assert.Equal(t, tc.p, got)
		})
	}
}

func TestCreateMatchesCreateFromBytes(t *testing.T) {
	for _, tc := range samples {
		t.Run(tc.name, func(t *testing.T) {
			r, w := newRegistry(t)
			direct, err := r.Create(tc.id, tc.p)
			require.NoError(t, err)

			b, err := EncodeParams(tc.p)
			require.NoError(t, err)
			decoded, err := r.CreateFromBytes(tc.id, b)
			require.NoError(t, err)

			assert.Equal(t, 2, w.Len(), "both obstacles attached")
			assert.Equal(t, direct.Kind, decoded.Kind)
			assert.Equal(t, direct.Type, decoded.Type)
			assert.Equal(t, direct.Params, decoded.Params)
			assert.Equal(t, direct.Visual.Asset, decoded.Visual.Asset)

			db, xb := direct.Body, decoded.Body
			assert.Equal(t, db.Mode, xb.Mode)
			assert.Equal(t, [4]int64{db.X, db.Y, db.HalfW, db.HalfH}, [4]int64{xb.X, xb.Y, xb.HalfW, xb.HalfH})
			assert.Equal(t, db.Category, xb.Category)
			assert.Equal(t, db.Mask, xb.Mask)

			x1, y1, w1, h1 := direct.Footprint(1)
			x2, y2, w2, h2 := decoded.Footprint(1)
			assert.Equal(t, [4]int{x1, y1, w1, h1}, [4]int{x2, y2, w2, h2})
		})
	}
}

func TestCreateUnregistered(t *testing.T) {
	r, w := newRegistry(t)
	_, err := r.Create(TypeID(42), HazardParams{})
	assert.ErrorIs(t, err, ErrUnregistered)
	_, err = r.CreateFromBytes(TypeID(42), nil)
	assert.ErrorIs(t, err, ErrUnregistered)
	assert.Zero(t, w.Len())
}

func TestCreateKindMismatch(t *testing.T) {
	r, w := newRegistry(t)
	_, err := r.Create(TypeHazard, BoostParams{})
	assert.ErrorIs(t, err, ErrKindMismatch)
	assert.Zero(t, w.Len())
}

func TestCreateFromBytesMalformed(t *testing.T) {
	r, w := newRegistry(t)
	b, err := EncodeParams(TreasureParams{X: 1, Y: 1, W: 1, H: 1, Scale: 1})
	require.NoError(t, err)

	_, err = r.CreateFromBytes(TypeTreasure, b[:len(b)-1])
	assert.ErrorIs(t, err, codec.ErrMalformed)

	_, err = r.CreateFromBytes(TypeHazard, b)
	assert.ErrorIs(t, err, codec.ErrMalformed, "treasure payload has trailing fields for a hazard")

	assert.Zero(t, w.Len())
}

func TestMissingAssetIsConfigurationError(t *testing.T) {
	w := physics.NewWorld()
	r := NewRegistry(w, visual.NewCatalog())
	RegisterDefaults(r)

	_, err := r.Create(TypeHazard, HazardParams{W: 1, H: 1})
	assert.ErrorIs(t, err, visual.ErrMissingAsset)
	assert.Zero(t, w.Len())
}

func TestRegisterOrder(t *testing.T) {
	r := NewRegistry(physics.NewWorld(), visual.DefaultCatalog())
	assert.ErrorIs(t, r.Register(1, HazardFactory()), ErrRegistration)
	require.NoError(t, r.Register(0, HazardFactory()))
	assert.ErrorIs(t, r.Register(0, BoostFactory()), ErrRegistration)
	assert.Panics(t, func() { r.MustRegister(5, BoostFactory()) })

	id, ok := r.TypeOf(KindHazard)
	assert.True(t, ok)
	assert.Equal(t, TypeID(0), id)
	_, ok = r.TypeOf(KindPlayer)
	assert.False(t, ok)
}

func TestFootprint(t *testing.T) {
	r, _ := newRegistry(t)
	cases := []struct {
		name       string
		p          Params
		id         TypeID
		x, y, w, h int
	}{
		{"unit box", HazardParams{X: 2.5, Y: 3.5, W: 1, H: 1}, TypeHazard, 2, 3, 1, 1},
		{"2x2", PlatformParams{X: 3, Y: 4, W: 2, H: 2}, TypePlatform, 2, 3, 2, 2},
		{"negative", BoostParams{X: -0.5, Y: -0.5, W: 1, H: 1}, TypeBoost, -1, -1, 1, 1},
		{"thin", PlatformParams{X: 0.5, Y: 0.5, W: 0.2, H: 0.2}, TypePlatform, 0, 0, 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o, err := r.Create(tc.id, tc.p)
			require.NoError(t, err)
			x, y, w, h := o.Footprint(1)
			assert.Equal(t, [4]int{tc.x, tc.y, tc.w, tc.h}, [4]int{x, y, w, h})

			px, py, pw, ph := FootprintOf(tc.p, 1)
			assert.Equal(t, [4]int{x, y, w, h}, [4]int{px, py, pw, ph})
		})
	}
}

func TestKindAccessors(t *testing.T) {
	r, _ := newRegistry(t)
	o, err := r.Create(TypeTreasure, TreasureParams{W: 1, H: 1, Taken: true})
	require.NoError(t, err)

	tp, ok := o.Treasure()
	assert.True(t, ok)
	assert.True(t, tp.Taken)
	assert.Equal(t, "treasure.taken", o.Visual.Asset)

	_, ok = o.Player()
	assert.False(t, ok)
	assert.False(t, o.IsArt())

	art, err := r.Create(TypePlatform, PlatformParams{W: 1, H: 1, Tag: PlatformArt})
	require.NoError(t, err)
	assert.True(t, art.IsArt())
	assert.Zero(t, art.Body.Category)
}

func TestInterpolate(t *testing.T) {
	r, w := newRegistry(t)
	o, err := r.Create(TypeMovingPlatform, MovingPlatformParams{X: 0, Y: 0, W: 1, H: 1, EndX: 10, Speed: 60})
	require.NoError(t, err)

	w.Step(time.Second / 60)
	o.Interpolate(0.5)
	assert.InDelta(t, 0.5, o.Visual.RenderX, 1e-3)
	o.Interpolate(1)
	assert.InDelta(t, 1.0, o.Visual.RenderX, 1e-3)
}
