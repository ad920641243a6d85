package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixenwraith/buildrun/codec"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
	}{
		{"build ready", NewSignal(TagBuildReady)},
		{"reset level", NewSignal(TagResetLevel)},
		{"color", ColorAssign{PlayerID: "a1b2c3d4", Color: ColorGreen}},
		{"spawn", TreasureSpawn{X: -3.25, Y: 1e6}},
		{"create", Create{Type: 4, Params: []byte{0xca, 0x3f, 0x80, 0, 0}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := Encode(Envelope{Sender: "host", Seq: 9, Msg: tc.msg})
			require.NoError(t, err)

			env, err := Decode(b)
			require.NoError(t, err)
			assert.Equal(t, "host", env.Sender)
			assert.Equal(t, uint32(9), env.Seq)
			assert.Equal(t, tc.msg, env.Msg)
		})
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	w := codec.NewWriter()
	w.Uint8(ProtocolVersion)
	w.Text("p2")
	w.Uint32(1)
	w.Uint8(0x7f)
	w.Float32(99)

	env, err := Decode(w.Bytes())
	require.NoError(t, err)
	assert.Equal(t, Unknown{Raw: 0x7f}, env.Msg)
	assert.Equal(t, "TAG(0x7f)", env.Msg.Tag().String())
}

func TestDecodeVersionMismatch(t *testing.T) {
	w := codec.NewWriter()
	w.Uint8(ProtocolVersion + 1)
	w.Text("p2")

	_, err := Decode(w.Bytes())
	assert.ErrorIs(t, err, ErrVersion)
}

func TestDecodeTruncated(t *testing.T) {
	b, err := Encode(Envelope{Sender: "p", Seq: 1, Msg: TreasureSpawn{X: 1, Y: 2}})
	require.NoError(t, err)

	_, err = Decode(b[:len(b)-2])
	assert.ErrorIs(t, err, codec.ErrMalformed)
}

func TestEncodeRejectsUnknown(t *testing.T) {
	_, err := Encode(Envelope{Sender: "p", Msg: Unknown{Raw: 0x55}})
	assert.Error(t, err)
}

func TestNewSignalPanicsOnPayloadTag(t *testing.T) {
	assert.Panics(t, func() { NewSignal(TagCreate) })
}
