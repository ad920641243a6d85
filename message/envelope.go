package message

import (
	"errors"
	"fmt"

	"github.com/lixenwraith/buildrun/codec"
)

// ProtocolVersion is written first in every envelope
// Bump it whenever any kind's field order or count changes
const ProtocolVersion uint8 = 1

// ErrVersion reports an envelope written by an incompatible build
var ErrVersion = errors.New("protocol version mismatch")

// Envelope is one message as delivered by the event channel
// Seq increases by one per message from the same sender
type Envelope struct {
	Sender string
	Seq    uint32
	Msg    Message
}

// Encode frames an envelope as [version][sender][seq][tag][fields...]
func Encode(env Envelope) ([]byte, error) {
	w := codec.NewWriter()
	return AppendEnvelope(w, env)
}

// AppendEnvelope encodes into a caller-owned writer, which is reset first
func AppendEnvelope(w *codec.Writer, env Envelope) ([]byte, error) {
	if env.Msg == nil {
		return nil, errors.New("envelope has no message")
	}
	if _, ok := env.Msg.(Unknown); ok {
		return nil, fmt.Errorf("cannot encode unknown tag %s", env.Msg.Tag())
	}
	w.Reset()
	w.Uint8(ProtocolVersion)
	w.Text(env.Sender)
	w.Uint32(env.Seq)
	w.Uint8(uint8(env.Msg.Tag()))
	env.Msg.encode(w)
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Decode parses an envelope
// Unknown tags decode to Unknown without error; malformed payloads wrap codec.ErrMalformed
func Decode(b []byte) (Envelope, error) {
	r := codec.NewReader(b)

	version := r.Uint8()
	if err := r.Err(); err != nil {
		return Envelope{}, err
	}
	if version != ProtocolVersion {
		return Envelope{}, fmt.Errorf("%w: got %d, want %d", ErrVersion, version, ProtocolVersion)
	}

	env := Envelope{
		Sender: r.Text(),
		Seq:    r.Uint32(),
	}
	tag := Tag(r.Uint8())
	if err := r.Err(); err != nil {
		return Envelope{}, err
	}

	switch {
	case tag.IsSignal():
		env.Msg = Signal{Kind: tag}
	case tag == TagColorAssign:
		env.Msg = ColorAssign{PlayerID: r.Text(), Color: Color(r.Int32())}
	case tag == TagTreasureSpawn:
		env.Msg = TreasureSpawn{X: r.Float32(), Y: r.Float32()}
	case tag == TagCreate:
		env.Msg = Create{Type: r.Uint8(), Params: r.Raw()}
	default:
		env.Msg = Unknown{Raw: tag}
	}

	if err := r.Err(); err != nil {
		return Envelope{}, fmt.Errorf("decoding %s from %q: %w", tag, env.Sender, err)
	}
	return env, nil
}
