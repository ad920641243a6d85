package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/lixenwraith/buildrun/codec"
)

// FrameType identifies a transport frame; game messages ride inside FrameEvent
type FrameType uint8

const (
	// Control frames
	FrameHello     FrameType = 0x01 // joiner -> host/relay: peer id
	FrameWelcome   FrameType = 0x02 // host/relay -> joiner: authority id, player count
	FrameRoster    FrameType = 0x03 // player count changed
	FrameHeartbeat FrameType = 0x04

	// Game traffic, payload is an encoded message envelope
	FrameEvent FrameType = 0x10
)

// HeaderSize of a stream frame: [Type:1][Len:2]
const HeaderSize = 3

// MaxPayload bounds a frame payload
const MaxPayload = 65535

var ErrFrameTooLarge = errors.New("frame payload exceeds maximum size")

// Frame is one transport unit
type Frame struct {
	Type    FrameType
	Payload []byte
}

// Encode writes the frame to a stream with a length prefix
func (f Frame) Encode(w io.Writer) error {
	if len(f.Payload) > MaxPayload {
		return ErrFrameTooLarge
	}
	var header [HeaderSize]byte
	header[0] = byte(f.Type)
	binary.BigEndian.PutUint16(header[1:3], uint16(len(f.Payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return err
		}
	}
	return nil
}

// DecodeFrame reads one length-prefixed frame from a stream
func DecodeFrame(r io.Reader) (Frame, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, err
	}
	f := Frame{Type: FrameType(header[0])}
	if n := binary.BigEndian.Uint16(header[1:3]); n > 0 {
		f.Payload = make([]byte, n)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return Frame{}, err
		}
	}
	return f, nil
}

// Marshal packs the frame for message-oriented transports that delimit frames themselves
func (f Frame) Marshal() []byte {
	out := make([]byte, 0, 1+len(f.Payload))
	out = append(out, byte(f.Type))
	return append(out, f.Payload...)
}

// ParseFrame is the inverse of Marshal
func ParseFrame(b []byte) (Frame, error) {
	if len(b) == 0 {
		return Frame{}, fmt.Errorf("%w: empty frame", codec.ErrMalformed)
	}
	return Frame{Type: FrameType(b[0]), Payload: b[1:]}, nil
}

// Welcome is the handshake answer telling a joiner who holds authority
type Welcome struct {
	Authority string
	Players   int
}

func HelloFrame(id string) Frame {
	w := codec.NewWriter()
	w.Text(id)
	return Frame{Type: FrameHello, Payload: w.Bytes()}
}

func ParseHello(f Frame) (string, error) {
	if f.Type != FrameHello {
		return "", fmt.Errorf("%w: expected hello, got frame 0x%02x", codec.ErrMalformed, f.Type)
	}
	r := codec.NewReader(f.Payload)
	id := r.Text()
	if err := r.Err(); err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("%w: empty peer id", codec.ErrMalformed)
	}
	return id, nil
}

func WelcomeFrame(w Welcome) Frame {
	cw := codec.NewWriter()
	cw.Text(w.Authority)
	cw.Uint32(uint32(w.Players))
	return Frame{Type: FrameWelcome, Payload: cw.Bytes()}
}

func ParseWelcome(f Frame) (Welcome, error) {
	if f.Type != FrameWelcome {
		return Welcome{}, fmt.Errorf("%w: expected welcome, got frame 0x%02x", codec.ErrMalformed, f.Type)
	}
	r := codec.NewReader(f.Payload)
	w := Welcome{Authority: r.Text(), Players: int(r.Uint32())}
	return w, r.Err()
}

func RosterFrame(players int) Frame {
	w := codec.NewWriter()
	w.Uint32(uint32(players))
	return Frame{Type: FrameRoster, Payload: w.Bytes()}
}

func ParseRoster(f Frame) (int, error) {
	r := codec.NewReader(f.Payload)
	n := int(r.Uint32())
	return n, r.Err()
}
