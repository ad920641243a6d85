// Package codec encodes fixed-order primitive fields for wire payloads
//
// There is no schema: writer and reader agree on field order by convention per message kind
// Each primitive carries a one-byte MessagePack type marker, nothing else
package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrMalformed reports a payload that is short or does not match the expected field order
var ErrMalformed = errors.New("malformed payload")

// Writer appends primitives to a reusable buffer
// Reset must be called before reusing a Writer for a new payload
type Writer struct {
	buf bytes.Buffer
	enc *msgpack.Encoder
	err error
}

// NewWriter returns an empty writer
func NewWriter() *Writer {
	w := &Writer{}
	w.enc = msgpack.NewEncoder(&w.buf)
	return w
}

// Reset clears the buffer and sticky error
func (w *Writer) Reset() {
	w.buf.Reset()
	w.enc.Reset(&w.buf)
	w.err = nil
}

func (w *Writer) keep(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

func (w *Writer) Float32(v float32) { w.keep(w.enc.EncodeFloat32(v)) }
func (w *Writer) Int32(v int32)     { w.keep(w.enc.EncodeInt32(v)) }
func (w *Writer) Uint8(v uint8)     { w.keep(w.enc.EncodeUint8(v)) }
func (w *Writer) Uint32(v uint32)   { w.keep(w.enc.EncodeUint32(v)) }
func (w *Writer) Bool(v bool)       { w.keep(w.enc.EncodeBool(v)) }
func (w *Writer) Text(v string)     { w.keep(w.enc.EncodeString(v)) }

// Raw appends a nested payload as a length-prefixed byte string
func (w *Writer) Raw(v []byte) { w.keep(w.enc.EncodeBytes(v)) }

// Err returns the first encoding error, if any
func (w *Writer) Err() error { return w.err }

// Len returns the number of encoded bytes
func (w *Writer) Len() int { return w.buf.Len() }

// Bytes returns a copy of the encoded payload, safe to keep after Reset
func (w *Writer) Bytes() []byte {
	return bytes.Clone(w.buf.Bytes())
}

// Reader consumes primitives in the order they were written
// The first failure sticks: later reads return zero values and Err reports the cause
type Reader struct {
	src *bytes.Reader
	dec *msgpack.Decoder
	err error
}

// NewReader wraps a payload
func NewReader(b []byte) *Reader {
	src := bytes.NewReader(b)
	return &Reader{src: src, dec: msgpack.NewDecoder(src)}
}

// Reset points the reader at a new payload
func (r *Reader) Reset(b []byte) {
	r.src.Reset(b)
	r.dec.Reset(r.src)
	r.err = nil
}

func (r *Reader) fail(field string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: reading %s: %v", ErrMalformed, field, err)
	}
}

func (r *Reader) Float32() float32 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.DecodeFloat32()
	if err != nil {
		r.fail("float32", err)
		return 0
	}
	return v
}

func (r *Reader) Int32() int32 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.DecodeInt32()
	if err != nil {
		r.fail("int32", err)
		return 0
	}
	return v
}

func (r *Reader) Uint8() uint8 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.DecodeUint8()
	if err != nil {
		r.fail("uint8", err)
		return 0
	}
	return v
}

func (r *Reader) Uint32() uint32 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.DecodeUint32()
	if err != nil {
		r.fail("uint32", err)
		return 0
	}
	return v
}

func (r *Reader) Bool() bool {
	if r.err != nil {
		return false
	}
	v, err := r.dec.DecodeBool()
	if err != nil {
		r.fail("bool", err)
		return false
	}
	return v
}

func (r *Reader) Text() string {
	if r.err != nil {
		return ""
	}
	v, err := r.dec.DecodeString()
	if err != nil {
		r.fail("string", err)
		return ""
	}
	return v
}

// Raw reads a nested payload written by Writer.Raw
func (r *Reader) Raw() []byte {
	if r.err != nil {
		return nil
	}
	v, err := r.dec.DecodeBytes()
	if err != nil {
		r.fail("bytes", err)
		return nil
	}
	return v
}

// Err returns the first decoding error
func (r *Reader) Err() error { return r.err }

// Remaining returns the number of unread bytes
func (r *Reader) Remaining() int { return r.src.Len() }
