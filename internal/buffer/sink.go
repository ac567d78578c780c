// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package buffer

// Sink is the mutating dual of Source: an append-only byte accumulator used
// while encoding patch streams.
type Sink struct {
	buf []byte
}

// NewSink returns an empty Sink, optionally pre-sized.
func NewSink(capacityHint int) *Sink {
	return &Sink{buf: make([]byte, 0, capacityHint)}
}

// Bytes returns the accumulated bytes.
func (s *Sink) Bytes() []byte { return s.buf }

// Len reports how many bytes have been written so far.
func (s *Sink) Len() int { return len(s.buf) }

// PutRange appends raw bytes verbatim.
func (s *Sink) PutRange(b []byte) {
	s.buf = append(s.buf, b...)
}

// PutUint8 appends a single byte.
func (s *Sink) PutUint8(v uint8) {
	s.buf = append(s.buf, v)
}

// PutUint16 appends a little-endian uint16.
func (s *Sink) PutUint16(v uint16) {
	s.buf = append(s.buf, byte(v), byte(v>>8))
}

// PutUint32 appends a little-endian uint32.
func (s *Sink) PutUint32(v uint32) {
	s.buf = append(s.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// PutUint64 appends a little-endian uint64.
func (s *Sink) PutUint64(v uint64) {
	var b [8]byte
	for i := range b {
		b[i] = byte(v)
		v >>= 8
	}
	s.buf = append(s.buf, b[:]...)
}

// PutUleb128 appends the unsigned LEB128 encoding of v.
func (s *Sink) PutUleb128(v uint32) {
	s.buf = EncodeUleb128(s.buf, v)
}

// PutSleb128 appends the zig-zag LEB128 encoding of v.
func (s *Sink) PutSleb128(v int32) {
	s.buf = EncodeSleb128(s.buf, v)
}
