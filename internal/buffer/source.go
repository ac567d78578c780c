// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package buffer

import "encoding/binary"

// Source is a forward-only cursor over a View: a read head that advances as
// values are consumed, used by the disassemblers and the patch decoder to
// walk a stream without recomputing offsets by hand.
type Source struct {
	view View
	pos int
}

// NewSource creates a cursor positioned at the start of v.
func NewSource(v View) *Source { return &Source{view: v} }

// Remaining reports how many bytes are left to read.
func (s *Source) Remaining() int { return s.view.Len() - s.pos }

// Bytes returns the cursor's whole backing region, independent of Pos.
func (s *Source) Bytes() []byte { return s.view.Bytes() }

// Pos reports the cursor's current offset.
func (s *Source) Pos() int { return s.pos }

// Skip advances the cursor by n bytes, failing if that runs past the end.
func (s *Source) Skip(n int) error {
	if n < 0 || n > s.Remaining() {
		return ErrOutsideBoundary
	}
	s.pos += n
	return nil
}

// GetRegion returns the next size bytes and advances the cursor.
func (s *Source) GetRegion(size int) ([]byte, error) {
	b, err := s.view.Sub(s.pos, size)
	if err != nil {
		return nil, err
	}
	s.pos += size
	return b, nil
}

// GetUint8 reads one byte and advances.
func (s *Source) GetUint8() (uint8, error) {
	b, err := s.GetRegion(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// GetUint16 reads a little-endian uint16 and advances.
func (s *Source) GetUint16() (uint16, error) {
	b, err := s.GetRegion(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// GetUint32 reads a little-endian uint32 and advances.
func (s *Source) GetUint32() (uint32, error) {
	b, err := s.GetRegion(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// GetUint64 reads a little-endian uint64 and advances.
func (s *Source) GetUint64() (uint64, error) {
	b, err := s.GetRegion(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// GetUleb128 reads an unsigned LEB128 varint and advances past it.
func (s *Source) GetUleb128() (uint32, error) {
	v, n, err := DecodeUleb128(s.view.data[s.pos:])
	if err != nil {
		return 0, err
	}
	s.pos += n
	return v, nil
}

// GetSleb128 reads a zig-zag LEB128 signed varint and advances past it.
func (s *Source) GetSleb128() (int32, error) {
	v, n, err := DecodeSleb128(s.view.data[s.pos:])
	if err != nil {
		return 0, err
	}
	s.pos += n
	return v, nil
}

// SkipLeb128 advances past one LEB128 value without decoding it.
func (s *Source) SkipLeb128() error {
	_, n, err := DecodeUleb128(s.view.data[s.pos:])
	if err != nil {
		return err
	}
	s.pos += n
	return nil
}
