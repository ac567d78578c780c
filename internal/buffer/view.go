// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package buffer provides bounds-checked random-access and cursor-style
// views over a byte slice, used everywhere the engine needs to read or
// write typed values at an offset without risking an out-of-bounds panic
// bubbling up from a raw slice expression.
package buffer

import (
	"encoding/binary"
	"errors"
)

// Errors returned by typed access. These never panic; every caller gets a
// chance to translate a bounds failure into a format error or a "silently
// skip this reference" decision per.
var (
	ErrOutsideBoundary = errors.New("buffer: access outside boundary")
	ErrNoRoom = errors.New("buffer: not enough room to write")
	ErrAlignOverflow = errors.New("buffer: AlignOn would exceed view end")
)

// View is a bounds-checked, non-owning window over a byte slice. It never
// copies the underlying storage; callers must ensure the slice outlives the
// View, the same lifetime contract the teacher's mmap-backed File carries.
type View struct {
	data []byte
}

// New wraps data in a View.
func New(data []byte) View { return View{data: data} }

// Len reports the number of accessible bytes.
func (v View) Len() int { return len(v.data) }

// Bytes returns the backing slice. Callers must not retain it past the
// View's own lifetime assumptions.
func (v View) Bytes() []byte { return v.data }

// CanAccess reports whether size bytes starting at pos fit within the view.
func (v View) CanAccess(pos, size int) bool {
	if pos < 0 || size < 0 {
		return false
	}
	return pos <= len(v.data) && size <= len(v.data)-pos
}

// Sub returns the byte range [begin, begin+size), erroring if it escapes
// the view.
func (v View) Sub(begin, size int) ([]byte, error) {
	if !v.CanAccess(begin, size) {
		return nil, ErrOutsideBoundary
	}
	return v.data[begin: begin+size], nil
}

// Shrink returns a View truncated to the first n bytes.
func (v View) Shrink(n int) (View, error) {
	if n < 0 || n > len(v.data) {
		return View{}, ErrOutsideBoundary
	}
	return View{data: v.data[:n]}, nil
}

// RemovePrefix returns a View with the first n bytes dropped.
func (v View) RemovePrefix(n int) (View, error) {
	if n < 0 || n > len(v.data) {
		return View{}, ErrOutsideBoundary
	}
	return View{data: v.data[n:]}, nil
}

// AlignOn moves the view's start forward by the fewest bytes (possibly none)
// that make origin plus the skipped count a multiple of align, failing if
// doing so would exceed the view's end.
// origin and align follow section 4.1: align must be a positive power-of-two
// sized stride, origin is the absolute offset this view's byte 0 represents.
func (v View) AlignOn(origin uint64, align uint64) (View, error) {
	if align == 0 {
		return v, nil
	}
	rem := origin % align
	var skip uint64
	if rem != 0 {
		skip = align - rem
	}
	if skip > uint64(len(v.data)) {
		return View{}, ErrAlignOverflow
	}
	return View{data: v.data[skip:]}, nil
}

// ReadUint8 reads a byte at pos.
func (v View) ReadUint8(pos int) (uint8, error) {
	b, err := v.Sub(pos, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16 reads a little-endian uint16 at pos.
func (v View) ReadUint16(pos int) (uint16, error) {
	b, err := v.Sub(pos, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadUint32 reads a little-endian uint32 at pos.
func (v View) ReadUint32(pos int) (uint32, error) {
	b, err := v.Sub(pos, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadUint64 reads a little-endian uint64 at pos.
func (v View) ReadUint64(pos int) (uint64, error) {
	b, err := v.Sub(pos, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// WriteUint32 overwrites the little-endian uint32 at pos.
func (v View) WriteUint32(pos int, val uint32) error {
	b, err := v.Sub(pos, 4)
	if err != nil {
		return ErrNoRoom
	}
	binary.LittleEndian.PutUint32(b, val)
	return nil
}

// WriteUint64 overwrites the little-endian uint64 at pos.
func (v View) WriteUint64(pos int, val uint64) error {
	b, err := v.Sub(pos, 8)
	if err != nil {
		return ErrNoRoom
	}
	binary.LittleEndian.PutUint64(b, val)
	return nil
}

// WriteBytes copies src into the view starting at pos.
func (v View) WriteBytes(pos int, src []byte) error {
	b, err := v.Sub(pos, len(src))
	if err != nil {
		return ErrNoRoom
	}
	copy(b, src)
	return nil
}
