// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package patch implements the wire format and apply pipeline: a
// varint-encoded, per-element container describing how to reconstruct a
// new image from an old one, plus the decoder and applier that reverse the
// process.
package patch

import (
	"encoding/binary"
	"errors"

	"github.com/saferwall/zucchini/internal/buffer"
	"github.com/saferwall/zucchini/internal/disasm"
)

// CurrentMajorVersion is the patch format's major version; decode rejects
// any patch whose major version differs.
const CurrentMajorVersion uint16 = 2

var magicBytes = [4]byte{'Z', 'u', 'c', 'c'}

// MagicValue is the little-endian u32 reading of "Zucc".
var MagicValue = binary.LittleEndian.Uint32(magicBytes[:])

// Errors returned by header validation.
var (
	ErrBadMagic = errors.New("patch: bad magic")
	ErrBadMajorVersion = errors.New("patch: unsupported major version")
	ErrBadExeType = errors.New("patch: unrecognised element exe_type")
	ErrVersionMismatch = errors.New("patch: disassembler version mismatch")
	ErrElementOOB = errors.New("patch: element range outside declared image size")
	ErrBadEquivalences = errors.New("patch: malformed equivalence stream")
)

// Header is the 24-byte patch header.
type Header struct {
	MajorVersion uint16
	MinorVersion uint16
	OldSize uint32
	OldCRC32 uint32
	NewSize uint32
	NewCRC32 uint32
}

// Encode appends Header's packed 24-byte representation to sink.
func (h Header) Encode(sink *buffer.Sink) {
	sink.PutUint32(MagicValue)
	sink.PutUint32(uint32(h.MajorVersion) | uint32(h.MinorVersion)<<16)
	sink.PutUint32(h.OldSize)
	sink.PutUint32(h.OldCRC32)
	sink.PutUint32(h.NewSize)
	sink.PutUint32(h.NewCRC32)
}

// DecodeHeader reads and validates a PatchHeader from the front of src.
func DecodeHeader(src *buffer.Source) (Header, error) {
	magic, err := src.GetUint32()
	if err != nil {
		return Header{}, err
	}
	if magic != MagicValue {
		return Header{}, ErrBadMagic
	}
	versions, err := src.GetUint32()
	if err != nil {
		return Header{}, err
	}
	h := Header{MajorVersion: uint16(versions), MinorVersion: uint16(versions >> 16)}
	if h.MajorVersion != CurrentMajorVersion {
		return Header{}, ErrBadMajorVersion
	}
	if h.OldSize, err = src.GetUint32(); err != nil {
		return Header{}, err
	}
	if h.OldCRC32, err = src.GetUint32(); err != nil {
		return Header{}, err
	}
	if h.NewSize, err = src.GetUint32(); err != nil {
		return Header{}, err
	}
	if h.NewCRC32, err = src.GetUint32(); err != nil {
		return Header{}, err
	}
	return h, nil
}

// ElementHeader is the 22-byte per-element patch header.
type ElementHeader struct {
	OldOffset uint32
	OldLength uint32
	NewOffset uint32
	NewLength uint32
	ExeType disasm.ExeType
	DisassemblerVersion uint16
}

// Encode appends ElementHeader's packed 22-byte representation to sink.
func (h ElementHeader) Encode(sink *buffer.Sink) {
	sink.PutUint32(h.OldOffset)
	sink.PutUint32(h.OldLength)
	sink.PutUint32(h.NewOffset)
	sink.PutUint32(h.NewLength)
	sink.PutUint32(uint32(h.ExeType))
	sink.PutUint16(h.DisassemblerVersion)
}

// DecodeElementHeader reads one PatchElementHeader and validates that its
// declared ranges fit within the patch header's old/new sizes.
func DecodeElementHeader(src *buffer.Source, h Header) (ElementHeader, error) {
	var eh ElementHeader
	var err error
	if eh.OldOffset, err = src.GetUint32(); err != nil {
		return eh, err
	}
	if eh.OldLength, err = src.GetUint32(); err != nil {
		return eh, err
	}
	if eh.NewOffset, err = src.GetUint32(); err != nil {
		return eh, err
	}
	if eh.NewLength, err = src.GetUint32(); err != nil {
		return eh, err
	}
	var exeType uint32
	if exeType, err = src.GetUint32(); err != nil {
		return eh, err
	}
	eh.ExeType = disasm.ExeType(exeType)
	switch eh.ExeType {
	case disasm.ExeTypeNoOp, disasm.ExeTypeWin32X86, disasm.ExeTypeWin32X64,
		disasm.ExeTypeElfX86, disasm.ExeTypeElfX64, disasm.ExeTypeElfAArch32,
		disasm.ExeTypeElfAArch64, disasm.ExeTypeDex, disasm.ExeTypeZtf:
	default:
		return eh, ErrBadExeType
	}
	var version uint16
	if version, err = src.GetUint16(); err != nil {
		return eh, err
	}
	eh.DisassemblerVersion = version

	if uint64(eh.OldOffset)+uint64(eh.OldLength) > uint64(h.OldSize) {
		return eh, ErrElementOOB
	}
	if uint64(eh.NewOffset)+uint64(eh.NewLength) > uint64(h.NewSize) {
		return eh, ErrElementOOB
	}
	return eh, nil
}
