// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pecoff

import (
	"github.com/saferwall/zucchini/internal/address"
	"github.com/saferwall/zucchini/internal/disasm"
	"github.com/saferwall/zucchini/internal/image"
)

func init() {
	disasm.Register(newWin32X86)
	disasm.Register(newWin32X64)
}

// disassembler adapts a parsed image to disasm.Disassembler for one
// architecture.
type disassembler struct {
	im *image
	exe disasm.ExeType
	is64 bool
}

func newWin32X86(data []byte) (disasm.Disassembler, error) {
	return newDisassembler(data, disasm.ExeTypeWin32X86, false)
}

func newWin32X64(data []byte) (disasm.Disassembler, error) {
	return newDisassembler(data, disasm.ExeTypeWin32X64, true)
}

func newDisassembler(data []byte, want disasm.ExeType, want64 bool) (disasm.Disassembler, error) {
	im, err := parse(data)
	if err != nil {
		return nil, disasm.ErrNotRecognised
	}
	if im.is64 != want64 {
		return nil, disasm.ErrNotRecognised
	}
	return &disassembler{im: im, exe: want, is64: want64}, nil
}

func (d *disassembler) ExeType() disasm.ExeType { return d.exe }
func (d *disassembler) Version() uint16 { return disasm.CurrentVersion }
func (d *disassembler) Size() int { return len(d.im.data) }

func (d *disassembler) NumEquivalenceIterations() int { return 2 }

// Groups implements disasm.Disassembler: reloc, abs32, and rel32, in the
// order the scan harvests them (reloc first, since abs32 is derived from
// it).
func (d *disassembler) Groups() []disasm.Group {
	relocType := uint8(relBasedHighLow)
	abs32Width := uint8(4)
	if d.is64 {
		relocType = relBasedDir64
		abs32Width = 8
	}

	relocSpec := d.im.relocGroupSpec(relocType)
	abs32Spec := d.im.abs32GroupSpec(relocType, abs32Width)

	groups := []disasm.Group{
		{
			GroupSpec: relocSpec,
			MakeWriter: func(buf []byte) disasm.Writer { return newRelocWriter(buf) },
		},
		{
			GroupSpec: abs32Spec,
			MakeWriter: func(buf []byte) disasm.Writer { return newAbs32Writer(buf, d.is64, d.im.imageBase) },
		},
		{
			GroupSpec: image.GroupSpec{
				Traits: image.TypeTraits{Width: 4, Type: typeRel32, Pool: poolAddress},
				MakeReader: func() image.ReferenceReader {
					locs, width := d.abs32LocationsForScan(relocType, abs32Width)
					return d.im.scanRel32(d.is64, locs, width)
				},
			},
			MakeWriter: func(buf []byte) disasm.Writer { return newRel32Writer(buf, d.im, d.is64) },
		},
	}
	return groups
}

// abs32LocationsForScan materializes the sorted abs32 body start offsets so
// scanRel32 can skip over them; it re-drains a fresh abs32 reader rather
// than sharing image.Index() state, since Groups may be called before the
// index exists.
func (d *disassembler) abs32LocationsForScan(relocType uint8, width uint8) ([]uint32, uint32) {
	reader := d.im.abs32GroupSpec(relocType, width).MakeReader()
	var locs []uint32
	for {
		ref, ok := reader()
		if !ok {
			break
		}
		locs = append(locs, ref.Location)
	}
	return locs, uint32(width)
}

// relocWriter overwrites a base relocation entry's 12-bit RVA field,
// leaving its 4-bit type untouched.
type relocWriter struct{ buf []byte }

func newRelocWriter(buf []byte) *relocWriter { return &relocWriter{buf: buf} }

func (w *relocWriter) Write(location uint32, target uint32) error {
	if int(location)+2 > len(w.buf) {
		return errSectionOutOfBounds
	}
	raw := uint16(w.buf[location]) | uint16(w.buf[location+1])<<8
	typ := raw & 0xF000
	raw = typ | uint16(target&0x0FFF)
	w.buf[location] = byte(raw)
	w.buf[location+1] = byte(raw >> 8)
	return nil
}

// abs32Writer overwrites a pointer-sized value with imageBase+target
// reinterpreted as an RVA-relative VA.
type abs32Writer struct {
	buf []byte
	is64 bool
	imageBase uint64
}

func newAbs32Writer(buf []byte, is64 bool, imageBase uint64) *abs32Writer {
	return &abs32Writer{buf: buf, is64: is64, imageBase: imageBase}
}

func (w *abs32Writer) Write(location uint32, targetRva uint32) error {
	va := w.imageBase + uint64(targetRva)
	width := 4
	if w.is64 {
		width = 8
	}
	if int(location)+width > len(w.buf) {
		return errSectionOutOfBounds
	}
	for i := 0; i < width; i++ {
		w.buf[location+uint32(i)] = byte(va >> (8 * uint(i)))
	}
	return nil
}

// rel32Writer overwrites a 4-byte displacement field so that, relative to
// the instruction's own new position, it again points at target.
type rel32Writer struct {
	buf []byte
	im *image
	is64 bool
}

func newRel32Writer(buf []byte, im *image, is64 bool) *rel32Writer {
	return &rel32Writer{buf: buf, im: im, is64: is64}
}

func (w *rel32Writer) Write(location uint32, target uint32) error {
	if int(location)+4 > len(w.buf) {
		return errSectionOutOfBounds
	}
	cache := address.NewOffsetToRvaCache()
	instrEndRva, ok := w.im.translator.OffsetToRva(location+4, cache)
	if !ok {
		return errSectionOutOfBounds
	}
	targetCache := address.NewOffsetToRvaCache()
	targetRva, ok := w.im.translator.OffsetToRva(target, targetCache)
	if !ok {
		return errSectionOutOfBounds
	}
	disp := targetRva - instrEndRva
	w.buf[location] = byte(disp)
	w.buf[location+1] = byte(disp >> 8)
	w.buf[location+2] = byte(disp >> 16)
	w.buf[location+3] = byte(disp >> 24)
	return nil
}
