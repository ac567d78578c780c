// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package elf

import (
	"github.com/saferwall/zucchini/internal/address"
	"github.com/saferwall/zucchini/internal/disasm"
	"github.com/saferwall/zucchini/internal/disasm/intel"
	"github.com/saferwall/zucchini/internal/image"
)

func init() {
	disasm.Register(newElfX86)
	disasm.Register(newElfX64)
}

type disassembler struct {
	im *image
	exe disasm.ExeType
	is64 bool
}

func newElfX86(data []byte) (disasm.Disassembler, error) {
	im, err := parse(data, emX86)
	if err != nil {
		return nil, disasm.ErrNotRecognised
	}
	return &disassembler{im: im, exe: disasm.ExeTypeElfX86, is64: false}, nil
}

func newElfX64(data []byte) (disasm.Disassembler, error) {
	im, err := parse(data, emX8664)
	if err != nil {
		return nil, disasm.ErrNotRecognised
	}
	return &disassembler{im: im, exe: disasm.ExeTypeElfX64, is64: true}, nil
}

func (d *disassembler) ExeType() disasm.ExeType { return d.exe }
func (d *disassembler) Version() uint16 { return disasm.CurrentVersion }
func (d *disassembler) Size() int { return len(d.im.data) }
func (d *disassembler) NumEquivalenceIterations() int { return 2 }

func (d *disassembler) Groups() []disasm.Group {
	relType := uint32(r386Relative)
	width := uint8(4)
	if d.is64 {
		relType = rX8664Relative
		width = 8
	}

	relocSpec := d.im.relocGroupSpec(relType, width)
	abs32Spec := d.im.abs32GroupSpec(relType, width)

	return []disasm.Group{
		{
			GroupSpec: relocSpec,
			MakeWriter: func(buf []byte) disasm.Writer { return newRelocWriter(buf, width) },
		},
		{
			GroupSpec: abs32Spec,
			MakeWriter: func(buf []byte) disasm.Writer { return newAbs32Writer(buf, width) },
		},
		{
			GroupSpec: image.GroupSpec{
				Traits: image.TypeTraits{Width: 4, Type: typeRel32, Pool: poolAddress},
				MakeReader: func() image.ReferenceReader {
					locs := d.abs32Locations(relType, width)
					return intel.Scan(d.im.view, d.im.translator, d.is64, d.execRegions(), locs, uint32(width))
				},
			},
			MakeWriter: func(buf []byte) disasm.Writer { return newRel32Writer(buf, d.im) },
		},
	}
}

func (d *disassembler) execRegions() []intel.Region {
	var regions []intel.Region
	for _, s := range d.im.sections {
		if !s.isExec() {
			continue
		}
		regions = append(regions, intel.Region{
				OffsetBegin: uint32(s.offset),
				OffsetEnd: uint32(s.offset + s.size),
				RvaBegin: uint32(s.addr),
				RvaEnd: uint32(s.addr + s.size),
		})
	}
	return regions
}

func (d *disassembler) abs32Locations(relType uint32, width uint8) []uint32 {
	reader := d.im.abs32GroupSpec(relType, width).MakeReader()
	var locs []uint32
	for {
		ref, ok := reader()
		if !ok {
			break
		}
		locs = append(locs, ref.Location)
	}
	return locs
}

func newRvaCache() *address.RvaToOffsetCache { return address.NewRvaToOffsetCache() }

type relocWriter struct {
	buf []byte
	width uint8
}

func newRelocWriter(buf []byte, width uint8) *relocWriter { return &relocWriter{buf: buf, width: width} }

// Write overwrites r_offset; the relocation type nibble/byte ELF packs
// alongside it in r_info is untouched.
func (w *relocWriter) Write(location uint32, target uint32) error {
	if int(location)+int(w.width) > len(w.buf) {
		return errSectionOOB
	}
	for i := 0; i < int(w.width); i++ {
		w.buf[location+uint32(i)] = byte(target >> (8 * uint(i)))
	}
	return nil
}

type abs32Writer struct {
	buf []byte
	width uint8
}

func newAbs32Writer(buf []byte, width uint8) *abs32Writer { return &abs32Writer{buf: buf, width: width} }

func (w *abs32Writer) Write(location uint32, targetRva uint32) error {
	if int(location)+int(w.width) > len(w.buf) {
		return errSectionOOB
	}
	for i := 0; i < int(w.width); i++ {
		w.buf[location+uint32(i)] = byte(targetRva >> (8 * uint(i)))
	}
	return nil
}

type rel32Writer struct {
	buf []byte
	im *image
}

func newRel32Writer(buf []byte, im *image) *rel32Writer { return &rel32Writer{buf: buf, im: im} }

func (w *rel32Writer) Write(location uint32, target uint32) error {
	if int(location)+4 > len(w.buf) {
		return errSectionOOB
	}
	instrEndRva, ok := w.im.translator.OffsetToRva(location+4, address.NewOffsetToRvaCache())
	if !ok {
		return errSectionOOB
	}
	targetRva, ok := w.im.translator.OffsetToRva(target, address.NewOffsetToRvaCache())
	if !ok {
		return errSectionOOB
	}
	disp := targetRva - instrEndRva
	w.buf[location] = byte(disp)
	w.buf[location+1] = byte(disp >> 8)
	w.buf[location+2] = byte(disp >> 16)
	w.buf[location+3] = byte(disp >> 24)
	return nil
}
