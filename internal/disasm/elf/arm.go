// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package elf

import (
	"github.com/saferwall/zucchini/internal/address"
	"github.com/saferwall/zucchini/internal/disasm"
	"github.com/saferwall/zucchini/internal/disasm/armcode"
	"github.com/saferwall/zucchini/internal/image"
)

func init() {
	disasm.Register(newElfAArch32)
	disasm.Register(newElfAArch64)
}

type armDisassembler struct {
	im *image
	exe disasm.ExeType
	is64 bool
	relType uint32
	width uint8
}

func newElfAArch32(data []byte) (disasm.Disassembler, error) {
	im, err := parse(data, emArm)
	if err != nil {
		return nil, disasm.ErrNotRecognised
	}
	return &armDisassembler{im: im, exe: disasm.ExeTypeElfAArch32, is64: false, relType: rArmRelative, width: 4}, nil
}

func newElfAArch64(data []byte) (disasm.Disassembler, error) {
	im, err := parse(data, emAArch64)
	if err != nil {
		return nil, disasm.ErrNotRecognised
	}
	return &armDisassembler{im: im, exe: disasm.ExeTypeElfAArch64, is64: true, relType: rAArch64Relative, width: 8}, nil
}

func (d *armDisassembler) ExeType() disasm.ExeType { return d.exe }
func (d *armDisassembler) Version() uint16 { return disasm.CurrentVersion }
func (d *armDisassembler) Size() int { return len(d.im.data) }

// NumEquivalenceIterations: ARM's richer reference graph (five AArch32 or
// three AArch64 rel32 encodings feeding the same address pool) warrants an
// extra co-refinement pass over Intel's two.
func (d *armDisassembler) NumEquivalenceIterations() int { return 3 }

func (d *armDisassembler) Groups() []disasm.Group {
	relocSpec := d.im.relocGroupSpec(d.relType, d.width)
	abs32Spec := d.im.abs32GroupSpec(d.relType, d.width)

	rel32Group := disasm.Group{
		GroupSpec: image.GroupSpec{
			Traits: image.TypeTraits{Width: 4, Type: typeRel32, Pool: poolAddress},
			MakeReader: func() image.ReferenceReader {
				regions := d.armRegions()
				if d.is64 {
					return armcode.ScanAArch64(d.im.view, d.im.translator, regions)
				}
				return armcode.ScanAArch32(d.im.view, d.im.translator, regions)
			},
		},
		MakeWriter: func(buf []byte) disasm.Writer { return newArmRel32Writer(buf, d.im, d.is64) },
	}
	if !d.is64 {
		rel32Group.MakeMixer = func(oldImage, newImage []byte) disasm.Mixer { return armcode.NewAArch32Mixer() }
	} else {
		rel32Group.MakeMixer = func(oldImage, newImage []byte) disasm.Mixer { return armcode.NewAArch64Mixer() }
	}

	return []disasm.Group{
		{GroupSpec: relocSpec, MakeWriter: func(buf []byte) disasm.Writer { return newRelocWriter(buf, d.width) }},
		{GroupSpec: abs32Spec, MakeWriter: func(buf []byte) disasm.Writer { return newAbs32Writer(buf, d.width) }},
		rel32Group,
	}
}

func (d *armDisassembler) armRegions() []armcode.Region {
	var regions []armcode.Region
	for _, s := range d.im.sections {
		if !s.isExec() {
			continue
		}
		code, err := d.im.view.Sub(int(s.offset), int(s.size))
		thumb := false
		if err == nil && !d.is64 {
			thumb = !armcode.IsARM(code)
		}
		regions = append(regions, armcode.Region{
				OffsetBegin: uint32(s.offset),
				OffsetEnd: uint32(s.offset + s.size),
				RvaBegin: uint32(s.addr),
				RvaEnd: uint32(s.addr + s.size),
				Thumb: thumb,
		})
	}
	return regions
}

type armRel32Writer struct {
	buf []byte
	im *image
	is64 bool
}

func newArmRel32Writer(buf []byte, im *image, is64 bool) *armRel32Writer {
	return &armRel32Writer{buf: buf, im: im, is64: is64}
}

// Write re-derives which encoding matched this location by attempting each
// candidate in turn, since the Writer interface is only handed a location,
// not the encoding the reader chose.
func (w *armRel32Writer) Write(location uint32, target uint32) error {
	instrRva, ok := w.im.translator.OffsetToRva(location, address.NewOffsetToRvaCache())
	if !ok {
		return errSectionOOB
	}
	targetRva, ok := w.im.translator.OffsetToRva(target, address.NewOffsetToRvaCache())
	if !ok {
		return errSectionOOB
	}
	encs := armcode.AArch32Encodings
	if w.is64 {
		encs = armcode.AArch64Encodings
	}
	for _, e := range encs {
		width := e.InstrWidth()
		if int(location)+width > len(w.buf) {
			continue
		}
		code := w.buf[location: location+uint32(width)]
		if _, _, ok := e.Decode(code); !ok {
			continue // code's current bits don't match this encoding's pattern
		}
		if armcode.Write(e, instrRva, targetRva, code) {
			return nil
		}
	}
	return errSectionOOB
}
