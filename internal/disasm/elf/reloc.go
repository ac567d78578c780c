// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package elf

import "github.com/saferwall/zucchini/internal/image"

// relocRawEntry is one parsed SHT_REL/SHT_RELA entry of the architecture's
// relative-relocation type: its own file position and the RVA it names.
type relocRawEntry struct {
	pos uint32
	rva uint32
}

// relocEntries walks every SHT_REL/SHT_RELA section whose sh_entsize
// matches the class's Elf_Rel/Elf_Rela size, keeping only entries of
// wantType.
func (im *image) relocEntries(wantType uint32) ([]relocRawEntry, error) {
	relSize, relaSize := uint64(relEntry32Size), uint64(relaEntry32Size)
	offField := 0
	infoField := 4
	entryStride := relEntry32Size
	entryStrideRela := relaEntry32Size
	if im.is64 {
		relSize, relaSize = relEntry64Size, relaEntry64Size
		infoField = 8
		entryStride = relEntry64Size
		entryStrideRela = relaEntry64Size
	}

	var entries []relocRawEntry
	for _, s := range im.sections {
		var stride int
		switch {
		case s.typ == shtRel && s.entsize == relSize:
			stride = entryStride
		case s.typ == shtRela && s.entsize == relaSize:
			stride = entryStrideRela
		default:
			continue
		}
		if s.offset+s.size > uint64(len(im.data)) {
			continue
		}
		count := s.size / uint64(stride)
		for i := uint64(0); i < count; i++ {
			pos := s.offset + i*uint64(stride)
			var rOffset uint64
			var rInfo uint64
			var err error
			if im.is64 {
				rOffset, err = im.view.ReadUint64(int(pos))
				if err == nil {
					rInfo, err = im.view.ReadUint64(int(pos) + infoField)
				}
			} else {
				var off32, info32 uint32
				off32, err = im.view.ReadUint32(int(pos) + offField)
				if err == nil {
					info32, err = im.view.ReadUint32(int(pos) + infoField)
				}
				rOffset, rInfo = uint64(off32), uint64(info32)
			}
			if err != nil {
				continue
			}
			typ := elfRelocType(rInfo, im.is64)
			if uint32(typ) != wantType {
				continue
			}
			if rOffset > uint64(^uint32(0)) {
				continue
			}
			entries = append(entries, relocRawEntry{pos: uint32(pos), rva: uint32(rOffset)})
		}
	}
	return entries, nil
}

// elfRelocType extracts the relocation type from r_info: low byte on 32-bit,
// low 32 bits on 64-bit (the standard ELF32_R_TYPE/ELF64_R_TYPE macros).
func elfRelocType(info uint64, is64 bool) uint64 {
	if is64 {
		return info & 0xFFFFFFFF
	}
	return info & 0xFF
}

// relocGroupSpec mirrors pecoff's: location is the relocation entry's own
// file position, target is the translated RVA it names.
func (im *image) relocGroupSpec(wantType uint32, width uint8) image.GroupSpec {
	return image.GroupSpec{
		Traits: image.TypeTraits{Width: width, Type: typeReloc, Pool: poolRelocTarget},
		MakeReader: func() image.ReferenceReader {
			entries, _ := im.relocEntries(wantType)
			i := 0
			return func() (image.Reference, bool) {
				for i < len(entries) {
					e := entries[i]
					i++
					target, ok := im.rvaToOffset(e.rva)
					if !ok {
						continue
					}
					return image.Reference{Location: e.pos, Target: target}, true
				}
				return image.Reference{}, false
			}
		},
	}
}

// abs32GroupSpec harvests the pointer cell named by each reloc entry's
// target, reading the stored word as an already-relative (load-bias-free)
// RVA — ELF carries no separate image-base field at this layer, unlike PE.
func (im *image) abs32GroupSpec(wantType uint32, width uint8) image.GroupSpec {
	return image.GroupSpec{
		Traits: image.TypeTraits{Width: width, Type: typeAbs32, Pool: poolAddress},
		MakeReader: func() image.ReferenceReader {
			entries, _ := im.relocEntries(wantType)
			i := 0
			var lastEnd uint32
			return func() (image.Reference, bool) {
				for i < len(entries) {
					e := entries[i]
					i++
					loc, ok := im.rvaToOffset(e.rva)
					if !ok {
						continue
					}
					if loc < lastEnd {
						continue
					}
					var rva uint32
					var err error
					if width == 8 {
						var v64 uint64
						v64, err = im.view.ReadUint64(int(loc))
						rva = uint32(v64)
					} else {
						rva, err = im.view.ReadUint32(int(loc))
					}
					if err != nil {
						continue
					}
					target, ok := im.rvaToOffset(rva)
					if !ok {
						continue
					}
					lastEnd = loc + uint32(width)
					return image.Reference{Location: loc, Target: target}, true
				}
				return image.Reference{}, false
			}
		},
	}
}

func (im *image) rvaToOffset(rva uint32) (uint32, bool) {
	return im.translator.RvaToOffset(rva, newRvaCache())
}
