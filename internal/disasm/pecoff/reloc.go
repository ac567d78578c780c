// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pecoff

import (
	"github.com/saferwall/zucchini/internal/address"
	"github.com/saferwall/zucchini/internal/image"
)

// relocEntry is one 16-bit unit of a base relocation block: a 4-bit type
// and a 12-bit RVA offset from the block's rva_hi.
type relocEntry struct {
	pos uint32 // file offset of this 2-byte entry
	typ uint8
	rva uint32 // full target RVA (rva_hi + rva_lo)
}

// relocEntries walks the base relocation data directory and returns every
// entry in file order. It does not filter by type; callers select the
// architecture-appropriate type.
func (im *image) relocEntries() ([]relocEntry, error) {
	dir := im.opt.DataDirectory[dirBaseReloc]
	if dir.Size == 0 {
		return nil, nil
	}
	base, ok := im.rvaToOffset(dir.VirtualAddress)
	if !ok {
		return nil, errBadRelocBlock
	}
	end := uint64(base) + uint64(dir.Size)
	if end > uint64(len(im.data)) {
		return nil, errBadRelocBlock
	}

	var entries []relocEntry
	pos := base
	limit := uint32(end)
	for pos+8 <= limit {
		rvaHi, err := im.view.ReadUint32(int(pos))
		if err != nil {
			return nil, errBadRelocBlock
		}
		size, err := im.view.ReadUint32(int(pos + 4))
		if err != nil {
			return nil, errBadRelocBlock
		}
		if size < 8 || size%4 != 0 || pos+size > limit {
			return nil, errBadRelocBlock
		}
		count := (size - 8) / 2
		for i := uint32(0); i < count; i++ {
			entryPos := pos + 8 + i*2
			raw, err := im.view.ReadUint16(int(entryPos))
			if err != nil {
				return nil, errBadRelocBlock
			}
			typ := uint8(raw >> 12)
			rvaLo := uint32(raw & 0x0FFF)
			if typ == relBasedAbsolute {
				continue // padding entry, not a reference
			}
			entries = append(entries, relocEntry{pos: entryPos, typ: typ, rva: rvaHi + rvaLo})
		}
		pos += size
	}
	return entries, nil
}

// relocGroupSpec builds the GroupSpec for the architecture's reloc type:
// location is the 2-byte entry's file position, target is the file offset
// the entry relocates (the target RVA is rva_hi + rva_lo).
func (im *image) relocGroupSpec(wantType uint8) image.GroupSpec {
	return image.GroupSpec{
		Traits: image.TypeTraits{Width: 2, Type: typeReloc, Pool: poolRelocTarget},
		MakeReader: func() image.ReferenceReader {
			entries, err := im.relocEntries()
			if err != nil {
				entries = nil
			}
			i := 0
			return func() (image.Reference, bool) {
				for i < len(entries) {
					e := entries[i]
					i++
					if e.typ != wantType {
						continue
					}
					target, ok := im.rvaToOffset(e.rva)
					if !ok {
						continue // reloc target escapes the image: skip
					}
					return image.Reference{Location: e.pos, Target: target}, true
				}
				return image.Reference{}, false
			}
		},
	}
}

// abs32GroupSpec harvests abs32 pointer locations from the reloc reader's
// output: each reloc target is where a pointer-sized value lives; that
// value, interpreted as a VA and translated to an offset, is the abs32
// reference's real target.
func (im *image) abs32GroupSpec(wantType uint8, width uint8) image.GroupSpec {
	return image.GroupSpec{
		Traits: image.TypeTraits{Width: width, Type: typeAbs32, Pool: poolAddress},
		MakeReader: func() image.ReferenceReader {
			entries, err := im.relocEntries()
			if err != nil {
				entries = nil
			}
			i := 0
			var lastEnd uint32
			return func() (image.Reference, bool) {
				for i < len(entries) {
					e := entries[i]
					i++
					if e.typ != wantType {
						continue
					}
					loc, ok := im.rvaToOffset(e.rva)
					if !ok {
						continue
					}
					if loc < lastEnd {
						continue // pruned: overlaps the previous abs32 body
					}
					var va uint64
					var verr error
					if width == 8 {
						va, verr = im.view.ReadUint64(int(loc))
					} else {
						var v32 uint32
						v32, verr = im.view.ReadUint32(int(loc))
						va = uint64(v32)
					}
					if verr != nil {
						continue
					}
					if va < im.imageBase {
						continue
					}
					rva := uint32(va - im.imageBase)
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
	cache := address.NewRvaToOffsetCache()
	return im.translator.RvaToOffset(rva, cache)
}
