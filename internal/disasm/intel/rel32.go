// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package intel implements the x86/x64 rel32 opcode scanner shared by the
// PE/COFF and ELF disassemblers, since rel32 scanning is identical between
// the two formats.
package intel

import (
	"github.com/saferwall/zucchini/internal/address"
	"github.com/saferwall/zucchini/internal/buffer"
	"github.com/saferwall/zucchini/internal/image"
)

// Region is one executable range in both the file-offset and RVA domains.
type Region struct {
	OffsetBegin, OffsetEnd uint32
	RvaBegin, RvaEnd uint32
}

type candidate struct {
	dispPos uint32
	bodyEnd uint32
	crossOK bool
}

// match recognises one instruction form starting at pos within [pos, limit).
func match(v buffer.View, pos, limit uint32, is64 bool) (candidate, bool) {
	b0, err := v.ReadUint8(int(pos))
	if err != nil {
		return candidate{}, false
	}
	switch b0 {
	case 0xE8, 0xE9: // CALL rel32, JMP rel32
		if pos+5 > limit {
			return candidate{}, false
		}
		return candidate{dispPos: pos + 1, bodyEnd: pos + 5}, true
	case 0x0F:
		if pos+6 > limit {
			return candidate{}, false
		}
		b1, err := v.ReadUint8(int(pos + 1))
		if err != nil {
			return candidate{}, false
		}
		if b1&0xF0 == 0x80 { // Jcc rel32, long form; accepted without further filtering
			return candidate{dispPos: pos + 2, bodyEnd: pos + 6}, true
		}
		return candidate{}, false
	case 0xFF:
		if !is64 || pos+6 > limit {
			return candidate{}, false
		}
		b1, err := v.ReadUint8(int(pos + 1))
		if err != nil {
			return candidate{}, false
		}
		if b1 == 0x15 || b1 == 0x25 { // CALL/JMP [rip+disp32]
			return candidate{dispPos: pos + 2, bodyEnd: pos + 6, crossOK: true}, true
		}
		return candidate{}, false
	case 0x89, 0x8B, 0x8D:
		if !is64 || pos+6 > limit {
			return candidate{}, false
		}
		modrm, err := v.ReadUint8(int(pos + 1))
		if err != nil {
			return candidate{}, false
		}
		if modrm&0xC7 == 0x05 { // rip-relative ModRM
			return candidate{dispPos: pos + 2, bodyEnd: pos + 6, crossOK: true}, true
		}
		return candidate{}, false
	}
	return candidate{}, false
}

// Scan walks the gaps between abs32 bodies inside the given executable
// regions, recognising rel32 call/jump/rip-relative forms and resolving
// their targets through translator. abs32Locations must be sorted ascending.
func Scan(v buffer.View, translator *address.Translator, is64 bool, regions []Region, abs32Locations []uint32, abs32Width uint32) image.ReferenceReader {
	regionIdx := 0
	var pos, end uint32
	var curRegion Region
	started := false
	abs32i := 0

	nextRegion := func() bool {
		if regionIdx >= len(regions) {
			return false
		}
		curRegion = regions[regionIdx]
		regionIdx++
		pos = curRegion.OffsetBegin
		end = curRegion.OffsetEnd
		return true
	}

	inAbs32Body := func(p uint32) (uint32, bool) {
		for abs32i < len(abs32Locations) && abs32Locations[abs32i]+abs32Width <= p {
			abs32i++
		}
		if abs32i < len(abs32Locations) {
			loc := abs32Locations[abs32i]
			if p >= loc && p < loc+abs32Width {
				return loc + abs32Width, true
			}
		}
		return 0, false
	}

	offsetToRva := func(o uint32) (uint32, bool) {
		return translator.OffsetToRva(o, address.NewOffsetToRvaCache())
	}
	rvaToOffset := func(r uint32) (uint32, bool) {
		return translator.RvaToOffset(r, address.NewRvaToOffsetCache())
	}

	return func() (image.Reference, bool) {
		for {
			if !started {
				if !nextRegion() {
					return image.Reference{}, false
				}
				started = true
			}
			for pos < end {
				if skipTo, inBody := inAbs32Body(pos); inBody {
					pos = skipTo
					continue
				}
				cand, ok := match(v, pos, end, is64)
				if !ok {
					pos++
					continue
				}
				raw, err := v.ReadUint32(int(cand.dispPos))
				if err != nil {
					pos++
					continue
				}
				instrEndRva, ok := offsetToRva(cand.bodyEnd)
				if !ok {
					pos++
					continue
				}
				targetRva := instrEndRva + raw
				target, ok := rvaToOffset(targetRva)
				if !ok {
					pos = cand.bodyEnd
					continue
				}
				if !cand.crossOK && !curRegion.containsRva(targetRva) {
					pos = cand.bodyEnd
					continue
				}
				loc := cand.dispPos
				pos = cand.bodyEnd
				return image.Reference{Location: loc, Target: target}, true
			}
			started = false
		}
	}
}

func (r Region) containsRva(rva uint32) bool { return rva >= r.RvaBegin && rva < r.RvaEnd }
