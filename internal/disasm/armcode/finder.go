// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package armcode

import (
	"sort"

	"github.com/saferwall/zucchini/internal/address"
	"github.com/saferwall/zucchini/internal/buffer"
	"github.com/saferwall/zucchini/internal/image"
)

// Region is one executable range to scan, already classified ARM vs
// Thumb-2 (AArch32 only; ignored for AArch64).
type Region struct {
	OffsetBegin, OffsetEnd uint32
	RvaBegin, RvaEnd uint32
	Thumb bool
}

// sortedByRva must hold Regions in ascending RvaBegin order; callers build
// it once and reuse it as the binary-search table for target containment.
type sortedByRva []Region

func (s sortedByRva) contains(rva uint32) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i].RvaBegin > rva })
	if i == 0 {
		return false
	}
	r := s[i-1]
	return rva >= r.RvaBegin && rva < r.RvaEnd
}

func isThumbHalfword32(hw uint16) bool {
	top5 := hw >> 11
	return top5 == 0x1D || top5 == 0x1E || top5 == 0x1F // 11101, 11110, 11111
}

// ScanAArch32 walks each region per: 4-byte-aligned
// instructions for ARM regions, 2-byte-aligned half-words for Thumb-2
// regions (with the first half-word's top bits deciding 16- vs 32-bit
// instruction length). Candidates are accepted only when Read succeeds and
// the resulting target RVA lies inside some executable region.
func ScanAArch32(view buffer.View, translator *address.Translator, regions []Region) image.ReferenceReader {
	table := append(sortedByRva(nil), regions...)
	sort.Slice(table, func(i, j int) bool { return table[i].RvaBegin < table[j].RvaBegin })

	regionIdx := 0
	var pos, end uint32
	var thumb bool
	started := false

	nextRegion := func() bool {
		if regionIdx >= len(regions) {
			return false
		}
		r := regions[regionIdx]
		regionIdx++
		pos, end = r.OffsetBegin, r.OffsetEnd
		thumb = r.Thumb
		return true
	}

	offsetToRva := func(o uint32) (uint32, bool) {
		return translator.OffsetToRva(o, address.NewOffsetToRvaCache())
	}
	rvaToOffset := func(r uint32) (uint32, bool) {
		return translator.RvaToOffset(r, address.NewRvaToOffsetCache())
	}

	tryEncodings := func(encs []Encoding, code []byte, instrRva uint32) (Encoding, uint32, bool) {
		for _, e := range encs {
			if len(code) < e.InstrWidth() {
				continue
			}
			targetRva, ok := Read(e, instrRva, code[:e.InstrWidth()])
			if !ok {
				continue
			}
			if table.contains(targetRva) {
				return e, targetRva, true
			}
		}
		return nil, 0, false
	}

	return func() (image.Reference, bool) {
		for {
			if !started {
				if !nextRegion() {
					return image.Reference{}, false
				}
				started = true
			}
			step := uint32(4)
			if thumb {
				step = 2
			}
			for pos+step <= end {
				code, err := view.Sub(int(pos), int(end-pos))
				if err != nil {
					pos += step
					continue
				}
				curRva, ok := offsetToRva(pos)
				if !ok {
					pos += step
					continue
				}

				var encs []Encoding
				width := uint32(4)
				if !thumb {
					encs = []Encoding{a24{}}
				} else {
					hw := uint16(0)
					if len(code) >= 2 {
						hw = uint16(code[0]) | uint16(code[1])<<8
					}
					if isThumbHalfword32(hw) {
						encs = []Encoding{t24{}, t20{}}
						width = 4
					} else {
						encs = []Encoding{t11{}, t8{}}
						width = 2
					}
				}

				if int(width) > len(code) {
					pos += step
					continue
				}
				_, targetRva, ok := tryEncodings(encs, code[:width], curRva)
				if !ok {
					pos += step
					continue
				}
				target, ok := rvaToOffset(targetRva)
				if !ok {
					pos += step
					continue
				}
				loc := pos
				pos += width
				return image.Reference{Location: loc, Target: target}, true
			}
			started = false
		}
	}
}

// ScanAArch64 walks 4-byte-aligned instructions, trying each AArch64
// encoding in turn.
func ScanAArch64(view buffer.View, translator *address.Translator, regions []Region) image.ReferenceReader {
	table := append(sortedByRva(nil), regions...)
	sort.Slice(table, func(i, j int) bool { return table[i].RvaBegin < table[j].RvaBegin })

	regionIdx := 0
	var pos, end uint32
	started := false

	nextRegion := func() bool {
		if regionIdx >= len(regions) {
			return false
		}
		r := regions[regionIdx]
		regionIdx++
		pos, end = r.OffsetBegin, r.OffsetEnd
		return true
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
			for pos+4 <= end {
				code, err := view.Sub(int(pos), 4)
				if err != nil {
					pos += 4
					continue
				}
				curRva, ok := offsetToRva(pos)
				if !ok {
					pos += 4
					continue
				}
				var targetRva uint32
				matched := false
				for _, e := range AArch64Encodings {
					t, ok := Read(e, curRva, code)
					if ok && table.contains(t) {
						targetRva, matched = t, true
						break
					}
				}
				if !matched {
					pos += 4
					continue
				}
				target, ok := rvaToOffset(targetRva)
				if !ok {
					pos += 4
					continue
				}
				loc := pos
				pos += 4
				return image.Reference{Location: loc, Target: target}, true
			}
			started = false
		}
	}
}
