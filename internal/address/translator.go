// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package address implements the bidirectional offset<->RVA map: a
// translator built once from a list of Units that copes with overlapping
// units, dangling RVAs (RVAs with no file backing, e.g. .bss), and
// synthesizes "fake offsets" to represent them in the offset domain.
package address

import (
	"errors"
	"sort"
)

// Bounds and sentinels.
const (
	OffsetBound uint32 = 0x7FFFFFFF
	RvaBound uint32 = 0x7FFFFFFF
	InvalidOffset uint32 = 0xFFFFFFFE
	InvalidRva uint32 = 0xFFFFFFFE
)

// Construction errors.
var (
	ErrOverflow = errors.New("address: unit arithmetic overflow")
	ErrBadOverlap = errors.New("address: overlapping units with mismatched offset-rva delta")
	ErrBadOverlapDanglingRva = errors.New("address: overlapping units with inconsistent dangling rva")
	ErrOffsetsNotDisjoint = errors.New("address: unit offset ranges are not disjoint")
	ErrFakeOffsetBeginTooLarge = errors.New("address: fake_offset_begin + max_rva_end exceeds bound")
)

// Unit is one contiguous region mapping file offsets to RVAs. RvaSize may
// exceed OffsetSize; the excess is dangling RVA (e.g..bss).
type Unit struct {
	OffsetBegin uint32
	OffsetSize uint32
	RvaBegin uint32
	RvaSize uint32
}

func (u Unit) offsetEnd() uint32 { return u.OffsetBegin + u.OffsetSize }
func (u Unit) rvaEnd() uint32 { return u.RvaBegin + u.RvaSize }
func (u Unit) delta() int64 { return int64(u.OffsetBegin) - int64(u.RvaBegin) }

// Translator is an immutable offset<->RVA map built from a Unit list.
type Translator struct {
	byOffset []Unit
	byRva []Unit
	fakeOffsetBeg uint32
}

// OffsetToRvaCache and RvaToOffsetCache hold a last-hit unit index to speed
// up clustered lookups. They are construction-tied to their Translator: a
// cache outliving its Translator is a use-after-free in the original C++
// and is expressed here simply as an index that is only ever used to index
// back into the same Translator's slices.
type OffsetToRvaCache struct{ lastHit int }
type RvaToOffsetCache struct{ lastHit int }

// NewOffsetToRvaCache returns a fresh, unprimed cache.
func NewOffsetToRvaCache() *OffsetToRvaCache { return &OffsetToRvaCache{} }

// NewRvaToOffsetCache returns a fresh, unprimed cache.
func NewRvaToOffsetCache() *RvaToOffsetCache { return &RvaToOffsetCache{} }

// New builds a Translator from units, performing the validation and merge
// passes described below.
func New(units []Unit) (*Translator, error) {
	work := make([]Unit, 0, len(units))
	for _, u := range units {
		// Step 1: reject overflow or out-of-bound units.
		if u.OffsetBegin > OffsetBound-u.OffsetSize && u.OffsetSize != 0 {
			return nil, ErrOverflow
		}
		if uint64(u.OffsetBegin)+uint64(u.OffsetSize) > uint64(OffsetBound) {
			return nil, ErrOverflow
		}
		if uint64(u.RvaBegin)+uint64(u.RvaSize) > uint64(RvaBound) {
			return nil, ErrOverflow
		}
		// Step 2: clamp offset size to rva size; excess is dangling rva.
		if u.OffsetSize > u.RvaSize {
			u.OffsetSize = u.RvaSize
		}
		// Step 3: drop empty units.
		if u.RvaSize == 0 {
			continue
		}
		work = append(work, u)
	}

	// Step 4: sort by (rva_begin, rva_size) ascending, dedup.
	sort.Slice(work, func(i, j int) bool {
			if work[i].RvaBegin != work[j].RvaBegin {
				return work[i].RvaBegin < work[j].RvaBegin
			}
			return work[i].RvaSize < work[j].RvaSize
	})
	work = dedupUnits(work)

	// Step 5: merge pass over the rva-sorted list.
	merged, err := mergeByRva(work)
	if err != nil {
		return nil, err
	}

	// Step 6: sort by offset, verify disjoint.
	byOffset := append([]Unit(nil), merged...)
	sort.Slice(byOffset, func(i, j int) bool { return byOffset[i].OffsetBegin < byOffset[j].OffsetBegin })
	for i := 1; i < len(byOffset); i++ {
		if byOffset[i].OffsetBegin < byOffset[i-1].offsetEnd() {
			return nil, ErrOffsetsNotDisjoint
		}
	}

	// Step 7: fake_offset_begin.
	var maxOffsetEnd, maxRvaEnd uint32
	for _, u := range byOffset {
		if e := u.offsetEnd(); e > maxOffsetEnd {
			maxOffsetEnd = e
		}
		if e := u.rvaEnd(); e > maxRvaEnd {
			maxRvaEnd = e
		}
	}
	fakeBegin := maxOffsetEnd
	if uint64(fakeBegin)+uint64(maxRvaEnd) > uint64(OffsetBound) {
		return nil, ErrFakeOffsetBeginTooLarge
	}

	byRva := append([]Unit(nil), byOffset...)
	sort.Slice(byRva, func(i, j int) bool { return byRva[i].RvaBegin < byRva[j].RvaBegin })

	return &Translator{byOffset: byOffset, byRva: byRva, fakeOffsetBeg: fakeBegin}, nil
}

func dedupUnits(units []Unit) []Unit {
	out := units[:0:0]
	for i, u := range units {
		if i == 0 || u != units[i-1] {
			out = append(out, u)
		}
	}
	return out
}

// mergeByRva implements the RVA-sorted merge pass: touching/overlapping
// units are merged when their offset-rva delta agrees; merely-touching units
// with differing deltas are kept side by side; overlapping units with
// differing deltas are a hard error.
func mergeByRva(units []Unit) ([]Unit, error) {
	if len(units) == 0 {
		return nil, nil
	}
	out := make([]Unit, 0, len(units))
	cur := units[0]
	for i := 1; i < len(units); i++ {
		next := units[i]
		curEnd := cur.rvaEnd()
		if next.RvaBegin > curEnd {
			// Disjoint: no merge required.
			out = append(out, cur)
			cur = next
			continue
		}
		touching := next.RvaBegin == curEnd
		if cur.delta() != next.delta() {
			if touching {
				// Merely touching, differing delta: kept side by side, not an error.
				out = append(out, cur)
				cur = next
				continue
			}
			return nil, ErrBadOverlap
		}
		// Dangling-rva consistency: whichever unit has the larger rva end
		// must also have an offset end at least as large as the other's.
		nextEnd := next.rvaEnd()
		if nextEnd > curEnd {
			if next.offsetEnd() < cur.offsetEnd() {
				return nil, ErrBadOverlapDanglingRva
			}
		} else if curEnd > nextEnd {
			if cur.offsetEnd() < next.offsetEnd() {
				return nil, ErrBadOverlapDanglingRva
			}
		}
		// Merge into a single unit spanning the union.
		rvaBegin := cur.RvaBegin
		rvaEndU := maxU32(curEnd, nextEnd)
		offsetBegin := cur.OffsetBegin
		offsetEndU := maxU32(cur.offsetEnd(), next.offsetEnd())
		cur = Unit{
			OffsetBegin: offsetBegin,
			OffsetSize: offsetEndU - offsetBegin,
			RvaBegin: rvaBegin,
			RvaSize: rvaEndU - rvaBegin,
		}
	}
	out = append(out, cur)
	return out, nil
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// OffsetToRva converts a file offset to an RVA, consulting cache for the
// last-hit unit first. ok is false if o has no RVA representation.
func (t *Translator) OffsetToRva(o uint32, cache *OffsetToRvaCache) (uint32, bool) {
	if o >= t.fakeOffsetBeg {
		rva := o - t.fakeOffsetBeg
		if idx, ok := t.findRva(rva, &cache.lastHit); ok {
			u := t.byRva[idx]
			if rva-u.RvaBegin >= u.OffsetSize {
				return rva, true
			}
		}
		return 0, false
	}
	if idx, ok := t.findOffset(o, &cache.lastHit); ok {
		u := t.byOffset[idx]
		if o < u.offsetEnd() {
			return o - u.OffsetBegin + u.RvaBegin, true
		}
	}
	return 0, false
}

// RvaToOffset converts an RVA to a file offset (synthesizing a fake offset
// for dangling RVAs). ok is false if r is not covered by any unit.
func (t *Translator) RvaToOffset(r uint32, cache *RvaToOffsetCache) (uint32, bool) {
	idx, ok := t.findRva(r, &cache.lastHit)
	if !ok {
		return 0, false
	}
	u := t.byRva[idx]
	if r >= u.rvaEnd() {
		return 0, false
	}
	if r-u.RvaBegin < u.OffsetSize {
		return u.OffsetBegin + (r - u.RvaBegin), true
	}
	return t.fakeOffsetBeg + r, true
}

// IsValidOffset reports whether o lies within some unit's offset range or
// within the fake-offset region covering a dangling RVA.
func (t *Translator) IsValidOffset(o uint32) bool {
	var c OffsetToRvaCache
	_, ok := t.OffsetToRva(o, &c)
	return ok
}

func (t *Translator) findOffset(o uint32, lastHit *int) (int, bool) {
	if *lastHit >= 0 && *lastHit < len(t.byOffset) {
		u := t.byOffset[*lastHit]
		if o >= u.OffsetBegin && o < u.offsetEnd() {
			return *lastHit, true
		}
	}
	i := sort.Search(len(t.byOffset), func(i int) bool { return t.byOffset[i].OffsetBegin > o })
	if i == 0 {
		return 0, false
	}
	*lastHit = i - 1
	return i - 1, true
}

func (t *Translator) findRva(r uint32, lastHit *int) (int, bool) {
	if *lastHit >= 0 && *lastHit < len(t.byRva) {
		u := t.byRva[*lastHit]
		if r >= u.RvaBegin && r < u.rvaEnd() {
			return *lastHit, true
		}
	}
	i := sort.Search(len(t.byRva), func(i int) bool { return t.byRva[i].RvaBegin > r })
	if i == 0 {
		return 0, false
	}
	*lastHit = i - 1
	return i - 1, true
}

// FakeOffsetBegin returns the synthetic boundary offset at which dangling
// RVAs begin to be represented.
func (t *Translator) FakeOffsetBegin() uint32 { return t.fakeOffsetBeg }

// Units returns the finalized unit list, sorted by offset.
func (t *Translator) Units() []Unit { return t.byOffset }
