// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package equivalence

import (
	"sort"

	"github.com/saferwall/zucchini/internal/address"
)

// OffsetMapper supports extended forward projection of an old-image offset
// to a new-image offset at apply time.
type OffsetMapper struct {
	units Map // sorted by SrcOffset after pruneAndSortBySource
	oldImageSize int
	newImageSize int
}

// NewOffsetMapper prunes and sorts m by source, per,
// before it can answer ExtendedForwardProject queries.
func NewOffsetMapper(m Map, oldImageSize, newImageSize int) *OffsetMapper {
	return &OffsetMapper{
		units: pruneAndSortBySource(m),
		oldImageSize: oldImageSize,
		newImageSize: newImageSize,
	}
}

// pruneAndSortBySource implements pre-use pass: sort
// by (src_offset asc, length desc, dst_offset asc); walk forward, and when
// the next overlapping equivalence is longer (the "reaper"), truncate the
// current one, discard everything between, and resume at the reaper;
// otherwise shrink subsequent overlapping entries to start at the current
// one's end. Empty results are dropped.
func pruneAndSortBySource(m Map) Map {
	sorted := append(Map(nil), m...)
	sort.Slice(sorted, func(i, j int) bool {
			if sorted[i].SrcOffset != sorted[j].SrcOffset {
				return sorted[i].SrcOffset < sorted[j].SrcOffset
			}
			if sorted[i].Length != sorted[j].Length {
				return sorted[i].Length > sorted[j].Length
			}
			return sorted[i].DstOffset < sorted[j].DstOffset
	})

	var out Map
	i := 0
	for i < len(sorted) {
		cur := sorted[i]
		j := i + 1
		reaped := false
		for j < len(sorted) && sorted[j].SrcOffset < cur.srcEnd() {
			next := sorted[j]
			if next.Length > cur.Length {
				// next is the reaper: truncate cur, discard [i+1, j), resume at j.
				cur.Length = next.SrcOffset - cur.SrcOffset
				i = j
				reaped = true
				break
			}
			// Not a reaper: shrink next to start at cur's end.
			delta := cur.srcEnd() - next.SrcOffset
			if delta > next.Length {
				delta = next.Length
			}
			sorted[j].SrcOffset += delta
			sorted[j].DstOffset += delta
			sorted[j].Length -= delta
			j++
		}
		if !reaped {
			i++
		}
		if cur.Length > 0 {
			out = append(out, cur)
		}
	}
	return out
}

// ExtendedForwardProject maps an old-image offset to its new-image
// counterpart: find the equivalence whose old range is nearest o
// (preferring lower src_offset on ties), then translate by that
// equivalence's offset delta. Fake offsets past old_image_size translate
// into the corresponding fake region past new_image_size.
func (om *OffsetMapper) ExtendedForwardProject(o uint32) uint32 {
	if int(o) >= om.oldImageSize {
		extra := o - uint32(om.oldImageSize)
		result := uint32(om.newImageSize) + extra
		if result >= address.OffsetBound {
			return address.OffsetBound - 1
		}
		return result
	}
	if len(om.units) == 0 {
		return clampOffset(o, om.newImageSize)
	}
	i := sort.Search(len(om.units), func(i int) bool { return om.units[i].SrcOffset > o })
	idx := i - 1
	if idx < 0 {
		idx = 0
	} else if i < len(om.units) && o >= om.units[idx].srcEnd() &&
		om.units[i].SrcOffset-o < o-om.units[idx].srcEnd()+1 {
		// o lies in the gap before units[i] and is strictly closer to it.
		idx = i
	}
	u := om.units[idx]
	delta := int64(u.DstOffset) - int64(u.SrcOffset)
	result := int64(o) + delta
	return clampOffset64(result, om.newImageSize)
}

func clampOffset(o uint32, newImageSize int) uint32 {
	return clampOffset64(int64(o), newImageSize)
}

func clampOffset64(v int64, newImageSize int) uint32 {
	if v < 0 {
		return 0
	}
	if v >= int64(newImageSize) {
		if newImageSize == 0 {
			return 0
		}
		return uint32(newImageSize) - 1
	}
	return uint32(v)
}
