// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package patch

import (
	"sort"

	"github.com/saferwall/zucchini/internal/buffer"
	"github.com/saferwall/zucchini/internal/equivalence"
	"github.com/saferwall/zucchini/internal/image"
)

// projectOldTargets builds the pool of new-image target offsets reachable
// by forward-projecting every old-image target through mapper.
func projectOldTargets(poolTag uint8, oldPool *image.TargetPool, mapper *equivalence.OffsetMapper, newImageSize int) *image.TargetPool {
	p := image.NewTargetPool(poolTag)
	if oldPool == nil {
		return p
	}
	projected := make([]uint32, 0, oldPool.Len())
	for _, t := range oldPool.Targets() {
		np := mapper.ExtendedForwardProject(t)
		if int(np) >= newImageSize {
			continue // untranslatable past the new image, filtered
		}
		projected = append(projected, np)
	}
	p.InsertTargets(projected)
	return p
}

// extraTargets is the set of new-image targets not already reachable by
// projecting old targets forward.
func extraTargets(projected *image.TargetPool, newPool *image.TargetPool) []uint32 {
	if newPool == nil {
		return nil
	}
	var out []uint32
	for _, t := range newPool.Targets() {
		if _, ok := projected.KeyForOffset(t); !ok {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// unionPoolTags returns the sorted union of two index's pool tags.
func unionPoolTags(a, b *image.Index) []uint8 {
	seen := make(map[uint8]bool)
	var tags []uint8
	for _, t := range a.PoolTags() {
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	for _, t := range b.PoolTags() {
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// unionTypeTags returns the sorted union of two TargetPool's declared types.
func unionTypeTags(a, b *image.TargetPool) []uint8 {
	seen := make(map[uint8]bool)
	var tags []uint8
	if a != nil {
		for _, t := range a.Types {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	if b != nil {
		for _, t := range b.Types {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// findCoveringEquivalence returns the equivalence whose dst range fully
// contains [loc, loc+width), if any, via binary search over dst-sorted m.
func findCoveringEquivalence(m equivalence.Map, loc, width uint32) (equivalence.Equivalence, bool) {
	i := sort.Search(len(m), func(i int) bool { return m[i].DstOffset+m[i].Length > loc })
	if i >= len(m) {
		return equivalence.Equivalence{}, false
	}
	eq := m[i]
	if loc < eq.DstOffset || loc+width > eq.DstOffset+eq.Length {
		return equivalence.Equivalence{}, false
	}
	return eq, true
}

// encodeOffsetList writes a "delta-encoded-minus-1" varint stream: the
// first offset verbatim, each subsequent one as (offset[i] - offset[i-1] -
// 1), mirroring the -1 bias used by the raw-delta skip stream so that
// consecutive offsets encode as zero.
func encodeOffsetList(offsets []uint32) []byte {
	var buf []byte
	prev := uint32(0)
	for i, o := range offsets {
		var v uint32
		if i == 0 {
			v = o
		} else {
			v = o - prev - 1
		}
		buf = buffer.EncodeUleb128(buf, v)
		prev = o
	}
	return buf
}

// decodeOffsetList reverses encodeOffsetList.
func decodeOffsetList(src *buffer.Source) ([]uint32, error) {
	var out []uint32
	prev := uint32(0)
	for src.Remaining() > 0 {
		v, err := src.GetUleb128()
		if err != nil {
			return nil, err
		}
		var o uint32
		if len(out) == 0 {
			o = v
		} else {
			o = prev + v + 1
		}
		out = append(out, o)
		prev = o
	}
	return out, nil
}
