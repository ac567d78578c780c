// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package image

import "errors"

// ErrOverlap is returned when painting a reference's body over the type-tag
// array finds bytes already claimed by another reference: no two reference
// bodies, of any type, may overlap within an image.
var ErrOverlap = errors.New("image: overlapping reference bodies")

// ReferenceReader yields successive references in ascending-location order,
// then a final (zero, false) when exhausted. A disassembler's reference
// group produces a fresh reader per call so callers can make independent
// passes (one to populate the target pool, one to populate the reference
// set).
type ReferenceReader func() (Reference, bool)

// GroupSpec is what a disassembler exposes per reference type: its traits
// and a factory for fresh readers over the whole image.
type GroupSpec struct {
	Traits TypeTraits
	MakeReader func() ReferenceReader
}

// Index is the per-image annotation: a type-tag array plus the reference
// sets and target pools built from a disassembler's declared groups.
type Index struct {
	size int
	typeTags []uint8
	sets map[uint8]*ReferenceSet
	pools map[uint8]*TargetPool
}

// Build constructs an Index for an image of the given size from the
// disassembler-declared groups in a two-pass procedure: first populate
// every pool's target set, then populate reference sets and paint the
// type-tag array, failing if any two bodies overlap.
func Build(size int, groups []GroupSpec) (*Index, error) {
	idx := &Index{
		size: size,
		typeTags: make([]uint8, size),
		sets: make(map[uint8]*ReferenceSet),
		pools: make(map[uint8]*TargetPool),
	}
	for i := range idx.typeTags {
		idx.typeTags[i] = NoTypeTag
	}

	// Pass 1: populate target pools.
	for _, g := range groups {
		pool := idx.pools[g.Traits.Pool]
		if pool == nil {
			pool = NewTargetPool(g.Traits.Pool)
			idx.pools[g.Traits.Pool] = pool
		}
		pool.AddType(g.Traits.Type)
		reader := g.MakeReader()
		var offsets []uint32
		for {
			r, ok := reader()
			if !ok {
				break
			}
			offsets = append(offsets, r.Target)
		}
		pool.InsertTargets(offsets)
	}

	// Pass 2: populate reference sets and paint type tags.
	for _, g := range groups {
		set := NewReferenceSet(g.Traits)
		reader := g.MakeReader()
		set.Insert(reader)
		width := int(g.Traits.Width)
		for _, r := range set.All() {
			loc := int(r.Location)
			if loc < 0 || loc+width > size {
				return nil, ErrOverlap
			}
			for b := loc; b < loc+width; b++ {
				if idx.typeTags[b] != NoTypeTag {
					return nil, ErrOverlap
				}
				idx.typeTags[b] = g.Traits.Type
			}
		}
		idx.sets[g.Traits.Type] = set
	}

	return idx, nil
}

// Size returns the image size this index was built for.
func (idx *Index) Size() int { return idx.size }

// TypeTagAt returns the type tag painted at offset (NoTypeTag if raw).
func (idx *Index) TypeTagAt(offset int) uint8 {
	if offset < 0 || offset >= len(idx.typeTags) {
		return NoTypeTag
	}
	return idx.typeTags[offset]
}

// IsToken reports whether offset starts a new "token": either a raw byte,
// or the first byte of a reference.
func (idx *Index) IsToken(offset int) bool {
	if offset < 0 || offset >= len(idx.typeTags) {
		return false
	}
	tag := idx.typeTags[offset]
	if tag == NoTypeTag {
		return true
	}
	set := idx.sets[tag]
	if set == nil {
		return false
	}
	r, ok := set.At(uint32(offset))
	return ok && r.Location == uint32(offset)
}

// ReferenceSet returns the reference set for a type tag, or nil.
func (idx *Index) ReferenceSet(typeTag uint8) *ReferenceSet { return idx.sets[typeTag] }

// TargetPool returns the target pool for a pool tag, or nil.
func (idx *Index) TargetPool(poolTag uint8) *TargetPool { return idx.pools[poolTag] }

// TypeTags returns the sorted type tags this index has reference sets for.
func (idx *Index) TypeTags() []uint8 {
	var tags []uint8
	for t := range idx.sets {
		tags = append(tags, t)
	}
	sortBytes(tags)
	return tags
}

// PoolTags returns the sorted pool tags this index has target pools for.
func (idx *Index) PoolTags() []uint8 {
	var tags []uint8
	for t := range idx.pools {
		tags = append(tags, t)
	}
	sortBytes(tags)
	return tags
}

func sortBytes(b []uint8) {
	for i := 1; i < len(b); i++ {
		for j := i; j > 0 && b[j-1] > b[j]; j-- {
			b[j-1], b[j] = b[j], b[j-1]
		}
	}
}
