// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package encview implements the EncodedView: the projection of each byte
// offset of an annotated image to an abstract alphabet symbol, used as the
// suffix-array input so that two references with associated (labeled)
// targets compare equal even when their raw target bytes differ.
package encview

import "github.com/saferwall/zucchini/internal/image"

// PaddingProjection is the alphabet symbol for a non-first byte of a
// reference body.
const PaddingProjection uint32 = 256

// BaseReferenceProjection is added to every reference-derived symbol so it
// never collides with a raw byte value (0-255) or the padding symbol (256).
const BaseReferenceProjection uint32 = 257

// View projects an ImageIndex's bytes into the abstract alphabet.
type View struct {
	data []byte
	idx *image.Index
	typeIndex map[uint8]int
	typeCount int
}

// New builds a View over data annotated by idx. Type tags are assigned a
// dense, deterministic index (ascending tag value) for use in the encoding
// formula; this numbering must be shared between the old and new image's
// views for a given EquivalenceMap iteration, so callers pass a
// pre-computed TypeIndex (see SharedTypeIndex) rather than letting two
// independently-built Views disagree.
func New(data []byte, idx *image.Index, typeIndex map[uint8]int, typeCount int) *View {
	return &View{data: data, idx: idx, typeIndex: typeIndex, typeCount: typeCount}
}

// SharedTypeIndex builds one dense type-tag numbering valid for both the old
// and new image's views, so that a type tag projects to the same dense
// index on both sides.
func SharedTypeIndex(a, b *image.Index) (map[uint8]int, int) {
	seen := make(map[uint8]bool)
	for _, t := range a.TypeTags() {
		seen[t] = true
	}
	for _, t := range b.TypeTags() {
		seen[t] = true
	}
	var tags []uint8
	for t := range seen {
		tags = append(tags, t)
	}
	// Deterministic ascending order.
	for i := 1; i < len(tags); i++ {
		for j := i; j > 0 && tags[j-1] > tags[j]; j-- {
			tags[j-1], tags[j] = tags[j], tags[j-1]
		}
	}
	idx := make(map[uint8]int, len(tags))
	for i, t := range tags {
		idx[t] = i
	}
	return idx, len(tags)
}

// Len reports the number of bytes in the underlying image.
func (v *View) Len() int { return len(v.data) }

// Value returns the abstract alphabet symbol at offset.
func (v *View) Value(offset int) uint32 {
	tag := v.idx.TypeTagAt(offset)
	if tag == image.NoTypeTag {
		return uint32(v.data[offset])
	}
	set := v.idx.ReferenceSet(tag)
	if set == nil {
		return uint32(v.data[offset])
	}
	r, ok := set.At(uint32(offset))
	if !ok || r.Location != uint32(offset) {
		return PaddingProjection
	}
	pool := v.idx.TargetPool(set.Traits.Pool)
	var label uint32
	if pool != nil {
		if key, ok := pool.KeyForOffset(r.Target); ok {
			label = pool.Label(key)
		}
	}
	t := uint32(v.typeIndex[tag])
	return label*uint32(v.typeCount) + t + BaseReferenceProjection
}

// Values materializes Value for every offset, the form the suffix array
// builder consumes.
func (v *View) Values() []uint32 {
	out := make([]uint32, len(v.data))
	for i := range out {
		out[i] = v.Value(i)
	}
	return out
}

// Cardinality returns the alphabet size given the largest label assigned in
// any pool (section 4.5: max_label_bound * type_count + 257).
func (v *View) Cardinality(maxLabelBound uint32) uint32 {
	return maxLabelBound*uint32(v.typeCount) + BaseReferenceProjection
}

// Index returns the underlying ImageIndex.
func (v *View) Index() *image.Index { return v.idx }
