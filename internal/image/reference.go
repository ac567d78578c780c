// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package image holds the per-image annotation structures built by a
// disassembler: References, the ReferenceSet/TargetPool containers that
// dedupe and sort them, and the ImageIndex that paints a per-byte type-tag
// array over the whole image.
package image

import "sort"

// NoTypeTag marks a byte that belongs to no reference (a raw byte).
const NoTypeTag uint8 = 0xFF

// Reference is one located pointer/displacement: a location within the
// image and the offset it points at. Its body spans Width bytes starting at
// Location; Width is a property of its type, not stored per-reference.
type Reference struct {
	Location uint32
	Target uint32
}

// TypeTraits describes one reference type: how many bytes its body occupies,
// its unique type tag, and the pool tag of the target address space it
// shares with other interchangeable types.
type TypeTraits struct {
	Width uint8
	Type uint8
	Pool uint8
}

// ReferenceSet is the sorted, deduplicated set of references of one type,
// keeping track of the traits that describe it.
type ReferenceSet struct {
	Traits TypeTraits
	refs []Reference
}

// NewReferenceSet builds an (initially empty) set for the given traits.
func NewReferenceSet(traits TypeTraits) *ReferenceSet {
	return &ReferenceSet{Traits: traits}
}

// Insert drains reader (a function yielding references in ascending
// location order until it returns ok=false) and folds the results into the
// sorted, deduplicated set.
func (rs *ReferenceSet) Insert(reader func() (Reference, bool)) {
	for {
		r, ok := reader()
		if !ok {
			break
		}
		rs.refs = append(rs.refs, r)
	}
	sort.Slice(rs.refs, func(i, j int) bool { return rs.refs[i].Location < rs.refs[j].Location })
	rs.refs = dedupRefs(rs.refs)
}

func dedupRefs(refs []Reference) []Reference {
	out := refs[:0:0]
	for i, r := range refs {
		if i == 0 || r.Location != refs[i-1].Location {
			out = append(out, r)
		}
	}
	return out
}

// Len reports the number of distinct references.
func (rs *ReferenceSet) Len() int { return len(rs.refs) }

// All returns the references in ascending-location order.
func (rs *ReferenceSet) All() []Reference { return rs.refs }

// At returns the reference whose body covers offset, if any.
func (rs *ReferenceSet) At(offset uint32) (Reference, bool) {
	i := sort.Search(len(rs.refs), func(i int) bool { return rs.refs[i].Location > offset })
	if i == 0 {
		return Reference{}, false
	}
	r := rs.refs[i-1]
	width := uint32(rs.Traits.Width)
	if offset >= r.Location && offset < r.Location+width {
		return r, true
	}
	return Reference{}, false
}
