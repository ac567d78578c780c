// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package equivalence builds and manipulates the EquivalenceMap: the set of
// (src_offset, dst_offset, length) runs that the old and new images share,
// co-refined against the reference graph over several iterations, and the
// OffsetMapper derived from it for apply-time projection.
package equivalence

import (
	"sort"

	"github.com/saferwall/zucchini/internal/encview"
	"github.com/saferwall/zucchini/internal/image"
	"github.com/saferwall/zucchini/internal/suffixarray"
)

// Tunables for the affinity and refinement heuristics.
const (
	kMinLabelAffinity = 64.0
	minSimilarity = 12.0
	mismatchPenalty = -1.5
	refMismatchPenalty = -2.0
	backwardReachCap = 64 * 1024
	visitQuota = 256 * 1024
)

const mismatchFatal = -1e18 // kMismatchFatal: -infinity, stand-in that still compares correctly

// Equivalence is one shared run between the old and new images.
type Equivalence struct {
	SrcOffset uint32
	DstOffset uint32
	Length uint32
	Similarity float64
}

func (e Equivalence) dstEnd() uint32 { return e.DstOffset + e.Length }
func (e Equivalence) srcEnd() uint32 { return e.SrcOffset + e.Length }

// Map is a dst-sorted, non-overlapping-in-new list of Equivalences.
type Map []Equivalence

// Build runs the co-refinement loop for the declared number of iterations,
// returning the final EquivalenceMap.
func Build(oldIdx, newIdx *image.Index, oldData, newData []byte, iterations int) Map {
	sharedTypes, typeCount := encview.SharedTypeIndex(oldIdx, newIdx)
	var m Map

	for iter := 0; iter < iterations; iter++ {
		assignLabels(oldIdx, newIdx, m)

		oldView := encview.New(oldData, oldIdx, sharedTypes, typeCount)
		newView := encview.New(newData, newIdx, sharedTypes, typeCount)

		oldValues := oldView.Values()
		sa := suffixarray.Build(oldValues)

		m = generate(oldView, newView, oldIdx, newIdx, sa)
		m = pruneOverlaps(m, oldView, newView)
	}
	return m
}

// assignLabels implements steps 1-2: for each pool tag, compute
// TargetsAffinity against the current map and write integer labels (>=1 for
// affinity >= kMinLabelAffinity) into both images' target pools.
func assignLabels(oldIdx, newIdx *image.Index, m Map) {
	for _, poolTag := range unionPoolTags(oldIdx, newIdx) {
		oldPool := oldIdx.TargetPool(poolTag)
		newPool := newIdx.TargetPool(poolTag)
		if oldPool == nil || newPool == nil {
			continue
		}
		assoc := targetsAffinity(oldPool, newPool, m)

		nextLabel := uint32(1)
		newLabels := make(map[int]uint32) // newKey -> label
		oldLabelOf := make(map[uint32]uint32)
		for newKey, a := range assoc {
			if a.affinity < kMinLabelAffinity {
				continue
			}
			label, ok := oldLabelOf[a.oldTarget]
			if !ok {
				label = nextLabel
				nextLabel++
				oldLabelOf[a.oldTarget] = label
			}
			newLabels[newKey] = label
		}
		for i := 0; i < oldPool.Len(); i++ {
			off, _ := oldPool.OffsetForKey(i)
			oldPool.SetLabel(i, oldLabelOf[off])
		}
		for newKey, label := range newLabels {
			newPool.SetLabel(newKey, label)
		}
	}
}

type association struct {
	oldTarget uint32
	affinity float64
}

// targetsAffinity implements step 1: for each equivalence
// (sorted by dst_offset), walk new-targets whose offset falls within it,
// compute the corresponding old-target, and keep the highest-similarity
// association per new-target (ties toward insertion order; a better
// association clears the loser's entry on the other side too).
func targetsAffinity(oldPool, newPool *image.TargetPool, m Map) map[int]association {
	result := make(map[int]association)
	bestForOld := make(map[uint32]int) // oldTarget -> newKey holding the best affinity so far

	sorted := append(Map(nil), m...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DstOffset < sorted[j].DstOffset })

	newTargets := newPool.Targets()
	for _, eq := range sorted {
		lo := sort.Search(len(newTargets), func(i int) bool { return newTargets[i] >= eq.DstOffset })
		for i := lo; i < len(newTargets) && newTargets[i] < eq.dstEnd(); i++ {
			newTarget := newTargets[i]
			oldTarget := newTarget - eq.DstOffset + eq.SrcOffset
			if _, ok := oldPool.KeyForOffset(oldTarget); !ok {
				continue
			}
			newKey, _ := newPool.KeyForOffset(newTarget)
			aff := eq.Similarity

			if cur, ok := result[newKey]; ok && cur.affinity >= aff {
				continue
			}
			if prevKey, ok := bestForOld[oldTarget]; ok && prevKey != newKey {
				if prev, ok2 := result[prevKey]; ok2 && prev.oldTarget == oldTarget {
					if prev.affinity >= aff {
						continue
					}
					delete(result, prevKey)
				}
			}
			result[newKey] = association{oldTarget: oldTarget, affinity: aff}
			bestForOld[oldTarget] = newKey
		}
	}
	return result
}

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
