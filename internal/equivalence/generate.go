// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package equivalence

import (
	"github.com/saferwall/zucchini/internal/encview"
	"github.com/saferwall/zucchini/internal/image"
	"github.com/saferwall/zucchini/internal/suffixarray"
)

// maxProbes bounds how many suffix-array neighbours generate inspects per
// dst_offset before giving up, independent of the visit-length quota; it
// keeps the search from degenerating when many suffixes share a long
// common prefix (e.g. runs of zero bytes).
const maxProbes = 64

// generate implements step 4: for each new-image token
// position, binary-search the old suffix array for a lexicographic
// neighbourhood, probe outward from it, and keep the best-scoring
// extension as a candidate equivalence.
func generate(oldView, newView *encview.View, oldIdx, newIdx *image.Index, sa []int32) Map {
	oldValues := oldView.Values()
	newValues := newView.Values()

	var out Map
	dst := 0
	n := len(newValues)
	for dst < n {
		if !newIdx.IsToken(dst) {
			dst++
			continue
		}
		cand, ok := bestCandidateAt(oldValues, newValues, oldIdx, newIdx, sa, dst)
		if !ok || cand.Length == 0 {
			dst++
			continue
		}
		out = append(out, cand)
		dst = int(cand.dstEnd())
	}
	return out
}

func bestCandidateAt(oldValues, newValues []uint32, oldIdx, newIdx *image.Index, sa []int32, dst int) (Equivalence, bool) {
	pattern := newValues[dst:]
	lb := suffixarray.LowerBound(sa, oldValues, pattern)

	visited := 0
	probes := 0
	var best Equivalence
	haveBest := false

	tryOne := func(saIdx int) {
		if saIdx < 0 || saIdx >= len(sa) || visited >= visitQuota || probes >= maxProbes {
			return
		}
		probes++
		src := int(sa[saIdx])
		eq, length := extend(oldValues, newValues, oldIdx, newIdx, src, dst)
		visited += length
		if !haveBest || eq.Similarity > best.Similarity {
			best, haveBest = eq, true
		}
	}

	for i := 0; i < maxProbes && (lb-1-i >= 0 || lb+i < len(sa)); i++ {
		tryOne(lb + i)
		if i > 0 {
			tryOne(lb - i)
		}
		if visited >= visitQuota {
			break
		}
	}

	if !haveBest || best.Similarity < minSimilarity {
		return Equivalence{}, false
	}
	return best, true
}

// extend grows a seed (src, dst) into a maximal equivalence by scoring
// forward then backward extension ( step 4), returning the
// resulting equivalence and the total token length visited (for the quota).
func extend(oldValues, newValues []uint32, oldIdx, newIdx *image.Index, src, dst int) (Equivalence, int) {
	visited := 0
	fwdLen, fwdSim := extendForward(oldValues, newValues, oldIdx, newIdx, src, dst)
	visited += fwdLen
	bwdLen, bwdSim, newSrc, newDst := extendBackward(oldValues, newValues, oldIdx, newIdx, src, dst)
	visited += bwdLen

	total := fwdLen + bwdLen
	return Equivalence{
		SrcOffset: uint32(newSrc),
		DstOffset: uint32(newDst),
		Length: uint32(total),
		Similarity: fwdSim + bwdSim,
	}, visited
}

func extendForward(oldValues, newValues []uint32, oldIdx, newIdx *image.Index, src, dst int) (int, float64) {
	running := 0.0
	best := 0
	bestSim := 0.0
	i := 0
	for src+i < len(oldValues) && dst+i < len(newValues) {
		s := tokenSimilarity(oldValues, newValues, oldIdx, newIdx, src+i, dst+i)
		if s <= mismatchFatal/2 {
			break
		}
		running += s
		if running < bestSim-minSimilarity && i > 0 {
			break
		}
		if running > bestSim {
			bestSim = running
			best = i + 1
		}
		i++
	}
	return best, bestSim
}

func extendBackward(oldValues, newValues []uint32, oldIdx, newIdx *image.Index, src, dst int) (length int, sim float64, newSrc, newDst int) {
	running := 0.0
	best := 0
	bestSim := 0.0
	i := 1
	for src-i >= 0 && dst-i >= 0 && i <= backwardReachCap {
		s := tokenSimilarity(oldValues, newValues, oldIdx, newIdx, src-i, dst-i)
		if s <= mismatchFatal/2 {
			break
		}
		running += s
		if running < bestSim-minSimilarity {
			break
		}
		if running > bestSim {
			bestSim = running
			best = i
		}
		i++
	}
	return best, bestSim, src - best, dst - best
}

// tokenSimilarity implements per-token scoring table.
// oldValues/newValues are the images' EncodedView arrays: for raw bytes the
// encoded value is the byte itself, so equality there is a direct compare.
func tokenSimilarity(oldValues, newValues []uint32, oldIdx, newIdx *image.Index, src, dst int) float64 {
	oldTag := oldIdx.TypeTagAt(src)
	newTag := newIdx.TypeTagAt(dst)
	if oldTag != newTag {
		return mismatchFatal
	}
	if oldTag == image.NoTypeTag {
		if oldValues[src] == newValues[dst] {
			return 1.0
		}
		return mismatchPenalty
	}

	oldSet := oldIdx.ReferenceSet(oldTag)
	newSet := newIdx.ReferenceSet(newTag)
	if oldSet == nil || newSet == nil {
		return mismatchFatal
	}
	oldRef, ok1 := oldSet.At(uint32(src))
	newRef, ok2 := newSet.At(uint32(dst))
	if !ok1 || !ok2 || oldRef.Location != uint32(src) || newRef.Location != uint32(dst) {
		return mismatchFatal
	}
	width := float64(oldSet.Traits.Width)

	oldPool := oldIdx.TargetPool(oldSet.Traits.Pool)
	newPool := newIdx.TargetPool(newSet.Traits.Pool)
	if oldPool == nil || newPool == nil {
		return 0.5 * width
	}
	oldKey, ok1 := oldPool.KeyForOffset(oldRef.Target)
	newKey, ok2 := newPool.KeyForOffset(newRef.Target)
	if !ok1 || !ok2 {
		return 0.5 * width
	}
	oldLabel := oldPool.Label(oldKey)
	newLabel := newPool.Label(newKey)
	switch {
	case oldLabel == 0 && newLabel == 0:
		return 0.5 * width
	case oldLabel == newLabel && oldLabel != 0:
		return width
	default:
		return refMismatchPenalty
	}
}
