// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package equivalence

import (
	"sort"

	"github.com/saferwall/zucchini/internal/encview"
)

// pruneOverlaps implements step 5: walking dst-sorted
// candidates, a later overlap is resolved in favour of higher similarity;
// the loser is shrunk away from the overlap (an earlier run loses its tail,
// a later run its front) or dropped if its length reaches zero, with its
// similarity recomputed after any shrink.
func pruneOverlaps(m Map, oldView, newView *encview.View) Map {
	sorted := append(Map(nil), m...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DstOffset < sorted[j].DstOffset })

	var out Map
	for _, cand := range sorted {
		if len(out) == 0 {
			out = append(out, cand)
			continue
		}
		last := &out[len(out)-1]
		if cand.DstOffset >= last.dstEnd() {
			out = append(out, cand)
			continue
		}
		// Overlap: prefer the higher-similarity run.
		if cand.Similarity > last.Similarity {
			overlap := last.dstEnd() - cand.DstOffset
			if overlap >= last.Length {
				out = out[:len(out)-1]
			} else {
				last.Length -= overlap
				last.Similarity = recomputeSimilarity(*last, oldView, newView)
			}
			out = append(out, cand)
		} else {
			overlap := cand.dstEnd() - last.dstEnd()
			shrinkBy := cand.Length - overlap
			if shrinkBy >= cand.Length {
				continue
			}
			cand.SrcOffset += shrinkBy
			cand.DstOffset += shrinkBy
			cand.Length -= shrinkBy
			if cand.Length == 0 {
				continue
			}
			cand.Similarity = recomputeSimilarity(cand, oldView, newView)
			out = append(out, cand)
		}
	}
	return out
}

func recomputeSimilarity(eq Equivalence, oldView, newView *encview.View) float64 {
	oldValues := oldView.Values()
	newValues := newView.Values()
	oldIdx := oldView.Index()
	newIdx := newView.Index()
	total := 0.0
	for i := uint32(0); i < eq.Length; i++ {
		total += tokenSimilarity(oldValues, newValues, oldIdx, newIdx, int(eq.SrcOffset+i), int(eq.DstOffset+i))
	}
	return total
}
