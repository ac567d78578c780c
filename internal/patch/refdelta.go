// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package patch

import (
	"github.com/saferwall/zucchini/internal/buffer"
	"github.com/saferwall/zucchini/internal/equivalence"
	"github.com/saferwall/zucchini/internal/image"
)

// encodeReferenceDelta implements point 4: for each
// matched pool and reference type, walk the new-image references that fall
// entirely within an equivalence, locate the corresponding old reference,
// and emit the signed difference between its new-image actual target key
// and its forward-projected estimate key.
func encodeReferenceDelta(oldIdx, newIdx *image.Index, mapper *equivalence.OffsetMapper, m equivalence.Map, newImageSize int) []byte {
	var sink buffer.Sink
	for _, poolTag := range unionPoolTags(oldIdx, newIdx) {
		oldPool := oldIdx.TargetPool(poolTag)
		newPool := newIdx.TargetPool(poolTag)
		if oldPool == nil || newPool == nil {
			continue
		}
		projected := projectOldTargets(poolTag, oldPool, mapper, newImageSize)
		extras := extraTargets(projected, newPool)
		projected.InsertTargets(extras)

		for _, typeTag := range unionTypeTags(oldPool, newPool) {
			oldSet := oldIdx.ReferenceSet(typeTag)
			newSet := newIdx.ReferenceSet(typeTag)
			if oldSet == nil || newSet == nil {
				continue
			}
			width := uint32(newSet.Traits.Width)
			for _, newRef := range newSet.All() {
				eq, ok := findCoveringEquivalence(m, newRef.Location, width)
				if !ok {
					continue
				}
				oldLoc := eq.SrcOffset + (newRef.Location - eq.DstOffset)
				oldRef, ok := oldSet.At(oldLoc)
				if !ok || oldRef.Location != oldLoc {
					continue // per-reference validation failure: silent skip
				}
				estimate := mapper.ExtendedForwardProject(oldRef.Target)
				estimateKey, ok1 := projected.KeyForNearestOffset(estimate)
				actualKey, ok2 := projected.KeyForOffset(newRef.Target)
				if !ok1 || !ok2 {
					continue
				}
				sink.PutSleb128(int32(actualKey) - int32(estimateKey))
			}
		}
	}
	return sink.Bytes()
}
