// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package patch

import (
	"github.com/saferwall/zucchini/internal/disasm"
	"github.com/saferwall/zucchini/internal/equivalence"
	"github.com/saferwall/zucchini/internal/image"
)

// applyReferenceCorrection implements step 2c: for each
// matched pool and reference type, in the same order encodeReferenceDelta
// walked them, read the next reference-delta entry, resolve the actual new
// target through the pool, and write it at the reference's new-image
// location.
func applyReferenceCorrection(oldSub, newSub []byte, oldIdx, newIdx *image.Index, newDis disasm.Disassembler, mapper *equivalence.OffsetMapper, el DecodedElement) error {
	writerFor := make(map[uint8]func(buf []byte) disasm.Writer)
	for _, g := range newDis.Groups() {
		writerFor[g.Traits.Type] = g.MakeWriter
	}

	for _, poolTag := range unionPoolTags(oldIdx, newIdx) {
		oldPool := oldIdx.TargetPool(poolTag)
		newPool := newIdx.TargetPool(poolTag)
		if oldPool == nil || newPool == nil {
			continue
		}
		projected := projectOldTargets(poolTag, oldPool, mapper, len(newSub))
		projected.InsertTargets(el.ExtraTargetsByPool[poolTag])

		for _, typeTag := range unionTypeTags(oldPool, newPool) {
			oldSet := oldIdx.ReferenceSet(typeTag)
			newSet := newIdx.ReferenceSet(typeTag)
			if oldSet == nil || newSet == nil {
				continue
			}
			width := uint32(newSet.Traits.Width)
			makeWriter := writerFor[typeTag]
			if makeWriter == nil {
				continue
			}
			writer := makeWriter(newSub)

			for _, newRef := range newSet.All() {
				eq, ok := findCoveringEquivalence(el.Equivalences, newRef.Location, width)
				if !ok {
					continue
				}
				oldLoc := eq.SrcOffset + (newRef.Location - eq.DstOffset)
				oldRef, ok := oldSet.At(oldLoc)
				if !ok || oldRef.Location != oldLoc {
					continue
				}
				estimate := mapper.ExtendedForwardProject(oldRef.Target)
				estimateKey, ok1 := projected.KeyForNearestOffset(estimate)
				if !ok1 {
					continue
				}
				delta, err := el.ReferenceDelta.GetSleb128()
				if err != nil {
					return err
				}
				actualKey := int64(estimateKey) + int64(delta)
				target, ok2 := projected.OffsetForKey(int(actualKey))
				if !ok2 {
					return ErrBadEquivalences
				}
				if err := writer.Write(newRef.Location, target); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
