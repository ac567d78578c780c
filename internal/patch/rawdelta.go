// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package patch

import (
	"github.com/saferwall/zucchini/internal/buffer"
	"github.com/saferwall/zucchini/internal/disasm"
	"github.com/saferwall/zucchini/internal/equivalence"
	"github.com/saferwall/zucchini/internal/image"
)

// mixerTraits maps a disassembler's reference type tags to whether that
// type carries a Mixer (ARM) and, if so, the mixer itself and its width.
type mixerTraits struct {
	hasMixer map[uint8]bool
	width map[uint8]uint8
	mixerOf map[uint8]func(oldImage, newImage []byte) disasm.Mixer
}

func buildMixerTraits(d disasm.Disassembler) mixerTraits {
	mt := mixerTraits{
		hasMixer: make(map[uint8]bool),
		width: make(map[uint8]uint8),
		mixerOf: make(map[uint8]func(oldImage, newImage []byte) disasm.Mixer),
	}
	for _, g := range d.Groups() {
		mt.width[g.Traits.Type] = g.Traits.Width
		if g.MakeMixer != nil {
			mt.hasMixer[g.Traits.Type] = true
			mt.mixerOf[g.Traits.Type] = g.MakeMixer
		}
	}
	return mt
}

// encodeRawDelta implements point 3: walk equivalences and
// emit byte-diffs for every covered position outside a no-mixer reference
// body, substituting the architecture mixer's output for bytes inside a
// mixed (ARM) reference body, and skipping zero diffs entirely.
func encodeRawDelta(oldSub, newSub []byte, oldIdx *image.Index, oldDis disasm.Disassembler, m equivalence.Map) (skip, diff []byte) {
	mt := buildMixerTraits(oldDis)
	var skipSink, diffSink buffer.Sink
	lastCopyOffset := int64(-1)
	copyBase := uint32(0)

	mixedCache := make(map[uint32][]byte) // reference Location -> mixed bytes, memoised per element

	for _, eq := range m {
		for i := uint32(0); i < eq.Length; i++ {
			srcPos := eq.SrcOffset + i
			dstPos := eq.DstOffset + i
			copyOffset := int64(copyBase + i)

			tag := oldIdx.TypeTagAt(int(srcPos))
			newByte := newSub[dstPos]
			if tag != image.NoTypeTag {
				if !mt.hasMixer[tag] {
					continue // Intel: reference-delta stream corrects the whole body
				}
				set := oldIdx.ReferenceSet(tag)
				ref, ok := set.At(srcPos)
				if !ok {
					continue
				}
				width := mt.width[tag]
				mixed, cached := mixedCache[ref.Location]
				if !cached {
					oldCode, err1 := sliceAt(oldSub, int(ref.Location), int(width))
					newLoc := dstPos - (srcPos - ref.Location)
					newCode, err2 := sliceAt(newSub, int(newLoc), int(width))
					if err1 != nil || err2 != nil {
						continue
					}
					mixer := mt.mixerOf[tag](oldSub, newSub)
					mixedBytes, err := mixer.Mix(oldCode, newCode)
					if err != nil || len(mixedBytes) != int(width) {
						continue
					}
					mixed = mixedBytes
					mixedCache[ref.Location] = mixed
				}
				offsetInRef := srcPos - ref.Location
				if int(offsetInRef) >= len(mixed) {
					continue
				}
				newByte = mixed[offsetInRef]
			}

			d := int(newByte) - int(oldSub[srcPos])
			if d == 0 {
				continue
			}
			gap := copyOffset - lastCopyOffset
			skipSink.PutUleb128(uint32(gap - 1))
			diffSink.PutUint8(byte(int8(d)))
			lastCopyOffset = copyOffset
		}
		copyBase += eq.Length
	}
	return skipSink.Bytes(), diffSink.Bytes()
}

func sliceAt(b []byte, pos, size int) ([]byte, error) {
	if pos < 0 || size < 0 || pos+size > len(b) {
		return nil, buffer.ErrOutsideBoundary
	}
	return b[pos: pos+size], nil
}
