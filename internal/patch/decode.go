// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package patch

import (
	"github.com/saferwall/zucchini/internal/buffer"
	"github.com/saferwall/zucchini/internal/equivalence"
)

// DecodedElement holds one element block's parsed streams, ready for Apply.
type DecodedElement struct {
	Header ElementHeader
	Equivalences equivalence.Map
	ExtraData []byte
	RawDeltaSkip []uint32 // gap-1 per point 3, already +1'd back to the gap
	RawDeltaDiff []int8
	ReferenceDelta *buffer.Source
	ExtraTargetsByPool map[uint8][]uint32
}

// Decode parses the whole patch stream (header, element count, each
// element block) without applying it.
func Decode(data []byte) (Header, []DecodedElement, error) {
	src := buffer.NewSource(buffer.New(data))
	h, err := DecodeHeader(src)
	if err != nil {
		return Header{}, nil, err
	}
	count, err := src.GetUint32()
	if err != nil {
		return Header{}, nil, err
	}
	elements := make([]DecodedElement, 0, count)
	for i := uint32(0); i < count; i++ {
		el, err := decodeElement(src, h)
		if err != nil {
			return Header{}, nil, err
		}
		elements = append(elements, el)
	}
	return h, elements, nil
}

func decodeElement(src *buffer.Source, h Header) (DecodedElement, error) {
	var el DecodedElement
	eh, err := DecodeElementHeader(src, h)
	if err != nil {
		return el, err
	}
	el.Header = eh

	srcSkipSrc, err := readBlob(src)
	if err != nil {
		return el, err
	}
	dstSkipSrc, err := readBlob(src)
	if err != nil {
		return el, err
	}
	copyCntSrc, err := readBlob(src)
	if err != nil {
		return el, err
	}
	eqMap, err := decodeEquivalences(srcSkipSrc, dstSkipSrc, copyCntSrc, eh)
	if err != nil {
		return el, err
	}
	el.Equivalences = eqMap

	extraDataSrc, err := readBlob(src)
	if err != nil {
		return el, err
	}
	el.ExtraData = extraDataSrc.Bytes()
	if err := validateEquivalenceGaps(eqMap, eh, len(el.ExtraData)); err != nil {
		return el, err
	}

	rawSkipSrc, err := readBlob(src)
	if err != nil {
		return el, err
	}
	rawDiffSrc, err := readBlob(src)
	if err != nil {
		return el, err
	}
	el.RawDeltaSkip, el.RawDeltaDiff, err = decodeRawDeltaStreams(rawSkipSrc, rawDiffSrc)
	if err != nil {
		return el, err
	}

	el.ReferenceDelta, err = readBlob(src)
	if err != nil {
		return el, err
	}

	poolCount, err := src.GetUint32()
	if err != nil {
		return el, err
	}
	el.ExtraTargetsByPool = make(map[uint8][]uint32, poolCount)
	for i := uint32(0); i < poolCount; i++ {
		tag, err := src.GetUint8()
		if err != nil {
			return el, err
		}
		blob, err := readBlob(src)
		if err != nil {
			return el, err
		}
		offsets, err := decodeOffsetList(blob)
		if err != nil {
			return el, err
		}
		el.ExtraTargetsByPool[tag] = offsets
	}
	return el, nil
}

func decodeEquivalences(srcSkipSrc, dstSkipSrc, copyCntSrc *buffer.Source, eh ElementHeader) (equivalence.Map, error) {
	var m equivalence.Map
	prevSrc, prevDst := int64(0), uint32(0)
	for srcSkipSrc.Remaining() > 0 {
		skip, err := srcSkipSrc.GetSleb128()
		if err != nil {
			return nil, err
		}
		dskip, err := dstSkipSrc.GetUleb128()
		if err != nil {
			return nil, err
		}
		length, err := copyCntSrc.GetUleb128()
		if err != nil {
			return nil, err
		}
		srcOffset := prevSrc + int64(skip)
		dstOffset := prevDst + dskip
		if srcOffset < 0 || uint64(srcOffset)+uint64(length) > uint64(eh.OldLength) {
			return nil, ErrBadEquivalences
		}
		if uint64(dstOffset)+uint64(length) > uint64(eh.NewLength) {
			return nil, ErrBadEquivalences
		}
		if len(m) > 0 && dstOffset < m[len(m)-1].DstOffset+m[len(m)-1].Length {
			return nil, ErrBadEquivalences
		}
		m = append(m, equivalence.Equivalence{SrcOffset: uint32(srcOffset), DstOffset: dstOffset, Length: length})
		prevSrc = srcOffset + int64(length)
		prevDst = dstOffset + length
	}
	return m, nil
}

// validateEquivalenceGaps checks that the total of equivalence lengths
// leaves exactly extraSize bytes of gap in the new image (spec 4.10).
func validateEquivalenceGaps(m equivalence.Map, eh ElementHeader, extraSize int) error {
	var total uint64
	for _, eq := range m {
		total += uint64(eq.Length)
	}
	if total+uint64(extraSize) != uint64(eh.NewLength) {
		return ErrBadEquivalences
	}
	return nil
}

func decodeRawDeltaStreams(skipSrc, diffSrc *buffer.Source) ([]uint32, []int8, error) {
	var skips []uint32
	var diffs []int8
	for skipSrc.Remaining() > 0 {
		g, err := skipSrc.GetUleb128()
		if err != nil {
			return nil, nil, err
		}
		b, err := diffSrc.GetUint8()
		if err != nil {
			return nil, nil, err
		}
		if b == 0 {
			return nil, nil, ErrBadEquivalences
		}
		skips = append(skips, g+1)
		diffs = append(diffs, int8(b))
	}
	return skips, diffs, nil
}
