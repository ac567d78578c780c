// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package patch

import (
	"fmt"
	"sort"

	"github.com/saferwall/zucchini/internal/buffer"
	"github.com/saferwall/zucchini/internal/crc"
	"github.com/saferwall/zucchini/internal/disasm"
	"github.com/saferwall/zucchini/internal/ensemble"
	"github.com/saferwall/zucchini/internal/equivalence"
)

// Encode builds the complete patch byte stream for the given matches,
// per element emission order (ascending new offset,
// tiling [0, len(newData))).
func Encode(oldData, newData []byte, matches []ensemble.Match) ([]byte, error) {
	live := make([]ensemble.Match, 0, len(matches))
	for _, m := range matches {
		if !m.Identical {
			live = append(live, m)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].New.Offset < live[j].New.Offset })

	sink := buffer.NewSink(len(newData) / 2)
	Header{
		MajorVersion: CurrentMajorVersion,
		OldSize: uint32(len(oldData)),
		OldCRC32: crc.Checksum32(oldData),
		NewSize: uint32(len(newData)),
		NewCRC32: crc.Checksum32(newData),
	}.Encode(sink)
	sink.PutUint32(uint32(len(live)))

	for _, m := range live {
		block, err := encodeElement(oldData, newData, m.Old, m.New)
		if err != nil {
			return nil, fmt.Errorf("patch: encoding element at new offset %d: %w", m.New.Offset, err)
		}
		sink.PutRange(block)
	}
	return sink.Bytes(), nil
}

func encodeElement(oldData, newData []byte, oldEl, newEl ensemble.Element) ([]byte, error) {
	oldSub := oldData[oldEl.Offset:oldEl.Offset+oldEl.Size]
	newSub := newData[newEl.Offset:newEl.Offset+newEl.Size]

	oldDis, err := disassemblerFor(oldEl.ExeType, oldSub)
	if err != nil {
		return nil, err
	}
	newDis, err := disassemblerFor(newEl.ExeType, newSub)
	if err != nil {
		return nil, err
	}
	oldIdx, err := disasm.BuildIndex(oldDis)
	if err != nil {
		return nil, err
	}
	newIdx, err := disasm.BuildIndex(newDis)
	if err != nil {
		return nil, err
	}

	eqMap := equivalence.Build(oldIdx, newIdx, oldSub, newSub, oldDis.NumEquivalenceIterations())
	mapper := equivalence.NewOffsetMapper(eqMap, len(oldSub), len(newSub))

	sink := buffer.NewSink(len(newSub) / 2)
	ElementHeader{
		OldOffset: uint32(oldEl.Offset),
		OldLength: uint32(oldEl.Size),
		NewOffset: uint32(newEl.Offset),
		NewLength: uint32(newEl.Size),
		ExeType: newEl.ExeType,
		DisassemblerVersion: newDis.Version(),
	}.Encode(sink)

	srcSkip, dstSkip, copyCount := encodeEquivalenceStreams(eqMap)
	writeBlob(sink, srcSkip)
	writeBlob(sink, dstSkip)
	writeBlob(sink, copyCount)

	writeBlob(sink, encodeExtraData(newSub, eqMap))

	rawSkip, rawDiff := encodeRawDelta(oldSub, newSub, oldIdx, oldDis, eqMap)
	writeBlob(sink, rawSkip)
	writeBlob(sink, rawDiff)

	writeBlob(sink, encodeReferenceDelta(oldIdx, newIdx, mapper, eqMap, len(newSub)))

	poolTags := unionPoolTags(oldIdx, newIdx)
	type poolBlock struct {
		tag uint8
		blob []byte
	}
	var blocks []poolBlock
	for _, tag := range poolTags {
		oldPool := oldIdx.TargetPool(tag)
		newPool := newIdx.TargetPool(tag)
		projected := projectOldTargets(tag, oldPool, mapper, len(newSub))
		extras := extraTargets(projected, newPool)
		if len(extras) == 0 {
			continue
		}
		blocks = append(blocks, poolBlock{tag: tag, blob: encodeOffsetList(extras)})
	}
	sink.PutUint32(uint32(len(blocks)))
	for _, b := range blocks {
		sink.PutUint8(b.tag)
		writeBlob(sink, b.blob)
	}

	return sink.Bytes(), nil
}

// encodeEquivalenceStreams implements point 1.
func encodeEquivalenceStreams(m equivalence.Map) (srcSkip, dstSkip, copyCount []byte) {
	var srcSink, dstSink, cntSink buffer.Sink
	prevSrc, prevDst := int64(0), uint32(0)
	for _, eq := range m {
		srcSink.PutSleb128(int32(int64(eq.SrcOffset) - prevSrc))
		dstSink.PutUleb128(eq.DstOffset - prevDst)
		cntSink.PutUleb128(eq.Length)
		prevSrc = int64(eq.SrcOffset) + int64(eq.Length)
		prevDst = eq.DstOffset + eq.Length
	}
	return srcSink.Bytes(), dstSink.Bytes(), cntSink.Bytes()
}

// encodeExtraData implements point 2.
func encodeExtraData(newSub []byte, m equivalence.Map) []byte {
	var out []byte
	prev := uint32(0)
	for _, eq := range m {
		out = append(out, newSub[prev:eq.DstOffset]...)
		prev = eq.DstOffset + eq.Length
	}
	out = append(out, newSub[prev:]...)
	return out
}
