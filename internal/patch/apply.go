// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package patch

import (
	"errors"
	"fmt"

	"github.com/saferwall/zucchini/internal/crc"
	"github.com/saferwall/zucchini/internal/disasm"
	"github.com/saferwall/zucchini/internal/equivalence"
)

// ErrOldCRCMismatch / ErrNewCRCMismatch report the CRC gate failures of
// steps 1 and 3.
var (
	ErrOldCRCMismatch = errors.New("patch: old image CRC-32 mismatch")
	ErrNewCRCMismatch = errors.New("patch: new image CRC-32 mismatch")
)

// Apply reconstructs the new image from oldData and a decoded patch,
// following three-step pipeline.
func Apply(oldData []byte, h Header, elements []DecodedElement) ([]byte, error) {
	if crc.Checksum32(oldData) != h.OldCRC32 {
		return nil, ErrOldCRCMismatch
	}
	newData := make([]byte, h.NewSize)
	for _, el := range elements {
		if err := applyElement(oldData, newData, el); err != nil {
			return nil, fmt.Errorf("patch: applying element at new offset %d: %w", el.Header.NewOffset, err)
		}
	}
	if crc.Checksum32(newData) != h.NewCRC32 {
		return nil, ErrNewCRCMismatch
	}
	return newData, nil
}

func applyElement(oldData, newData []byte, el DecodedElement) error {
	oldSub := oldData[el.Header.OldOffset: el.Header.OldOffset+el.Header.OldLength]
	newSub := newData[el.Header.NewOffset: el.Header.NewOffset+el.Header.NewLength]

	reconstructPreliminary(oldSub, newSub, el.Equivalences, el.ExtraData)
	applyRawDelta(oldSub, newSub, el.Equivalences, el.RawDeltaSkip, el.RawDeltaDiff)

	if el.Header.ExeType == disasm.ExeTypeNoOp {
		return nil // no-op elements carry no references to correct
	}

	oldDis, err := disassemblerFor(el.Header.ExeType, oldSub)
	if err != nil {
		return err
	}
	newDis, err := disassemblerFor(el.Header.ExeType, newSub)
	if err != nil {
		return err
	}
	if newDis.Version() != el.Header.DisassemblerVersion {
		return ErrVersionMismatch
	}
	oldIdx, err := disasm.BuildIndex(oldDis)
	if err != nil {
		return err
	}
	newIdx, err := disasm.BuildIndex(newDis)
	if err != nil {
		return err
	}

	mapper := equivalence.NewOffsetMapper(el.Equivalences, int(el.Header.OldLength), int(el.Header.NewLength))
	return applyReferenceCorrection(oldSub, newSub, oldIdx, newIdx, newDis, mapper, el)
}

// reconstructPreliminary implements step 2a.
func reconstructPreliminary(oldSub, newSub []byte, m equivalence.Map, extraData []byte) {
	dst := 0
	extraPos := 0
	for _, eq := range m {
		gap := int(eq.DstOffset) - dst
		copy(newSub[dst:dst+gap], extraData[extraPos:extraPos+gap])
		extraPos += gap
		dst += gap
		copy(newSub[dst:dst+int(eq.Length)], oldSub[eq.SrcOffset:eq.SrcOffset+eq.Length])
		dst += int(eq.Length)
	}
	copy(newSub[dst:], extraData[extraPos:])
}

// applyRawDelta implements step 2b.
func applyRawDelta(oldSub, newSub []byte, m equivalence.Map, skips []uint32, diffs []int8) {
	copyOffset := int64(-1)
	skipIdx := 0
	base := uint32(0)
	for _, eq := range m {
		for i := uint32(0); i < eq.Length; i++ {
			if skipIdx >= len(skips) {
				return
			}
			target := copyOffset + int64(skips[skipIdx])
			cur := int64(base + i)
			if cur != target {
				continue
			}
			newSub[eq.DstOffset+i] = byte(int(newSub[eq.DstOffset+i]) + int(diffs[skipIdx]))
			copyOffset = target
			skipIdx++
		}
		base += eq.Length
	}
}
