// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package patch

import (
	"bytes"
	"testing"

	"github.com/saferwall/zucchini/internal/disasm"
	"github.com/saferwall/zucchini/internal/ensemble"
)

func TestNoOpRoundTrip(t *testing.T) {
	oldData := []byte("the quick brown fox jumps over the lazy dog, again and again")
	newData := []byte("the quick brown fox leaps over one lazy dog, again and again!")

	matches := []ensemble.Match{{
			Old: ensemble.Element{Offset: 0, Size: len(oldData), ExeType: disasm.ExeTypeNoOp},
			New: ensemble.Element{Offset: 0, Size: len(newData), ExeType: disasm.ExeTypeNoOp},
	}}

	patchBytes, err := Encode(oldData, newData, matches)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	h, elements, err := Decode(patchBytes)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if h.OldSize != uint32(len(oldData)) || h.NewSize != uint32(len(newData)) {
		t.Fatalf("unexpected header sizes: %+v", h)
	}

	got, err := Apply(oldData, h, elements)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !bytes.Equal(got, newData) {
		t.Fatalf("round trip mismatch:\n got=%q\nwant=%q", got, newData)
	}
}

func TestApplyRejectsOldCRCMismatch(t *testing.T) {
	oldData := []byte("hello world")
	newData := []byte("hello world!")
	matches := []ensemble.Match{{
			Old: ensemble.Element{Offset: 0, Size: len(oldData), ExeType: disasm.ExeTypeNoOp},
			New: ensemble.Element{Offset: 0, Size: len(newData), ExeType: disasm.ExeTypeNoOp},
	}}
	patchBytes, err := Encode(oldData, newData, matches)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	h, elements, err := Decode(patchBytes)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	corrupted := append([]byte(nil), oldData...)
	corrupted[0] ^= 0xFF
	if _, err := Apply(corrupted, h, elements); err != ErrOldCRCMismatch {
		t.Fatalf("expected ErrOldCRCMismatch, got %v", err)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	data := make([]byte, 24)
	if _, _, err := Decode(data); err != ErrBadMagic {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}
