// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package address

import "testing"

func TestNewRejectsMismatchedOverlap(t *testing.T) {
	// Scenario F: offset=0..100/rva=0..100 and offset=50..150/rva=200..300.
	// These units don't even overlap in RVA space, so they pass through
	// untouched; the interesting mismatched-delta case is two units whose
	// RVA ranges *do* overlap but whose offset-rva delta disagrees.
	units := []Unit{
		{OffsetBegin: 0, OffsetSize: 100, RvaBegin: 0, RvaSize: 100},
		{OffsetBegin: 50, OffsetSize: 100, RvaBegin: 80, RvaSize: 100},
	}
	if _, err := New(units); err != ErrBadOverlap {
		t.Fatalf("New = %v, want ErrBadOverlap", err)
	}
}

func TestOffsetRvaRoundTrip(t *testing.T) {
	units := []Unit{
		{OffsetBegin: 0, OffsetSize: 100, RvaBegin: 0x1000, RvaSize: 120},
		{OffsetBegin: 100, OffsetSize: 50, RvaBegin: 0x2000, RvaSize: 50},
	}
	tr, err := New(units)
	if err != nil {
		t.Fatalf("New = %v", err)
	}

	oc := NewOffsetToRvaCache()
	rc := NewRvaToOffsetCache()

	for _, o := range []uint32{0, 50, 99, 100, 149} {
		rva, ok := tr.OffsetToRva(o, oc)
		if !ok {
			t.Fatalf("OffsetToRva(%d) failed", o)
		}
		back, ok := tr.RvaToOffset(rva, rc)
		if !ok || back != o {
			t.Fatalf("RvaToOffset(OffsetToRva(%d)=%d) = %d, %v, want %d", o, rva, back, ok, o)
		}
	}

	// Dangling RVA: 0x1000+100.. 0x1000+120 has no file backing.
	danglingRva := uint32(0x1000 + 110)
	fakeOff, ok := tr.RvaToOffset(danglingRva, rc)
	if !ok {
		t.Fatalf("RvaToOffset(dangling) failed")
	}
	if fakeOff < tr.FakeOffsetBegin() {
		t.Fatalf("expected fake offset >= %d, got %d", tr.FakeOffsetBegin(), fakeOff)
	}
	rva2, ok := tr.OffsetToRva(fakeOff, oc)
	if !ok || rva2 != danglingRva {
		t.Fatalf("OffsetToRva(fake) = %d, %v, want %d", rva2, ok, danglingRva)
	}
}

func TestTouchingSameDeltaMerges(t *testing.T) {
	// offset=0..100/rva=0..100 and offset=100..150/rva=100..150 share delta 0
	// and touch exactly at rva=100: they should merge into one unit.
	units := []Unit{
		{OffsetBegin: 0, OffsetSize: 100, RvaBegin: 0, RvaSize: 100},
		{OffsetBegin: 100, OffsetSize: 50, RvaBegin: 100, RvaSize: 50},
	}
	tr, err := New(units)
	if err != nil {
		t.Fatalf("New = %v", err)
	}
	got := tr.Units()
	if len(got) != 1 {
		t.Fatalf("expected touching same-delta units to merge into 1, got %d: %+v", len(got), got)
	}
	if got[0].OffsetSize != 150 || got[0].RvaSize != 150 {
		t.Fatalf("merged unit = %+v, want size 150/150", got[0])
	}
}

func TestTouchingDifferingDeltaKeepsBoth(t *testing.T) {
	// offset=0..100/rva=0..100 (delta 0) and offset=150..200/rva=100..150
	// (delta 50) touch exactly at rva=100 but disagree on delta: both units
	// are kept, with no error.
	units := []Unit{
		{OffsetBegin: 0, OffsetSize: 100, RvaBegin: 0, RvaSize: 100},
		{OffsetBegin: 150, OffsetSize: 50, RvaBegin: 100, RvaSize: 50},
	}
	tr, err := New(units)
	if err != nil {
		t.Fatalf("New = %v, want nil", err)
	}
	if len(tr.Units()) != 2 {
		t.Fatalf("expected touching differing-delta units kept separate, got %d", len(tr.Units()))
	}
}

func TestEmptyUnitsDropped(t *testing.T) {
	units := []Unit{
		{OffsetBegin: 0, OffsetSize: 0, RvaBegin: 0, RvaSize: 0},
		{OffsetBegin: 0, OffsetSize: 10, RvaBegin: 0x1000, RvaSize: 10},
	}
	tr, err := New(units)
	if err != nil {
		t.Fatalf("New = %v", err)
	}
	if len(tr.Units()) != 1 {
		t.Fatalf("expected empty unit dropped, got %d units", len(tr.Units()))
	}
}
