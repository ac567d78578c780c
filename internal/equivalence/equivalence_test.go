// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package equivalence

import "testing"

func TestPruneAndSortBySourceTruncatesAtReaper(t *testing.T) {
	m := Map{
		{SrcOffset: 0, DstOffset: 0, Length: 10, Similarity: 5},
		{SrcOffset: 2, DstOffset: 100, Length: 20, Similarity: 50},
	}
	out := pruneAndSortBySource(m)
	if len(out) != 2 {
		t.Fatalf("expected 2 units after pruning, got %d: %+v", len(out), out)
	}
	if out[0].Length != 2 {
		t.Fatalf("expected first unit truncated to length 2, got %d", out[0].Length)
	}
}

func TestExtendedForwardProjectShiftsFakeOffset(t *testing.T) {
	om := NewOffsetMapper(nil, 100, 50)
	got := om.ExtendedForwardProject(150)
	if got != 100 { // 50 (new size) + (150-100)
		t.Fatalf("got %d, want 100", got)
	}
}

func TestExtendedForwardProjectUsesNearestUnit(t *testing.T) {
	m := Map{{SrcOffset: 10, DstOffset: 20, Length: 5}}
	om := NewOffsetMapper(m, 100, 100)
	got := om.ExtendedForwardProject(12)
	if got != 22 {
		t.Fatalf("got %d, want 22", got)
	}
}
