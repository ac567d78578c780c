// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package image

import "testing"

func readerOver(refs []Reference) func() ReferenceReader {
	return func() ReferenceReader {
		i := 0
		return func() (Reference, bool) {
			if i >= len(refs) {
				return Reference{}, false
			}
			r := refs[i]
			i++
			return r, true
		}
	}
}

func TestBuildNonOverlapping(t *testing.T) {
	groups := []GroupSpec{
		{
			Traits: TypeTraits{Width: 4, Type: 1, Pool: 0},
			MakeReader: readerOver([]Reference{{Location: 0, Target: 100}, {Location: 10, Target: 200}}),
		},
	}
	idx, err := Build(32, groups)
	if err != nil {
		t.Fatalf("Build = %v", err)
	}
	if !idx.IsToken(0) || idx.IsToken(1) {
		t.Fatalf("token painting wrong at reference body")
	}
	if !idx.IsToken(4) {
		t.Fatalf("byte 4 should be a raw token")
	}
	pool := idx.TargetPool(0)
	if pool.Len() != 2 {
		t.Fatalf("pool len = %d, want 2", pool.Len())
	}
}

func TestBuildOverlapFails(t *testing.T) {
	groups := []GroupSpec{
		{
			Traits: TypeTraits{Width: 4, Type: 1, Pool: 0},
			MakeReader: readerOver([]Reference{{Location: 0, Target: 100}, {Location: 2, Target: 200}}),
		},
	}
	if _, err := Build(32, groups); err != ErrOverlap {
		t.Fatalf("Build = %v, want ErrOverlap", err)
	}
}

func TestTargetPoolNearest(t *testing.T) {
	p := NewTargetPool(0)
	p.InsertTargets([]uint32{10, 20, 30})
	if k, ok := p.KeyForNearestOffset(14); !ok || k != 0 {
		t.Fatalf("KeyForNearestOffset(14) = %d, %v, want 0", k, ok)
	}
	if k, ok := p.KeyForNearestOffset(16); !ok || k != 1 {
		t.Fatalf("KeyForNearestOffset(16) = %d, %v, want 1", k, ok)
	}
	// Tie at distance 5 on both sides favors the lower key.
	if k, ok := p.KeyForNearestOffset(15); !ok || k != 0 {
		t.Fatalf("KeyForNearestOffset(15) = %d, %v, want 0", k, ok)
	}
}
