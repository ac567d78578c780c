// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ensemble

import (
	"testing"

	"github.com/saferwall/zucchini/internal/disasm"
)

func TestTrimDropsMultipleDexPairs(t *testing.T) {
	matches := []Match{
		{New: Element{ExeType: disasm.ExeTypeDex}},
		{New: Element{ExeType: disasm.ExeTypeDex}},
		{New: Element{ExeType: disasm.ExeTypeWin32X86}},
	}
	out := Trim(matches)
	if len(out) != 1 {
		t.Fatalf("expected only the non-DEX match to survive, got %d", len(out))
	}
}

func TestTrimKeepsSingleDexPair(t *testing.T) {
	matches := []Match{
		{New: Element{ExeType: disasm.ExeTypeDex}},
		{New: Element{ExeType: disasm.ExeTypeWin32X86}},
	}
	out := Trim(matches)
	if len(out) != 2 {
		t.Fatalf("expected both matches to survive a single DEX pair, got %d", len(out))
	}
}

func TestParseImposedMatchesRejectsOverlap(t *testing.T) {
	old := make([]byte, 100)
	nw := make([]byte, 100)
	_, err := ParseImposedMatches("0+10=0+10,5+10=5+10", old, nw)
	if err == nil {
		t.Fatal("expected an overlap error")
	}
}

func TestParseImposedMatchesRejectsOutOfBounds(t *testing.T) {
	old := make([]byte, 10)
	nw := make([]byte, 10)
	_, err := ParseImposedMatches("0+20=0+5", old, nw)
	if err == nil {
		t.Fatal("expected an out-of-bounds error")
	}
}

func TestFindElementsEmptyInput(t *testing.T) {
	els, err := FindElements(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(els) != 0 {
		t.Fatalf("expected no elements, got %d", len(els))
	}
}
