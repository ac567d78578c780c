// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package suffixarray

import (
	"reflect"
	"testing"
)

func toValues(s string) []uint32 {
	out := make([]uint32, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = uint32(s[i])
	}
	return out
}

func TestBuildMatchesNaive(t *testing.T) {
	inputs := []string{"banana", "mississippi", "aaaaaa", "", "a", "abcabcabc", "zyxwvutsrqponmlkjihgfedcba"}
	for _, in := range inputs {
		text := toValues(in)
		got := Build(text)
		want := NaiveBuild(text)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Build(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLowerBound(t *testing.T) {
	text := toValues("banana")
	sa := Build(text)
	// "banana" suffixes sorted: a, ana, anana, banana, na, nana
	i := LowerBound(sa, text, toValues("an"))
	if text[sa[i]] != 'a' {
		t.Fatalf("LowerBound(an) landed on suffix starting %c", text[sa[i]])
	}
	got := string(rune(text[sa[i]])) + string(rune(text[sa[i]+1]))
	if got != "an" {
		t.Fatalf("LowerBound(an) = %q, want prefix an", got)
	}
}
