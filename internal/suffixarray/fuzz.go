// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

//go:build gofuzz

package suffixarray

// Fuzz builds a suffix array over data treated as a byte-wide alphabet and
// checks the result is a permutation of [0, len(data)) in sorted-suffix
// order, the one structural invariant Build must never violate.
func Fuzz(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	text := make([]uint32, len(data))
	for i, b := range data {
		text[i] = uint32(b)
	}
	sa := Build(text)
	if len(sa) != len(text) {
		panic("suffixarray: length mismatch")
	}
	seen := make([]bool, len(sa))
	for _, pos := range sa {
		if pos < 0 || int(pos) >= len(seen) || seen[pos] {
			panic("suffixarray: not a permutation")
		}
		seen[pos] = true
	}
	for i := 1; i < len(sa); i++ {
		if compareSuffixes(text, sa[i-1], sa[i]) > 0 {
			panic("suffixarray: output not sorted")
		}
	}
	return 1
}

func compareSuffixes(text []uint32, a, b int32) int {
	for int(a) < len(text) && int(b) < len(text) {
		if text[a] != text[b] {
			if text[a] < text[b] {
				return -1
			}
			return 1
		}
		a++
		b++
	}
	switch {
	case int(a) == len(text) && int(b) == len(text):
		return 0
	case int(a) == len(text):
		return -1
	default:
		return 1
	}
}
