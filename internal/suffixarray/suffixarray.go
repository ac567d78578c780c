// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package suffixarray builds a suffix array over the abstract alphabet
// produced by internal/encview and supports the lower-bound search the
// equivalence engine probes against.
//
// Build uses SA-IS (induced suffix sort): linear in the length of the
// input text, independent of alphabet size once the alphabet has been
// compressed to a dense range.
package suffixarray

import "sort"

// Build constructs a suffix array (an array of starting positions sorted by
// suffix) for the given text using SA-IS.
func Build(text []uint32) []int32 {
	n := len(text)
	if n == 0 {
		return make([]int32, 0)
	}
	if n == 1 {
		return []int32{0}
	}

	ranks, k := compressAlphabet(text)

	// Append a sentinel strictly smaller than every rank; SA-IS relies on a
	// unique minimal terminator to seed the induction. Suffix order among
	// the original n positions is unaffected, since the sentinel is common
	// to every compared suffix's tail.
	s := make([]int32, n+1)
	for i, r := range ranks {
		s[i] = r + 1
	}
	s[n] = 0

	full := saisRec(s, k+1)
	sa := make([]int32, n)
	copy(sa, full[1:])
	return sa
}

// compressAlphabet maps text's distinct values to a dense 0..K-1 range,
// preserving relative order, so bucket arrays sized by alphabet stay
// bounded by len(text) regardless of how sparse the input values are.
func compressAlphabet(text []uint32) ([]int32, int) {
	uniq := append([]uint32(nil), text...)
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })
	out := uniq[:0:0]
	for i, v := range uniq {
		if i == 0 || v != uniq[i-1] {
			out = append(out, v)
		}
	}
	rankOf := make(map[uint32]int32, len(out))
	for i, v := range out {
		rankOf[v] = int32(i)
	}
	ranks := make([]int32, len(text))
	for i, v := range text {
		ranks[i] = rankOf[v]
	}
	return ranks, len(out)
}

// saisRec runs one level of induced suffix sorting over s, whose values lie
// in [0, k) and whose final element is the unique minimum (0), returning
// the suffix array of s (including the sentinel's own trailing suffix at
// sa[0]).
func saisRec(s []int32, k int) []int32 {
	n := len(s)
	sa := make([]int32, n)
	if n == 1 {
		sa[0] = 0
		return sa
	}

	// S-type if the suffix at i is lexicographically smaller than the one
	// at i+1; L-type otherwise. The sentinel position is S-type by
	// definition (nothing is smaller).
	isS := make([]bool, n)
	isS[n-1] = true
	for i := n - 2; i >= 0; i-- {
		switch {
		case s[i] < s[i+1]:
			isS[i] = true
		case s[i] > s[i+1]:
			isS[i] = false
		default:
			isS[i] = isS[i+1]
		}
	}

	isLMS := func(i int) bool {
		return i > 0 && isS[i] && !isS[i-1]
	}

	bucketSizes := make([]int32, k)
	for _, c := range s {
		bucketSizes[c]++
	}

	var lmsPositions []int32
	for i := 0; i < n; i++ {
		if isLMS(i) {
			lmsPositions = append(lmsPositions, int32(i))
		}
	}

	placeLMS := func(order []int32) {
		for i := range sa {
			sa[i] = -1
		}
		tails := bucketEnds(bucketSizes, k)
		for i := len(order) - 1; i >= 0; i-- {
			p := order[i]
			c := s[p]
			tails[c]--
			sa[tails[c]] = p
		}
	}

	placeLMS(lmsPositions)
	induceL(s, sa, isS, bucketSizes, k)
	induceS(s, sa, isS, bucketSizes, k)

	// Name each LMS substring by its rank among the others, in the order
	// induced above (their correct sorted order, per the SA-IS proof, even
	// though non-LMS entries of sa are not yet final).
	lmsNames := make([]int32, n)
	for i := range lmsNames {
		lmsNames[i] = -1
	}
	name := int32(0)
	prev := int32(-1)
	for _, p := range sa {
		if p < 0 || !isLMS(int(p)) {
			continue
		}
		if prev >= 0 && !lmsSubstringsEqual(s, isS, isLMS, prev, p, n) {
			name++
		}
		lmsNames[p] = name
		prev = p
	}

	reduced := make([]int32, len(lmsPositions))
	for i, p := range lmsPositions {
		reduced[i] = lmsNames[p]
	}

	var reducedSA []int32
	if int(name)+1 == len(lmsPositions) {
		reducedSA = make([]int32, len(lmsPositions))
		for i, v := range reduced {
			reducedSA[v] = int32(i)
		}
	} else {
		reducedSA = saisRec(reduced, int(name)+1)
	}

	sortedLMS := make([]int32, len(lmsPositions))
	for i, idx := range reducedSA {
		sortedLMS[i] = lmsPositions[idx]
	}

	placeLMS(sortedLMS)
	induceL(s, sa, isS, bucketSizes, k)
	induceS(s, sa, isS, bucketSizes, k)

	return sa
}

// lmsSubstringsEqual reports whether the LMS substrings starting at x and y
// (both LMS positions) are identical, including their trailing type run up
// to (and including) the next LMS position.
func lmsSubstringsEqual(s []int32, isS []bool, isLMS func(int) bool, x, y int32, n int) bool {
	if x == y {
		return true
	}
	for d := int32(0); ; d++ {
		xd, yd := x+d, y+d
		xEnd := int(xd) >= n
		yEnd := int(yd) >= n
		if xEnd || yEnd {
			return xEnd && yEnd
		}
		if s[xd] != s[yd] || isS[xd] != isS[yd] {
			return false
		}
		if d > 0 {
			xLMS := isLMS(int(xd))
			yLMS := isLMS(int(yd))
			if xLMS || yLMS {
				return xLMS && yLMS
			}
		}
	}
}

// bucketEnds returns, for each character, the one-past-the-end index of its
// bucket in a stable left-to-right bucket layout.
func bucketEnds(bucketSizes []int32, k int) []int32 {
	ends := make([]int32, k)
	var sum int32
	for i := 0; i < k; i++ {
		sum += bucketSizes[i]
		ends[i] = sum
	}
	return ends
}

// induceL fills in every L-type suffix's position by scanning sa left to
// right: whenever a placed suffix's predecessor is L-type, that predecessor
// belongs at the current head of its own bucket.
func induceL(s []int32, sa []int32, isS []bool, bucketSizes []int32, k int) {
	n := len(s)
	heads := make([]int32, k)
	var sum int32
	for i := 0; i < k; i++ {
		heads[i] = sum
		sum += bucketSizes[i]
	}
	for i := 0; i < n; i++ {
		p := sa[i]
		if p <= 0 {
			continue
		}
		j := p - 1
		if !isS[j] {
			c := s[j]
			sa[heads[c]] = j
			heads[c]++
		}
	}
}

// induceS is induceL's mirror, filling in S-type suffixes by scanning sa
// right to left: whenever a placed suffix's predecessor is S-type, that
// predecessor belongs at the current tail of its own bucket.
func induceS(s []int32, sa []int32, isS []bool, bucketSizes []int32, k int) {
	n := len(s)
	tails := bucketEnds(bucketSizes, k)
	for i := n - 1; i >= 0; i-- {
		p := sa[i]
		if p <= 0 {
			continue
		}
		j := p - 1
		if isS[j] {
			c := s[j]
			tails[c]--
			sa[tails[c]] = j
		}
	}
}

// CompareSuffix lexicographically compares two abstract-alphabet sequences,
// treating a shorter sequence that is a prefix of the longer one as lesser
// (lower-bound probes need this).
func CompareSuffix(a, b []uint32) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] < b[i] {
			return -1
		}
		if a[i] > b[i] {
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// LowerBound finds the first suffix (by index into sa) that is
// lexicographically >= pattern, via binary search over text's suffix array.
func LowerBound(sa []int32, text []uint32, pattern []uint32) int {
	lo, hi := 0, len(sa)
	for lo < hi {
		mid := (lo + hi) / 2
		suffix := text[sa[mid]:]
		if CompareSuffix(suffix, pattern) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// NaiveBuild is a generic-sort reference implementation, kept standalone
// (rather than folded into Build) so tests can assert the two agree on
// small inputs.
func NaiveBuild(text []uint32) []int32 {
	n := len(text)
	sa := make([]int32, n)
	for i := range sa {
		sa[i] = int32(i)
	}
	sort.Slice(sa, func(i, j int) bool {
		return CompareSuffix(text[sa[i]:], text[sa[j]:]) < 0
	})
	return sa
}
