// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ensemble

import (
	"bytes"
	"math"
	"sort"

	"github.com/saferwall/zucchini/internal/disasm"
)

// Match pairs one old element with one new element, or records that the
// pair is byte-identical (and therefore excluded from patch generation).
type Match struct {
	Old, New Element
	Identical bool
}

// histogram is a 65,536-bin count of consecutive overlapping byte pairs.
type histogram [65536]uint32

func buildHistogram(b []byte) histogram {
	var h histogram
	for i := 0; i+1 < len(b); i++ {
		h[uint16(b[i])<<8|uint16(b[i+1])]++
	}
	return h
}

// l1Distance is the L1-normalised histogram distance, scaled by
// 1/(sizeof(a)+sizeof(b)).
func l1Distance(a, b histogram, sizeA, sizeB int) float64 {
	var sum uint64
	for i := range a {
		d := int64(a[i]) - int64(b[i])
		if d < 0 {
			d = -d
		}
		sum += uint64(d)
	}
	denom := float64(sizeA + sizeB)
	if denom == 0 {
		return 0
	}
	return float64(sum) / denom
}

const (
	maxSizeDiff = 2 * 1024 * 1024
	maxSizeRatio = 2.0
	stdDevFactor = 1.9
	toleranceFloor = 0.1
)

// candidate is one new-element-to-old-element pairing under consideration,
// before outlier rejection.
type candidate struct {
	newIdx, oldIdx int
	dist float64
	identical bool
}

// HeuristicMatch pairs each new element with the best-scoring old element
// of the same exe type, rejects outliers by distance-from-mean, and marks
// byte-identical pairs with Identical (they stay in the result).
func HeuristicMatch(oldData, newData []byte, oldElements, newElements []Element) []Match {
	oldHists := make([]histogram, len(oldElements))
	for i, e := range oldElements {
		oldHists[i] = buildHistogram(oldData[e.Offset:e.end()])
	}

	var candidates []candidate

	for ni, ne := range newElements {
		newBytes := newData[ne.Offset:ne.end()]
		newHist := buildHistogram(newBytes)

		best := -1
		bestDist := math.MaxFloat64
		bestIdentical := false
		for oi, oe := range oldElements {
			if oe.ExeType != ne.ExeType {
				continue
			}
			sizeDiff := ne.Size - oe.Size
			if sizeDiff < 0 {
				sizeDiff = -sizeDiff
			}
			ratio := float64(maxInt(ne.Size, oe.Size)) / float64(maxInt(1, minInt(ne.Size, oe.Size)))
			if sizeDiff > maxSizeDiff && ratio > maxSizeRatio {
				continue
			}
			d := l1Distance(oldHists[oi], newHist, oe.Size, ne.Size)
			if d < bestDist {
				bestDist = d
				best = oi
				bestIdentical = ne.Size == oe.Size && bytes.Equal(oldData[oe.Offset:oe.end()], newBytes)
			}
		}
		if best < 0 {
			continue
		}
		candidates = append(candidates, candidate{newIdx: ni, oldIdx: best, dist: bestDist, identical: bestIdentical})
	}

	if len(candidates) == 0 {
		return nil
	}

	mean, stddev := distanceStats(candidates)
	tolerance := stddev * stdDevFactor
	if tolerance < toleranceFloor {
		tolerance = toleranceFloor
	}

	var out []Match
	for _, c := range candidates {
		if c.dist > mean+tolerance {
			continue // outlier
		}
		out = append(out, Match{
				Old: oldElements[c.oldIdx],
				New: newElements[c.newIdx],
				Identical: c.identical,
		})
	}
	return out
}

func distanceStats(cs []candidate) (mean, stddev float64) {
	n := float64(len(cs))
	for _, c := range cs {
		mean += c.dist
	}
	mean /= n
	for _, c := range cs {
		d := c.dist - mean
		stddev += d * d
	}
	stddev = math.Sqrt(stddev / n)
	return mean, stddev
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Trim is the DEX post-filter: if more than one matched pair is of DEX
// type, drop all of them (MultiDex cross-file content motion defeats
// per-element patching).
func Trim(matches []Match) []Match {
	dexCount := 0
	for _, m := range matches {
		if m.New.ExeType == disasm.ExeTypeDex {
			dexCount++
		}
	}
	if dexCount <= 1 {
		return matches
	}
	out := matches[:0:0]
	for _, m := range matches {
		if m.New.ExeType == disasm.ExeTypeDex {
			continue
		}
		out = append(out, m)
	}
	return out
}

// sortMatchesByNewOffset orders matches by the ascending new-element offset
// expected by the patch encoder.
func sortMatchesByNewOffset(matches []Match) {
	sort.Slice(matches, func(i, j int) bool { return matches[i].New.Offset < matches[j].New.Offset })
}
