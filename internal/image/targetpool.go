// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package image

import "sort"

// TargetPool is the sorted, deduplicated set of target offsets shared by
// one or more reference types (the "pool" they all point into), plus the
// list of type tags that reference it.
type TargetPool struct {
	Tag uint8
	Types []uint8
	targets []uint32
	// labels[key] is the affinity label assigned to targets[key] by the
	// equivalence engine; 0 means unlabeled.
	labels []uint32
}

// NewTargetPool returns an empty pool for the given pool tag.
func NewTargetPool(tag uint8) *TargetPool {
	return &TargetPool{Tag: tag}
}

// AddType records that typeTag's references share this pool.
func (p *TargetPool) AddType(typeTag uint8) {
	for _, t := range p.Types {
		if t == typeTag {
			return
		}
	}
	p.Types = append(p.Types, typeTag)
}

// InsertTargets folds offsets into the pool, then sorts and deduplicates.
// This tradeoff favours peak memory over insertion speed: callers should
// batch inserts rather than call this once per target.
func (p *TargetPool) InsertTargets(offsets []uint32) {
	p.targets = append(p.targets, offsets...)
	sort.Slice(p.targets, func(i, j int) bool { return p.targets[i] < p.targets[j] })
	out := p.targets[:0:0]
	for i, o := range p.targets {
		if i == 0 || o != p.targets[i-1] {
			out = append(out, o)
		}
	}
	p.targets = out
	p.labels = make([]uint32, len(p.targets))
}

// InsertFromReferences inserts every reference's Target field as a target.
func (p *TargetPool) InsertFromReferences(refs []Reference) {
	offsets := make([]uint32, len(refs))
	for i, r := range refs {
		offsets[i] = r.Target
	}
	p.InsertTargets(offsets)
}

// Len reports the number of distinct targets.
func (p *TargetPool) Len() int { return len(p.targets) }

// Targets returns the sorted distinct target offsets.
func (p *TargetPool) Targets() []uint32 { return p.targets }

// KeyForOffset returns the index of offset within the sorted target list,
// requiring an exact match.
func (p *TargetPool) KeyForOffset(offset uint32) (int, bool) {
	i := sort.Search(len(p.targets), func(i int) bool { return p.targets[i] >= offset })
	if i < len(p.targets) && p.targets[i] == offset {
		return i, true
	}
	return 0, false
}

// KeyForNearestOffset returns the key of the bracketing target closest to
// offset, ties broken toward the lower key. Empty pools have no answer.
func (p *TargetPool) KeyForNearestOffset(offset uint32) (int, bool) {
	n := len(p.targets)
	if n == 0 {
		return 0, false
	}
	i := sort.Search(n, func(i int) bool { return p.targets[i] >= offset })
	if i == 0 {
		return 0, true
	}
	if i == n {
		return n - 1, true
	}
	if p.targets[i] == offset {
		return i, true
	}
	// targets[i-1] < offset < targets[i]; tie (equal distance) favors lower.
	lowDist := offset - p.targets[i-1]
	highDist := p.targets[i] - offset
	if highDist < lowDist {
		return i, true
	}
	return i - 1, true
}

// OffsetForKey returns the target offset stored at key.
func (p *TargetPool) OffsetForKey(key int) (uint32, bool) {
	if key < 0 || key >= len(p.targets) {
		return 0, false
	}
	return p.targets[key], true
}

// Label returns the affinity label for the target at key (0 = unlabeled).
func (p *TargetPool) Label(key int) uint32 {
	if key < 0 || key >= len(p.labels) {
		return 0
	}
	return p.labels[key]
}

// SetLabel assigns an affinity label to the target at key.
func (p *TargetPool) SetLabel(key int, label uint32) {
	if key >= 0 && key < len(p.labels) {
		p.labels[key] = label
	}
}

// MaxLabel returns the largest label assigned across this pool's targets.
func (p *TargetPool) MaxLabel() uint32 {
	var max uint32
	for _, l := range p.labels {
		if l > max {
			max = l
		}
	}
	return max
}
