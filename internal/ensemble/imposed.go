// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ensemble

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMismatchedImposedTypes is returned when an imposed pair's old and new
// sub-images detect to different executable types. This is a hard error,
// not a skip.
var ErrMismatchedImposedTypes = errors.New("ensemble: imposed pair exe-type mismatch")

// imposedTuple is one "#+#=#+#" clause: old_offset, old_size, new_offset,
// new_size.
type imposedTuple struct {
	oldOffset, oldSize, newOffset, newSize int
}

// ParseImposedMatches parses an imposed-match string
// "#+#=#+#,#+#=#+#,…" and validates each tuple against the old/new image
// sizes and for overlaps in the new image, then runs detection on each
// sub-image pair: same type keeps the pair, byte-identical sub-images are
// marked Identical, a detection failure skips the pair (non-fatal), and a
// type mismatch is a hard error.
func ParseImposedMatches(s string, oldData, newData []byte) ([]Match, error) {
	tuples, err := parseImposedTuples(s, len(oldData), len(newData))
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, t := range tuples {
		oldSub := oldData[t.oldOffset: t.oldOffset+t.oldSize]
		newSub := newData[t.newOffset: t.newOffset+t.newSize]

		oldEl, oldOK := tryDetectAt(oldData, t.oldOffset)
		newEl, newOK := tryDetectAt(newData, t.newOffset)
		if !oldOK || !newOK || oldEl.Size != t.oldSize || newEl.Size != t.newSize {
			continue // detection failed or didn't span the full tuple: skip, non-fatal
		}
		if oldEl.ExeType != newEl.ExeType {
			return nil, fmt.Errorf("%w: old=%s new=%s at old_offset=%d", ErrMismatchedImposedTypes, oldEl.ExeType, newEl.ExeType, t.oldOffset)
		}
		identical := len(oldSub) == len(newSub) && bytesEqual(oldSub, newSub)
		matches = append(matches, Match{Old: oldEl, New: newEl, Identical: identical})
	}
	return matches, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func parseImposedTuples(s string, oldSize, newSize int) ([]imposedTuple, error) {
	if s == "" {
		return nil, nil
	}
	var tuples []imposedTuple
	for _, clause := range strings.Split(s, ",") {
		t, err := parseImposedClause(clause)
		if err != nil {
			return nil, err
		}
		if t.oldSize <= 0 || t.newSize <= 0 {
			return nil, fmt.Errorf("ensemble: imposed clause %q has a non-positive size", clause)
		}
		if t.oldOffset < 0 || t.oldOffset+t.oldSize > oldSize {
			return nil, fmt.Errorf("ensemble: imposed clause %q old range out of bounds (old image size %d)", clause, oldSize)
		}
		if t.newOffset < 0 || t.newOffset+t.newSize > newSize {
			return nil, fmt.Errorf("ensemble: imposed clause %q new range out of bounds (new image size %d)", clause, newSize)
		}
		tuples = append(tuples, t)
	}
	sortTuplesByNewOffset(tuples)
	for i := 1; i < len(tuples); i++ {
		if tuples[i].newOffset < tuples[i-1].newOffset+tuples[i-1].newSize {
			return nil, fmt.Errorf("ensemble: imposed clauses overlap in the new image at offset %d", tuples[i].newOffset)
		}
	}
	return tuples, nil
}

func sortTuplesByNewOffset(t []imposedTuple) {
	for i := 1; i < len(t); i++ {
		for j := i; j > 0 && t[j].newOffset < t[j-1].newOffset; j-- {
			t[j], t[j-1] = t[j-1], t[j]
		}
	}
}

// parseImposedClause parses one "#+#=#+#" clause.
func parseImposedClause(clause string) (imposedTuple, error) {
	sides := strings.SplitN(clause, "=", 2)
	if len(sides) != 2 {
		return imposedTuple{}, fmt.Errorf("ensemble: malformed imposed clause %q", clause)
	}
	oldOffset, oldSize, err := parseOffsetSize(sides[0])
	if err != nil {
		return imposedTuple{}, fmt.Errorf("ensemble: malformed imposed clause %q: %w", clause, err)
	}
	newOffset, newSize, err := parseOffsetSize(sides[1])
	if err != nil {
		return imposedTuple{}, fmt.Errorf("ensemble: malformed imposed clause %q: %w", clause, err)
	}
	return imposedTuple{oldOffset: oldOffset, oldSize: oldSize, newOffset: newOffset, newSize: newSize}, nil
}

func parseOffsetSize(s string) (offset, size int, err error) {
	parts := strings.SplitN(s, "+", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected offset+size, got %q", s)
	}
	offset64, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	size64, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return int(offset64), int(size64), nil
}
