// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package zucchini is a binary differential compression engine: given an
// old and a new executable, it produces a compact patch that reconstructs
// the new file byte-for-byte when applied to the old one, by exploiting the
// structure of PE and ELF executables and the machine-code references they
// contain.
package zucchini

import (
	"io"

	"github.com/saferwall/zucchini/internal/disasm"
	_ "github.com/saferwall/zucchini/internal/disasm/elf"
	_ "github.com/saferwall/zucchini/internal/disasm/pecoff"
	"github.com/saferwall/zucchini/internal/ensemble"
	"github.com/saferwall/zucchini/internal/patch"
)

// Status mirrors the top-level status codes of the embedder interface.
type Status int

const (
	StatusSuccess Status = iota
	StatusInvalidParameter
	StatusFileReadError
	StatusFileWriteError
	StatusPatchReadError
	StatusPatchWriteError
	StatusInvalidOldImage
	StatusInvalidNewImage
	StatusDiskFull
	StatusIOError
	StatusFatal
)

// GenerateBuffer produces a patch from oldData to newData using heuristic
// ensemble matching, writing the encoded patch to w.
func GenerateBuffer(oldData, newData []byte, w io.Writer) Status {
	return generate(oldData, newData, "", w)
}

// GenerateBufferImposed produces a patch using an explicit imposed-match
// string instead of heuristic matching.
func GenerateBufferImposed(oldData, newData []byte, imposedMatches string, w io.Writer) Status {
	return generate(oldData, newData, imposedMatches, w)
}

// GenerateBufferRaw produces a single-element patch with exe_type = NoOp
// and no reference detection.
func GenerateBufferRaw(oldData, newData []byte, w io.Writer) Status {
	matches := []ensemble.Match{{
			Old: ensemble.Element{Offset: 0, Size: len(oldData), ExeType: disasm.ExeTypeNoOp},
			New: ensemble.Element{Offset: 0, Size: len(newData), ExeType: disasm.ExeTypeNoOp},
	}}
	return encodeAndWrite(oldData, newData, matches, w)
}

func generate(oldData, newData []byte, imposedMatches string, w io.Writer) Status {
	if oldData == nil || newData == nil {
		return StatusInvalidParameter
	}

	var matches []ensemble.Match
	if imposedMatches != "" {
		m, err := ensemble.ParseImposedMatches(imposedMatches, oldData, newData)
		if err != nil {
			return StatusInvalidParameter
		}
		matches = m
	} else {
		oldElements, err := ensemble.FindElements(oldData)
		if err != nil {
			return StatusFatal
		}
		newElements, err := ensemble.FindElements(newData)
		if err != nil {
			return StatusFatal
		}
		matches = ensemble.Trim(ensemble.HeuristicMatch(oldData, newData, oldElements, newElements))
	}

	if len(matches) == 0 {
		// Heuristic failure: fall back to single-element raw-mode patch
		// generation rather than fail outright.
		return GenerateBufferRaw(oldData, newData, w)
	}
	matches = fillGapsWithNoOp(oldData, newData, matches)
	return encodeAndWrite(oldData, newData, matches, w)
}

// span is a half-open [begin, end) byte range of the new image.
type span struct{ begin, end int }

// fillGapsWithNoOp covers any stretch of the new image not claimed by a
// detected/matched element with a synthetic NoOp element pointing at the
// corresponding old-image byte range, so the element blocks always exactly
// tile [0, len(newData)).
func fillGapsWithNoOp(oldData, newData []byte, matches []ensemble.Match) []ensemble.Match {
	var covered []span
	for _, m := range matches {
		if m.Identical {
			continue // patch.Encode emits no block for identical matches
		}
		covered = append(covered, span{m.New.Offset, m.New.Offset + m.New.Size})
	}
	sortSpansByBegin(covered)

	out := append([]ensemble.Match(nil), matches...)
	pos := 0
	for _, c := range covered {
		if c.begin > pos {
			out = append(out, noOpSpan(len(oldData), pos, c.begin))
		}
		if c.end > pos {
			pos = c.end
		}
	}
	if pos < len(newData) {
		out = append(out, noOpSpan(len(oldData), pos, len(newData)))
	}
	return out
}

// noOpSpan maps a NoOp-covered gap in the new image to the same absolute
// offset range in old, clamped to old's bounds: unmatched regions have no
// known correspondence between the two images, so this is a best-effort
// placement rather than a claim that the bytes there are related.
func noOpSpan(oldSize, begin, end int) ensemble.Match {
	oldBegin := begin
	if oldBegin > oldSize {
		oldBegin = oldSize
	}
	oldEnd := end
	if oldEnd > oldSize {
		oldEnd = oldSize
	}
	return ensemble.Match{
		Old: ensemble.Element{Offset: oldBegin, Size: oldEnd - oldBegin, ExeType: disasm.ExeTypeNoOp},
		New: ensemble.Element{Offset: begin, Size: end - begin, ExeType: disasm.ExeTypeNoOp},
	}
}

func sortSpansByBegin(s []span) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].begin < s[j-1].begin; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func encodeAndWrite(oldData, newData []byte, matches []ensemble.Match, w io.Writer) Status {
	patchBytes, err := patch.Encode(oldData, newData, matches)
	if err != nil {
		return StatusFatal
	}
	if _, err := w.Write(patchBytes); err != nil {
		return StatusPatchWriteError
	}
	return StatusSuccess
}

// ApplyBuffer reconstructs the new image by applying the patch read from r
// to oldData, writing the result to w.
func ApplyBuffer(oldData []byte, r io.Reader, w io.Writer) Status {
	patchBytes, err := io.ReadAll(r)
	if err != nil {
		return StatusPatchReadError
	}
	h, elements, err := patch.Decode(patchBytes)
	if err != nil {
		return StatusPatchReadError
	}
	newData, err := patch.Apply(oldData, h, elements)
	if err != nil {
		switch err {
		case patch.ErrOldCRCMismatch:
			return StatusInvalidOldImage
		case patch.ErrNewCRCMismatch:
			return StatusInvalidNewImage
		default:
			return StatusFatal
		}
	}
	if _, err := w.Write(newData); err != nil {
		return StatusFileWriteError
	}
	return StatusSuccess
}
