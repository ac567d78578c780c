// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package ensemble implements the ElementFinder and EnsembleMatcher:
// detecting embedded executables within an old/new archive pair and
// pairing them up, by heuristic histogram matching or by an explicit
// imposed-match string.
package ensemble

import (
	"errors"

	"github.com/saferwall/zucchini/internal/disasm"
)

// maxElements is the per-image cap on detected elements.
const maxElements = 256

// Element is one detected embedded executable: its offset and size within
// the enclosing archive, and the exe type its disassembler recognised.
type Element struct {
	Offset int
	Size int
	ExeType disasm.ExeType
}

func (e Element) end() int { return e.Offset + e.Size }

// ErrTooManyElements is returned when detection would exceed maxElements.
var ErrTooManyElements = errors.New("ensemble: too many detected elements")

// FindElements implements ElementFinder: it walks data byte by byte,
// attempting every registered disasm.Factory at each position; on the
// first factory that recognises the bytes there (size >= MinProgramSize),
// it emits an Element and skips past it, otherwise it advances one byte.
func FindElements(data []byte) ([]Element, error) {
	var out []Element
	pos := 0
	for pos < len(data) {
		el, ok := tryDetectAt(data, pos)
		if !ok {
			pos++
			continue
		}
		if len(out) >= maxElements {
			return nil, ErrTooManyElements
		}
		out = append(out, el)
		pos = el.end()
	}
	return out, nil
}

func tryDetectAt(data []byte, pos int) (Element, bool) {
	sub := data[pos:]
	for _, factory := range disasm.Factories {
		d, err := factory(sub)
		if err != nil {
			continue
		}
		size := d.Size()
		if size < disasm.MinProgramSize || size > len(sub) {
			continue
		}
		return Element{Offset: pos, Size: size, ExeType: d.ExeType()}, true
	}
	return Element{}, false
}
