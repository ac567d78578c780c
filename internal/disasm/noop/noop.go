// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package noop implements the passthrough disassembler: an image with no
// recognised references at all, used by GenerateBufferRaw and as the
// universal fallback when no format-aware disassembler recognises an
// input.
package noop

import "github.com/saferwall/zucchini/internal/disasm"

// Disassembler treats its whole input as an opaque byte blob: zero
// reference groups, one equivalence-map iteration.
type Disassembler struct {
	size int
}

// New wraps data as a no-op element spanning the whole slice.
func New(data []byte) *Disassembler {
	return &Disassembler{size: len(data)}
}

// ExeType implements disasm.Disassembler.
func (d *Disassembler) ExeType() disasm.ExeType { return disasm.ExeTypeNoOp }

// Version implements disasm.Disassembler.
func (d *Disassembler) Version() uint16 { return disasm.CurrentVersion }

// Size implements disasm.Disassembler.
func (d *Disassembler) Size() int { return d.size }

// Groups implements disasm.Disassembler: no-op has none.
func (d *Disassembler) Groups() []disasm.Group { return nil }

// NumEquivalenceIterations implements disasm.Disassembler.
func (d *Disassembler) NumEquivalenceIterations() int { return 1 }
