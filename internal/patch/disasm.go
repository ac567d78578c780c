// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package patch

import (
	"github.com/saferwall/zucchini/internal/disasm"
	"github.com/saferwall/zucchini/internal/disasm/noop"
)

// disassemblerFor builds the Disassembler matching exeType over data,
// falling back to the no-op passthrough for disasm.ExeTypeNoOp (which has
// no registered factory: lists it as out of scope for the
// core, interface-only).
func disassemblerFor(exeType disasm.ExeType, data []byte) (disasm.Disassembler, error) {
	if exeType == disasm.ExeTypeNoOp {
		return noop.New(data), nil
	}
	for _, factory := range disasm.Factories {
		d, err := factory(data)
		if err != nil {
			continue
		}
		if d.ExeType() == exeType {
			return d, nil
		}
	}
	return nil, disasm.ErrNotRecognised
}
