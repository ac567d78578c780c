// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

//go:build gofuzz

package pecoff

// Fuzz drives DOS/NT header and section-table parsing over arbitrary
// bytes; a malformed image must come back as disasm.ErrNotRecognised,
// never a panic.
func Fuzz(data []byte) int {
	im, err := parse(data)
	if err != nil {
		return 0
	}
	if im.is64 {
		if _, err := newWin32X64(data); err != nil {
			panic("pecoff: parse succeeded but newWin32X64 rejected the same bytes")
		}
	} else {
		if _, err := newWin32X86(data); err != nil {
			panic("pecoff: parse succeeded but newWin32X86 rejected the same bytes")
		}
	}
	return 1
}
