// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

//go:build gofuzz

package elf

// Fuzz drives ELF header parsing over arbitrary
// bytes for both the x86 and x86-64 machine types; a malformed image must
// come back as disasm.ErrNotRecognised, never a panic.
func Fuzz(data []byte) int {
	ok := 0
	if _, err := newElfX86(data); err == nil {
		ok = 1
	}
	if _, err := newElfX64(data); err == nil {
		ok = 1
	}
	return ok
}
