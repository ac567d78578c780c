// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package elf

import (
	"encoding/binary"
	"testing"
)

func buildMinimalELF64(t *testing.T) []byte {
	t.Helper()

	const (
		shoff = ehdr64Size
		sectionRaw = 0x200
		headerSize = shoff + 2*shdr64Size // null section + one exec section
	)

	buf := make([]byte, headerSize+sectionRaw)
	copy(buf[0:4], magic)
	buf[eiClass] = class64
	buf[eiData] = dataLittleEndian
	buf[eiVersion] = evCurrent

	binary.LittleEndian.PutUint16(buf[16:], etExec)
	binary.LittleEndian.PutUint16(buf[18:], emX8664)
	binary.LittleEndian.PutUint32(buf[20:], 1) // e_version
	// e_entry, e_phoff: 8 bytes each, left zero.
	binary.LittleEndian.PutUint64(buf[40:], shoff) // e_shoff
	// e_flags at 48 (4 bytes), e_ehsize at 52 (2 bytes) left zero.
	binary.LittleEndian.PutUint16(buf[58:], shdr64Size) // e_shentsize
	binary.LittleEndian.PutUint16(buf[60:], 2) // e_shnum
	binary.LittleEndian.PutUint16(buf[62:], 0) // e_shstrndx

	// Section 0: SHT_NULL, all zero (already).

	// Section 1: exec section covering the trailing payload.
	s := shoff + shdr64Size
	binary.LittleEndian.PutUint32(buf[s+4:], 1) // sh_type = PROGBITS
	binary.LittleEndian.PutUint64(buf[s+8:], 0x6) // sh_flags: ALLOC|EXECINSTR
	binary.LittleEndian.PutUint64(buf[s+16:], 0x1000) // sh_addr
	binary.LittleEndian.PutUint64(buf[s+24:], uint64(headerSize)) // sh_offset
	binary.LittleEndian.PutUint64(buf[s+32:], sectionRaw) // sh_size

	return buf
}

func TestParseMinimalELF64(t *testing.T) {
	data := buildMinimalELF64(t)
	im, err := parse(data, emX8664)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !im.is64 {
		t.Fatalf("expected 64-bit class")
	}
	foundExec := false
	for _, s := range im.sections {
		if s.isExec() {
			foundExec = true
		}
	}
	if !foundExec {
		t.Fatalf("expected an executable section")
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	data := buildMinimalELF64(t)
	data[0] = 0
	if _, err := parse(data, emX8664); err != errBadMagic {
		t.Fatalf("expected errBadMagic, got %v", err)
	}
}

func TestParseRejectsWrongMachine(t *testing.T) {
	data := buildMinimalELF64(t)
	if _, err := parse(data, emX86); err != errBadMachine {
		t.Fatalf("expected errBadMachine, got %v", err)
	}
}
