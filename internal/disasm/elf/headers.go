// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package elf implements the ELF32/ELF64 disassembler: header validation,
// section extraction (including NOBITS dangling-RVA handling), SHT_REL/
// SHT_RELA relative-relocation reading, Intel rel32 scanning, and ARM
// delegation.
package elf

import "errors"

const magic = "\x7fELF"

// e_ident indices and values.
const (
	eiClass = 4
	eiData = 5
	eiVersion = 6

	classNone = 0
	class32 = 1
	class64 = 2

	dataNone = 0
	dataLittleEndian = 1

	evCurrent = 1
)

// e_type values (ET_EXEC or ET_DYN accepted).
const (
	etExec = 2
	etDyn = 3
)

// e_machine values relevant to the architectures this package recognises.
const (
	emX86 = 3
	emArm = 40
	emX8664 = 62
	emAArch64 = 183
)

// Section types.
const (
	shtNull = 0
	shtNobits = 8
	shtRel = 9
	shtRela = 4
)

// Section flags.
const shfTLS = 0x400

// Relative relocation types, one per architecture.
const (
	r386Relative = 8
	rX8664Relative = 8
	rArmRelative = 23
	rAArch64Relative = 1027
)

var (
	errTooSmall = errors.New("elf: file smaller than an ELF header")
	errBadMagic = errors.New("elf: magic not found")
	errBadClass = errors.New("elf: unrecognised or mismatched EI_CLASS")
	errBadEndian = errors.New("elf: not little-endian")
	errBadVersion = errors.New("elf: unsupported EI_VERSION")
	errBadType = errors.New("elf: e_type is neither ET_EXEC nor ET_DYN")
	errBadMachine = errors.New("elf: e_machine does not match expected architecture")
	errBadShentsize = errors.New("elf: section header entry size mismatch")
	errSectionOOB = errors.New("elf: section escapes file or RVA bounds")
	errNoExecSection = errors.New("elf: no section carries SHF_EXECINSTR")
)

// ehdr carries only the fields the disassembler needs, post the
// bitness-dependent parse.
type ehdr struct {
	class uint8
	machine uint16
	shoff uint64
	shentsize uint16
	shnum uint16
	shstrndx uint16
}

// shdr is one section header, widened to 64-bit fields regardless of class.
type shdr struct {
	nameOff uint32
	typ uint32
	flags uint64
	addr uint64
	offset uint64
	size uint64
	entsize uint64
}

func (s shdr) isExec() bool { return s.flags&0x4 != 0 } // SHF_EXECINSTR
func (s shdr) isAlloc() bool { return s.flags&0x2 != 0 } // SHF_ALLOC
func (s shdr) isNobits() bool { return s.typ == shtNobits }

// Reference type and target-pool tags, private to this package's encoding.
const (
	typeReloc uint8 = 1
	typeAbs32 uint8 = 2
	typeRel32 uint8 = 3
)

const (
	poolRelocTarget uint8 = 1
	poolAddress uint8 = 2
)

const (
	ehdr32Size = 52
	ehdr64Size = 64
	shdr32Size = 40
	shdr64Size = 64

	relEntry32Size = 8
	relEntry64Size = 16
	relaEntry32Size = 12
	relaEntry64Size = 24
)
