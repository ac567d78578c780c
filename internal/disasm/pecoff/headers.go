// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package pecoff implements the PE32/PE32+ disassembler: header validation,
// section extraction, base-relocation-table walking, abs32 harvesting, and
// rel32 opcode scanning for Win32X86 and Win32X64.
package pecoff

import "errors"

// DOS header signatures.
const (
	imageDOSSignature = 0x5A4D // "MZ"
)

// elfanewOffset is the fixed position of e_lfanew within the DOS header;
// the disassembler reads only that field and the leading magic, never the
// legacy MS-DOS stub fields in between.
const elfanewOffset = 0x3c
const dosHeaderMinSize = elfanewOffset + 4

// PE/COFF signature and optional header magics.
const (
	peSignature = 0x00004550 // "PE\0\0"
	optHeaderMagicPE32 = 0x10b
	optHeaderMagicPE32p = 0x20b
)

// Section characteristics relevant to locating code.
const (
	scnCntCode = 0x00000020
	scnMemExecute = 0x20000000
	scnMemRead = 0x40000000
	codeCharacteristics = scnCntCode | scnMemExecute | scnMemRead
)

// Data directory indices (the base relocation table is index 5).
const (
	dirExport = 0
	dirImport = 1
	dirBaseReloc = 5
	numDataDirectories = 16
)

// Base relocation entry types.
const (
	relBasedAbsolute = 0
	relBasedHighLow = 3 // x86
	relBasedDir64 = 10 // x64
)

// Reference type and target-pool tags (image.TypeTraits.Type/Pool), private
// to this package's byte-stream encoding. reloc entries and abs32 pointers
// are kept in distinct pools: a reloc's target is a pointer-cell location
// elsewhere in the image, while abs32's target (and rel32's) is a resolved
// address in the shared code/data address space.
const (
	typeReloc uint8 = 1
	typeAbs32 uint8 = 2
	typeRel32 uint8 = 3
)

const (
	poolRelocTarget uint8 = 1
	poolAddress uint8 = 2
)

var (
	errTooSmall = errors.New("pecoff: file smaller than a DOS header")
	errBadDOSMagic = errors.New("pecoff: DOS header magic not found")
	errBadElfanew = errors.New("pecoff: e_lfanew out of range or misaligned")
	errBadPESignature = errors.New("pecoff: PE signature not found")
	errBadOptionalMagic = errors.New("pecoff: optional header magic does not match bitness")
	errTooManyDataDirs = errors.New("pecoff: number_of_rva_and_sizes out of range")
	errSectionOutOfBounds = errors.New("pecoff: section escapes file or image bounds")
	errNoCodeSection = errors.New("pecoff: no section has the code characteristic")
	errBadRelocBlock = errors.New("pecoff: malformed base relocation block")
)

// fileHeader is IMAGE_FILE_HEADER.
type fileHeader struct {
	Machine uint16
	NumberOfSections uint16
	TimeDateStamp uint32
	PointerToSymbolTable uint32
	NumberOfSymbols uint32
	SizeOfOptionalHeader uint16
	Characteristics uint16
}

const fileHeaderSize = 20

// dataDirectory is IMAGE_DATA_DIRECTORY.
type dataDirectory struct {
	VirtualAddress uint32
	Size uint32
}

// optionalHeader carries only the fields the disassembler needs, common to
// both PE32 and PE32+ after the bitness-dependent prefix is parsed
// separately.
type optionalHeader struct {
	Magic uint16
	ImageBase uint64
	SizeOfImage uint32
	SizeOfHeaders uint32
	NumberOfRvaAndSizes uint32
	DataDirectory [numDataDirectories]dataDirectory
}

// sectionHeader is IMAGE_SECTION_HEADER.
type sectionHeader struct {
	Name [8]byte
	VirtualSize uint32
	VirtualAddress uint32
	SizeOfRawData uint32
	PointerToRawData uint32
	PointerToRelocations uint32
	PointerToLineNumbers uint32
	NumberOfRelocations uint16
	NumberOfLineNumbers uint16
	Characteristics uint32
}

const sectionHeaderSize = 40

func (s sectionHeader) isCode() bool {
	return s.Characteristics&codeCharacteristics == codeCharacteristics
}

func (s sectionHeader) rvaEnd() uint32 { return s.VirtualAddress + s.VirtualSize }
