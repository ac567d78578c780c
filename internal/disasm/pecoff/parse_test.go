// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pecoff

import (
	"encoding/binary"
	"testing"

	"github.com/saferwall/zucchini/internal/disasm"
)

// buildMinimalPE32 assembles a tiny, syntactically valid PE32 image with a
// single code section and no data directories populated, for exercising
// header validation without a real compiled binary on disk.
func buildMinimalPE32(t *testing.T) []byte {
	t.Helper()

	const (
		elfanew = 0x80
		fileHdrOff = elfanew + 4
		optHdrOff = fileHdrOff + fileHeaderSize
		optHdrSize = 2 + 2 + 4*6 + 4 + 8 + 2*6 + 4 + 4 + 4 + 4 + 4 + 4*4 + 4 + 4 + 16*8
		sectionOff = optHdrOff + optHdrSize
		sectionSize = sectionHeaderSize
		sectionRaw = 0x200
		headerSize = sectionOff + sectionSize
	)

	buf := make([]byte, headerSize+sectionRaw)
	binary.LittleEndian.PutUint16(buf[0:], imageDOSSignature)
	binary.LittleEndian.PutUint32(buf[elfanewOffset:], elfanew)
	binary.LittleEndian.PutUint32(buf[elfanew:], peSignature)

	// File header.
	binary.LittleEndian.PutUint16(buf[fileHdrOff:], 0x014c) // machine: i386
	binary.LittleEndian.PutUint16(buf[fileHdrOff+2:], 1) // NumberOfSections
	binary.LittleEndian.PutUint16(buf[fileHdrOff+16:], uint16(optHdrSize))

	// Optional header (PE32).
	o := optHdrOff
	binary.LittleEndian.PutUint16(buf[o:], optHeaderMagicPE32)
	o += 2 + 2 // magic + linker versions
	o += 4 * 6 // SizeOfCode..BaseOfData
	binary.LittleEndian.PutUint32(buf[o:], 0x400000) // ImageBase (PE32: 4 bytes)
	o += 4
	o += 8 // SectionAlignment, FileAlignment
	o += 16 // os/image/subsystem versions + win32 version
	sizeOfImageOff := o
	binary.LittleEndian.PutUint32(buf[sizeOfImageOff:], 0x2000)
	o += 4
	binary.LittleEndian.PutUint32(buf[o:], uint32(headerSize)) // SizeOfHeaders
	o += 4
	o += 4 // checksum
	o += 4 // subsystem + dll characteristics
	o += 4 * 4 // stack/heap reserve/commit (PE32: 4 bytes each)
	o += 4 // loader flags
	binary.LittleEndian.PutUint32(buf[o:], 16) // NumberOfRvaAndSizes
	o += 4
	// 16 data directories left zero.

	// Section header: one code section.
	s := sectionOff
	copy(buf[s:s+8], ".text")
	binary.LittleEndian.PutUint32(buf[s+8:], sectionRaw) // VirtualSize
	binary.LittleEndian.PutUint32(buf[s+12:], 0x1000) // VirtualAddress
	binary.LittleEndian.PutUint32(buf[s+16:], sectionRaw) // SizeOfRawData
	binary.LittleEndian.PutUint32(buf[s+20:], uint32(headerSize)) // PointerToRawData
	binary.LittleEndian.PutUint32(buf[s+36:], codeCharacteristics) // Characteristics

	return buf
}

func TestParseMinimalPE32(t *testing.T) {
	data := buildMinimalPE32(t)
	im, err := parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if im.is64 {
		t.Fatalf("expected PE32, got PE32+")
	}
	if len(im.sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(im.sections))
	}
	if !im.sections[0].isCode() {
		t.Fatalf("expected section to be flagged as code")
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	data := buildMinimalPE32(t)
	data[0] = 0 // corrupt "MZ"
	if _, err := parse(data); err != errBadDOSMagic {
		t.Fatalf("expected errBadDOSMagic, got %v", err)
	}
}

func TestParseRejectsTruncated(t *testing.T) {
	data := buildMinimalPE32(t)
	if _, err := parse(data[:16]); err == nil {
		t.Fatalf("expected an error parsing a truncated image")
	}
}

func TestWin32X86FactoryRejectsNonPE(t *testing.T) {
	if _, err := newWin32X86([]byte("not a pe file")); err != disasm.ErrNotRecognised {
		t.Fatalf("expected ErrNotRecognised, got %v", err)
	}
}
