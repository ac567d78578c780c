// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pecoff

import (
	"github.com/saferwall/zucchini/internal/address"
	"github.com/saferwall/zucchini/internal/buffer"
)

// image holds everything the disassembler needs after a successful parse:
// the validated headers, the section table, and the address translator
// built from the section list.
type image struct {
	data []byte
	view buffer.View
	is64 bool
	imageBase uint64
	opt optionalHeader
	sections []sectionHeader
	translator *address.Translator
}

func parse(data []byte) (*image, error) {
	v := buffer.New(data)

	if v.Len() < dosHeaderMinSize {
		return nil, errTooSmall
	}
	magic, err := v.ReadUint16(0)
	if err != nil || magic != imageDOSSignature {
		return nil, errBadDOSMagic
	}
	elfanew, err := v.ReadUint32(elfanewOffset)
	if err != nil {
		return nil, errBadElfanew
	}
	if elfanew < 4 || elfanew%8 != 0 || uint64(elfanew)+4 > uint64(v.Len()) {
		return nil, errBadElfanew
	}

	sig, err := v.ReadUint32(int(elfanew))
	if err != nil || sig != peSignature {
		return nil, errBadPESignature
	}

	src := buffer.NewSource(v)
	if err := src.Skip(int(elfanew) + 4); err != nil {
		return nil, errBadPESignature
	}

	fh, err := readFileHeader(src)
	if err != nil {
		return nil, err
	}

	optBegin := src.Pos()
	magic2, err := v.ReadUint16(optBegin)
	if err != nil {
		return nil, errBadOptionalMagic
	}
	is64 := magic2 == optHeaderMagicPE32p
	if !is64 && magic2 != optHeaderMagicPE32 {
		return nil, errBadOptionalMagic
	}

	opt, err := readOptionalHeader(src, is64)
	if err != nil {
		return nil, err
	}
	if int(fh.SizeOfOptionalHeader) < src.Pos()-optBegin {
		return nil, errBadOptionalMagic
	}
	if err := src.Skip(int(fh.SizeOfOptionalHeader) - (src.Pos() - optBegin)); err != nil {
		return nil, errBadOptionalMagic
	}

	sections := make([]sectionHeader, 0, fh.NumberOfSections)
	hasCode := false
	var units []address.Unit
	for i := 0; i < int(fh.NumberOfSections); i++ {
		sh, err := readSectionHeader(src)
		if err != nil {
			return nil, err
		}
		if uint64(sh.PointerToRawData)+uint64(sh.SizeOfRawData) > uint64(len(data)) {
			return nil, errSectionOutOfBounds
		}
		if uint64(sh.VirtualAddress)+uint64(sh.VirtualSize) > uint64(opt.SizeOfImage) {
			return nil, errSectionOutOfBounds
		}
		if sh.isCode() {
			hasCode = true
		}
		sections = append(sections, sh)
		units = append(units, address.Unit{
				OffsetBegin: sh.PointerToRawData,
				OffsetSize: sh.SizeOfRawData,
				RvaBegin: sh.VirtualAddress,
				RvaSize: sh.VirtualSize,
		})
	}
	if !hasCode {
		return nil, errNoCodeSection
	}

	tr, err := address.New(units)
	if err != nil {
		return nil, err
	}

	return &image{
		data: data,
		view: v,
		is64: is64,
		imageBase: opt.ImageBase,
		opt: opt,
		sections: sections,
		translator: tr,
	}, nil
}

func readFileHeader(src *buffer.Source) (fileHeader, error) {
	var fh fileHeader
	var err error
	if fh.Machine, err = src.GetUint16(); err != nil {
		return fh, err
	}
	if fh.NumberOfSections, err = src.GetUint16(); err != nil {
		return fh, err
	}
	if fh.TimeDateStamp, err = src.GetUint32(); err != nil {
		return fh, err
	}
	if fh.PointerToSymbolTable, err = src.GetUint32(); err != nil {
		return fh, err
	}
	if fh.NumberOfSymbols, err = src.GetUint32(); err != nil {
		return fh, err
	}
	if fh.SizeOfOptionalHeader, err = src.GetUint16(); err != nil {
		return fh, err
	}
	if fh.Characteristics, err = src.GetUint16(); err != nil {
		return fh, err
	}
	return fh, nil
}

func readOptionalHeader(src *buffer.Source, is64 bool) (optionalHeader, error) {
	var oh optionalHeader
	var err error
	if oh.Magic, err = src.GetUint16(); err != nil {
		return oh, err
	}
	// MajorLinkerVersion, MinorLinkerVersion.
	if err = src.Skip(2); err != nil {
		return oh, err
	}
	// SizeOfCode, SizeOfInitializedData, SizeOfUninitializedData,
	// AddressOfEntryPoint, BaseOfCode[, BaseOfData for PE32].
	skipWords := 5
	if !is64 {
		skipWords = 6
	}
	if err = src.Skip(4 * skipWords); err != nil {
		return oh, err
	}
	if is64 {
		if oh.ImageBase, err = src.GetUint64(); err != nil {
			return oh, err
		}
	} else {
		base32, err := src.GetUint32()
		if err != nil {
			return oh, err
		}
		oh.ImageBase = uint64(base32)
	}
	// SectionAlignment, FileAlignment.
	if err = src.Skip(8); err != nil {
		return oh, err
	}
	// Major/MinorOperatingSystemVersion, Major/MinorImageVersion,
	// Major/MinorSubsystemVersion, Win32VersionValue.
	if err = src.Skip(2*6 + 4); err != nil {
		return oh, err
	}
	if oh.SizeOfImage, err = src.GetUint32(); err != nil {
		return oh, err
	}
	if oh.SizeOfHeaders, err = src.GetUint32(); err != nil {
		return oh, err
	}
	// CheckSum.
	if err = src.Skip(4); err != nil {
		return oh, err
	}
	// Subsystem, DllCharacteristics.
	if err = src.Skip(4); err != nil {
		return oh, err
	}
	// SizeOfStackReserve/Commit, SizeOfHeapReserve/Commit: 4 fields, each
	// 8 bytes on PE32+ and 4 bytes on PE32.
	fieldSize := 4
	if is64 {
		fieldSize = 8
	}
	if err = src.Skip(fieldSize * 4); err != nil {
		return oh, err
	}
	// LoaderFlags.
	if err = src.Skip(4); err != nil {
		return oh, err
	}
	if oh.NumberOfRvaAndSizes, err = src.GetUint32(); err != nil {
		return oh, err
	}
	if oh.NumberOfRvaAndSizes > numDataDirectories {
		return oh, errTooManyDataDirs
	}
	if src.Remaining() < int(oh.NumberOfRvaAndSizes)*8 {
		return oh, errTooManyDataDirs
	}
	for i := 0; i < int(oh.NumberOfRvaAndSizes); i++ {
		va, err := src.GetUint32()
		if err != nil {
			return oh, err
		}
		size, err := src.GetUint32()
		if err != nil {
			return oh, err
		}
		oh.DataDirectory[i] = dataDirectory{VirtualAddress: va, Size: size}
	}
	return oh, nil
}

func readSectionHeader(src *buffer.Source) (sectionHeader, error) {
	var sh sectionHeader
	name, err := src.GetRegion(8)
	if err != nil {
		return sh, err
	}
	copy(sh.Name[:], name)
	if sh.VirtualSize, err = src.GetUint32(); err != nil {
		return sh, err
	}
	if sh.VirtualAddress, err = src.GetUint32(); err != nil {
		return sh, err
	}
	if sh.SizeOfRawData, err = src.GetUint32(); err != nil {
		return sh, err
	}
	if sh.PointerToRawData, err = src.GetUint32(); err != nil {
		return sh, err
	}
	if sh.PointerToRelocations, err = src.GetUint32(); err != nil {
		return sh, err
	}
	if sh.PointerToLineNumbers, err = src.GetUint32(); err != nil {
		return sh, err
	}
	if sh.NumberOfRelocations, err = src.GetUint16(); err != nil {
		return sh, err
	}
	if sh.NumberOfLineNumbers, err = src.GetUint16(); err != nil {
		return sh, err
	}
	if sh.Characteristics, err = src.GetUint32(); err != nil {
		return sh, err
	}
	return sh, nil
}
