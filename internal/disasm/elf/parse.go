// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package elf

import (
	"github.com/saferwall/zucchini/internal/address"
	"github.com/saferwall/zucchini/internal/buffer"
)

// image holds everything the disassembler needs after a successful parse.
type image struct {
	data []byte
	view buffer.View
	is64 bool
	machine uint16
	sections []shdr
	translator *address.Translator
}

func parse(data []byte, wantMachine uint16) (*image, error) {
	v := buffer.New(data)
	if v.Len() < ehdr32Size {
		return nil, errTooSmall
	}
	ident, err := v.Sub(0, 16)
	if err != nil || string(ident[:4]) != magic {
		return nil, errBadMagic
	}
	class := ident[eiClass]
	if class != class32 && class != class64 {
		return nil, errBadClass
	}
	is64 := class == class64
	if ident[eiData] != dataLittleEndian {
		return nil, errBadEndian
	}
	if ident[eiVersion] != evCurrent {
		return nil, errBadVersion
	}

	src := buffer.NewSource(v)
	if err := src.Skip(16); err != nil {
		return nil, errTooSmall
	}
	etype, err := src.GetUint16()
	if err != nil {
		return nil, errTooSmall
	}
	if etype != etExec && etype != etDyn {
		return nil, errBadType
	}
	machine, err := src.GetUint16()
	if err != nil {
		return nil, errTooSmall
	}
	if machine != wantMachine {
		return nil, errBadMachine
	}
	if _, err := src.GetUint32(); err != nil { // e_version
		return nil, errTooSmall
	}

	wordSize := 4
	if is64 {
		wordSize = 8
	}
	if _, err := src.GetRegion(wordSize); err != nil { // e_entry
		return nil, errTooSmall
	}
	if _, err := src.GetRegion(wordSize); err != nil { // e_phoff
		return nil, errTooSmall
	}
	shoff, err := getWord(src, is64) // e_shoff
	if err != nil {
		return nil, errTooSmall
	}
	if err := src.Skip(4); err != nil { // e_flags
		return nil, errTooSmall
	}
	if err := src.Skip(2); err != nil { // e_ehsize
		return nil, errTooSmall
	}
	if err := src.Skip(2 * 2); err != nil { // e_phentsize, e_phnum
		return nil, errTooSmall
	}
	shentsize, err := src.GetUint16()
	if err != nil {
		return nil, errTooSmall
	}
	wantShentsize := uint16(shdr32Size)
	if is64 {
		wantShentsize = shdr64Size
	}
	if shentsize != wantShentsize {
		return nil, errBadShentsize
	}
	shnum, err := src.GetUint16()
	if err != nil {
		return nil, errTooSmall
	}
	if _, err := src.GetUint16(); err != nil { // e_shstrndx
		return nil, errTooSmall
	}

	if uint64(shoff)+uint64(shnum)*uint64(shentsize) > uint64(len(data)) {
		return nil, errSectionOOB
	}

	sections := make([]shdr, 0, shnum)
	hasExec := false
	var units []address.Unit
	for i := 0; i < int(shnum); i++ {
		pos := int(shoff) + i*int(shentsize)
		sh, err := readSectionHeader(v, pos, is64)
		if err != nil {
			return nil, err
		}
		if sh.typ == shtNull {
			sections = append(sections, sh)
			continue
		}
		if sh.isNobits() {
			// .bss and TLS NOBITS sections contribute dangling RVAs only.
			if sh.addr+sh.size > address.RvaBound {
				return nil, errSectionOOB
			}
		} else if sh.isAlloc() {
			if sh.offset+sh.size > uint64(len(data)) {
				return nil, errSectionOOB
			}
		}
		if sh.isAlloc() {
			offSize := sh.size
			if sh.isNobits() {
				offSize = 0
			}
			units = append(units, address.Unit{
					OffsetBegin: uint32(sh.offset),
					OffsetSize: uint32(offSize),
					RvaBegin: uint32(sh.addr),
					RvaSize: uint32(sh.size),
			})
		}
		if sh.isExec() {
			hasExec = true
		}
		sections = append(sections, sh)
	}
	if !hasExec {
		return nil, errNoExecSection
	}

	tr, err := address.New(units)
	if err != nil {
		return nil, err
	}

	return &image{
		data: data,
		view: v,
		is64: is64,
		machine: machine,
		sections: sections,
		translator: tr,
	}, nil
}

func getWord(src *buffer.Source, is64 bool) (uint64, error) {
	if is64 {
		return src.GetUint64()
	}
	v, err := src.GetUint32()
	return uint64(v), err
}

func readSectionHeader(v buffer.View, pos int, is64 bool) (shdr, error) {
	var sh shdr
	var err error
	if sh.nameOff, err = v.ReadUint32(pos); err != nil {
		return sh, errSectionOOB
	}
	typ, err := v.ReadUint32(pos + 4)
	if err != nil {
		return sh, errSectionOOB
	}
	sh.typ = typ
	if is64 {
		flags, err := v.ReadUint64(pos + 8)
		if err != nil {
			return sh, errSectionOOB
		}
		addr, err := v.ReadUint64(pos + 16)
		if err != nil {
			return sh, errSectionOOB
		}
		offset, err := v.ReadUint64(pos + 24)
		if err != nil {
			return sh, errSectionOOB
		}
		size, err := v.ReadUint64(pos + 32)
		if err != nil {
			return sh, errSectionOOB
		}
		entsize, err := v.ReadUint64(pos + 56)
		if err != nil {
			return sh, errSectionOOB
		}
		sh.flags, sh.addr, sh.offset, sh.size, sh.entsize = flags, addr, offset, size, entsize
		return sh, nil
	}
	flags32, err := v.ReadUint32(pos + 8)
	if err != nil {
		return sh, errSectionOOB
	}
	addr32, err := v.ReadUint32(pos + 12)
	if err != nil {
		return sh, errSectionOOB
	}
	offset32, err := v.ReadUint32(pos + 16)
	if err != nil {
		return sh, errSectionOOB
	}
	size32, err := v.ReadUint32(pos + 20)
	if err != nil {
		return sh, errSectionOOB
	}
	entsize32, err := v.ReadUint32(pos + 36)
	if err != nil {
		return sh, errSectionOOB
	}
	sh.flags = uint64(flags32)
	sh.addr = uint64(addr32)
	sh.offset = uint64(offset32)
	sh.size = uint64(size32)
	sh.entsize = uint64(entsize32)
	return sh, nil
}
