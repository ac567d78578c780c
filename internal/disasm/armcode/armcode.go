// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package armcode implements the ARM-family relative-address encodings:
// five AArch32 (ARM/Thumb-2) encodings, three AArch64
// encodings, the ARM/Thumb-2 section classifier, and the rel32 finder that
// walks a gap looking for them.
package armcode

import "encoding/binary"

// Encoding is one instruction form's displacement codec: Decode/Encode work
// on the raw instruction bits; Read/Write additionally apply the
// architecture's PC bias and alignment rules.
type Encoding interface {
	// InstrWidth is the instruction's own size in bytes (2 or 4).
	InstrWidth() int
	// Decode extracts the signed displacement and the target's required
	// alignment from code (InstrWidth bytes, little-endian).
	Decode(code []byte) (disp int32, targetAlign uint8, ok bool)
	// Encode writes disp into code, preserving every non-displacement bit.
	Encode(disp int32, code []byte) bool
	// pcBias is the PC-relative addition: +8 ARM, +4 Thumb, +0 AArch64.
	pcBias() int32
}

// Read performs Decode, PC-relative addition, and alignment-down.
func Read(e Encoding, instrRva uint32, code []byte) (targetRva uint32, ok bool) {
	disp, align, ok := e.Decode(code)
	if !ok {
		return 0, false
	}
	t := int64(instrRva) + int64(e.pcBias()) + int64(disp)
	if t < 0 {
		return 0, false
	}
	target := uint32(t)
	if align > 1 {
		target &^= uint32(align) - 1
	}
	return target, true
}

// Write performs alignment-up of targetRva before encoding the displacement.
func Write(e Encoding, instrRva uint32, targetRva uint32, code []byte) bool {
	disp := int64(targetRva) - int64(instrRva) - int64(e.pcBias())
	return e.Encode(int32(disp), code)
}

func signExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}

// --- AArch32 ---

// a24 implements ARM B/BL (encoding A1) and BLX (encoding A2).
type a24 struct{}

func (a24) InstrWidth() int { return 4 }
func (a24) pcBias() int32 { return 8 }

func (a24) Decode(code []byte) (int32, uint8, bool) {
	if len(code) < 4 {
		return 0, 0, false
	}
	instr := binary.LittleEndian.Uint32(code)
	imm24 := instr & 0x00FFFFFF
	if instr>>28 == 0xF && (instr>>25)&0x7 == 0x5 {
		// BLX encoding A2: switches to Thumb, target is 2-aligned.
		h := (instr >> 24) & 1
		disp := signExtend(imm24, 24)*4 + int32(h*2)
		return disp, 2, true
	}
	if (instr>>25)&0x7 == 0x5 {
		return signExtend(imm24, 24) * 4, 4, true
	}
	return 0, 0, false
}

func (a24) Encode(disp int32, code []byte) bool {
	if len(code) < 4 {
		return false
	}
	instr := binary.LittleEndian.Uint32(code)
	if instr>>28 == 0xF && (instr>>25)&0x7 == 0x5 {
		if disp%2 != 0 {
			return false
		}
		h := uint32(0)
		if disp&2 != 0 {
			h = 1
		}
		imm24 := uint32(disp>>2) & 0x00FFFFFF
		instr = (instr &^ 0x01FFFFFF) | (h << 24) | imm24
		binary.LittleEndian.PutUint32(code, instr)
		return true
	}
	if disp%4 != 0 {
		return false
	}
	imm24 := uint32(disp>>2) & 0x00FFFFFF
	instr = (instr &^ 0x00FFFFFF) | imm24
	binary.LittleEndian.PutUint32(code, instr)
	return true
}

// t8 implements Thumb B<c> (encoding T1): conditional, 16-bit.
type t8 struct{}

func (t8) InstrWidth() int { return 2 }
func (t8) pcBias() int32 { return 4 }

func (t8) Decode(code []byte) (int32, uint8, bool) {
	if len(code) < 2 {
		return 0, 0, false
	}
	hw := binary.LittleEndian.Uint16(code)
	if hw>>12 != 0xD {
		return 0, 0, false
	}
	cond := (hw >> 8) & 0xF
	if cond == 0xE || cond == 0xF {
		return 0, 0, false // 1110/1111 are not conditional branches here
	}
	imm8 := uint32(hw & 0xFF)
	return signExtend(imm8, 8) * 2, 2, true
}

func (t8) Encode(disp int32, code []byte) bool {
	if len(code) < 2 || disp%2 != 0 {
		return false
	}
	hw := binary.LittleEndian.Uint16(code)
	imm8 := uint16(disp>>1) & 0xFF
	hw = (hw &^ 0x00FF) | imm8
	binary.LittleEndian.PutUint16(code, hw)
	return true
}

// t11 implements Thumb B (encoding T2): unconditional, 16-bit.
type t11 struct{}

func (t11) InstrWidth() int { return 2 }
func (t11) pcBias() int32 { return 4 }

func (t11) Decode(code []byte) (int32, uint8, bool) {
	if len(code) < 2 {
		return 0, 0, false
	}
	hw := binary.LittleEndian.Uint16(code)
	if hw>>11 != 0x1C { // 11100
		return 0, 0, false
	}
	imm11 := uint32(hw & 0x7FF)
	return signExtend(imm11, 11) * 2, 2, true
}

func (t11) Encode(disp int32, code []byte) bool {
	if len(code) < 2 || disp%2 != 0 {
		return false
	}
	hw := binary.LittleEndian.Uint16(code)
	imm11 := uint16(disp>>1) & 0x7FF
	hw = (hw &^ 0x07FF) | imm11
	binary.LittleEndian.PutUint16(code, hw)
	return true
}

// t20 implements Thumb B.cond (encoding T3): conditional, 32-bit.
type t20 struct{}

func (t20) InstrWidth() int { return 4 }
func (t20) pcBias() int32 { return 4 }

func (t20) Decode(code []byte) (int32, uint8, bool) {
	if len(code) < 4 {
		return 0, 0, false
	}
	hw1 := binary.LittleEndian.Uint16(code[0:2])
	hw2 := binary.LittleEndian.Uint16(code[2:4])
	if hw1>>11 != 0x1E { // 11110
		return 0, 0, false
	}
	cond := (hw1 >> 6) & 0xF
	if cond == 0xE || cond == 0xF {
		return 0, 0, false // reserved for T4's unconditional forms
	}
	if (hw2>>14)&0x3 != 0x2 {
		return 0, 0, false
	}
	s := uint32((hw1 >> 10) & 1)
	imm6 := uint32(hw1 & 0x3F)
	j1 := uint32((hw2 >> 13) & 1)
	j2 := uint32((hw2 >> 11) & 1)
	imm11 := uint32(hw2 & 0x7FF)
	bits := (s << 20) | (j2 << 19) | (j1 << 18) | (imm6 << 12) | (imm11 << 1)
	return signExtend(bits, 21), 2, true
}

func (t20) Encode(disp int32, code []byte) bool {
	if len(code) < 4 || disp%2 != 0 {
		return false
	}
	u := uint32(disp)
	s := (u >> 20) & 1
	j2 := (u >> 19) & 1
	j1 := (u >> 18) & 1
	imm6 := (u >> 12) & 0x3F
	imm11 := (u >> 1) & 0x7FF
	hw1 := binary.LittleEndian.Uint16(code[0:2])
	hw2 := binary.LittleEndian.Uint16(code[2:4])
	hw1 = (hw1 &^ 0x0400) | uint16(s<<10)
	hw1 = (hw1 &^ 0x003F) | uint16(imm6)
	hw2 = (hw2 &^ 0x2000) | uint16(j1<<13)
	hw2 = (hw2 &^ 0x0800) | uint16(j2<<11)
	hw2 = (hw2 &^ 0x07FF) | uint16(imm11)
	binary.LittleEndian.PutUint16(code[0:2], hw1)
	binary.LittleEndian.PutUint16(code[2:4], hw2)
	return true
}

// t24 implements Thumb B/BL (T4/T1) and BLX (T2): unconditional, 32-bit.
type t24 struct{}

func (t24) InstrWidth() int { return 4 }
func (t24) pcBias() int32 { return 4 }

func (t24) Decode(code []byte) (int32, uint8, bool) {
	if len(code) < 4 {
		return 0, 0, false
	}
	hw1 := binary.LittleEndian.Uint16(code[0:2])
	hw2 := binary.LittleEndian.Uint16(code[2:4])
	if hw1>>11 != 0x1E { // 11110
		return 0, 0, false
	}
	if (hw2>>14)&0x3 != 0x3 {
		return 0, 0, false
	}
	isBLX := (hw2>>12)&1 == 0 // BL has bit12=1; BLX (T2) has bit12=0

	s := uint32((hw1 >> 10) & 1)
	imm10 := uint32(hw1 & 0x3FF)
	j1 := uint32((hw2 >> 13) & 1)
	j2 := uint32((hw2 >> 11) & 1)
	imm11 := uint32(hw2 & 0x7FF)

	i1 := (^(j1 ^ s)) & 1
	i2 := (^(j2 ^ s)) & 1
	bits := (s << 24) | (i1 << 23) | (i2 << 22) | (imm10 << 12) | (imm11 << 1)
	align := uint8(2)
	if isBLX {
		// BLX T2's H bit (imm11 LSB) must be 0; target is 4-aligned even
		// though this instruction is 2-aligned.
		bits &^= 0x2
		align = 4
	}
	return signExtend(bits, 25), align, true
}

func (t24) Encode(disp int32, code []byte) bool {
	if len(code) < 4 {
		return false
	}
	hw2 := binary.LittleEndian.Uint16(code[2:4])
	isBLX := (hw2>>12)&1 == 0
	if isBLX && disp%4 != 0 {
		return false
	}
	if !isBLX && disp%2 != 0 {
		return false
	}
	u := uint32(disp)
	s := (u >> 24) & 1
	i1 := (u >> 23) & 1
	i2 := (u >> 22) & 1
	imm10 := (u >> 12) & 0x3FF
	imm11 := (u >> 1) & 0x7FF
	j1 := (^(i1) ^ s) & 1
	j2 := (^(i2) ^ s) & 1

	hw1 := binary.LittleEndian.Uint16(code[0:2])
	hw1 = (hw1 &^ 0x0400) | uint16(s<<10)
	hw1 = (hw1 &^ 0x03FF) | uint16(imm10)
	hw2 = (hw2 &^ 0x2000) | uint16(j1<<13)
	hw2 = (hw2 &^ 0x0800) | uint16(j2<<11)
	hw2 = (hw2 &^ 0x07FF) | uint16(imm11)
	binary.LittleEndian.PutUint16(code[0:2], hw1)
	binary.LittleEndian.PutUint16(code[2:4], hw2)
	return true
}

// --- AArch64 ---

// immd14 implements TBZ/TBNZ.
type immd14 struct{}

func (immd14) InstrWidth() int { return 4 }
func (immd14) pcBias() int32 { return 0 }

func (immd14) Decode(code []byte) (int32, uint8, bool) {
	if len(code) < 4 {
		return 0, 0, false
	}
	instr := binary.LittleEndian.Uint32(code)
	if (instr>>24)&0x7E != 0x36 { // bits 30:24 = 0110110/0110111 (b5 in bit31)
		return 0, 0, false
	}
	imm14 := (instr >> 5) & 0x3FFF
	return signExtend(imm14, 14) * 4, 4, true
}

func (immd14) Encode(disp int32, code []byte) bool {
	if len(code) < 4 || disp%4 != 0 {
		return false
	}
	instr := binary.LittleEndian.Uint32(code)
	imm14 := uint32(disp>>2) & 0x3FFF
	instr = (instr &^ (0x3FFF << 5)) | (imm14 << 5)
	binary.LittleEndian.PutUint32(code, instr)
	return true
}

// immd19 implements B.cond and CBZ/CBNZ.
type immd19 struct{}

func (immd19) InstrWidth() int { return 4 }
func (immd19) pcBias() int32 { return 0 }

func (immd19) Decode(code []byte) (int32, uint8, bool) {
	if len(code) < 4 {
		return 0, 0, false
	}
	instr := binary.LittleEndian.Uint32(code)
	top8 := instr >> 24
	isBCond := top8 == 0x54
	isCBZ := (instr>>24)&0x7F == 0x34 || (instr>>24)&0x7F == 0x35
	if !isBCond && !isCBZ {
		return 0, 0, false
	}
	imm19 := (instr >> 5) & 0x7FFFF
	return signExtend(imm19, 19) * 4, 4, true
}

func (immd19) Encode(disp int32, code []byte) bool {
	if len(code) < 4 || disp%4 != 0 {
		return false
	}
	instr := binary.LittleEndian.Uint32(code)
	imm19 := uint32(disp>>2) & 0x7FFFF
	instr = (instr &^ (0x7FFFF << 5)) | (imm19 << 5)
	binary.LittleEndian.PutUint32(code, instr)
	return true
}

// immd26 implements B and BL.
type immd26 struct{}

func (immd26) InstrWidth() int { return 4 }
func (immd26) pcBias() int32 { return 0 }

func (immd26) Decode(code []byte) (int32, uint8, bool) {
	if len(code) < 4 {
		return 0, 0, false
	}
	instr := binary.LittleEndian.Uint32(code)
	if instr>>26 != 0x5 && instr>>26 != 0x25 { // B: 000101, BL: 100101
		return 0, 0, false
	}
	imm26 := instr & 0x03FFFFFF
	return signExtend(imm26, 26) * 4, 4, true
}

func (immd26) Encode(disp int32, code []byte) bool {
	if len(code) < 4 || disp%4 != 0 {
		return false
	}
	instr := binary.LittleEndian.Uint32(code)
	imm26 := uint32(disp>>2) & 0x03FFFFFF
	instr = (instr &^ 0x03FFFFFF) | imm26
	binary.LittleEndian.PutUint32(code, instr)
	return true
}

// AArch32Encodings lists the five recognised AArch32 forms, longest-match
// first so a 32-bit Thumb-2 instruction is never misread as two 16-bit ones.
var AArch32Encodings = []Encoding{a24{}, t24{}, t20{}, t11{}, t8{}}

// AArch64Encodings lists the three recognised AArch64 forms.
var AArch64Encodings = []Encoding{immd26{}, immd19{}, immd14{}}
