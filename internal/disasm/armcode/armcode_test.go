// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package armcode

import (
	"encoding/binary"
	"testing"
)

func TestImmd26RoundTrip(t *testing.T) {
	code := make([]byte, 4)
	binary.LittleEndian.PutUint32(code, 0x94000000) // BL, imm26 = 0
	e := immd26{}
	if !e.Encode(400, code) {
		t.Fatalf("encode failed")
	}
	disp, align, ok := e.Decode(code)
	if !ok || disp != 400 || align != 4 {
		t.Fatalf("got disp=%d align=%d ok=%v, want 400/4/true", disp, align, ok)
	}
}

func TestA24RoundTrip(t *testing.T) {
	code := make([]byte, 4)
	binary.LittleEndian.PutUint32(code, 0xEA000000) // B, cond=always, imm24=0
	e := a24{}
	if !e.Encode(-64, code) {
		t.Fatalf("encode failed")
	}
	disp, align, ok := e.Decode(code)
	if !ok || disp != -64 || align != 4 {
		t.Fatalf("got disp=%d align=%d ok=%v, want -64/4/true", disp, align, ok)
	}
}

func TestT11RoundTrip(t *testing.T) {
	code := make([]byte, 2)
	binary.LittleEndian.PutUint16(code, 0xE000) // B T2, imm11=0
	e := t11{}
	if !e.Encode(20, code) {
		t.Fatalf("encode failed")
	}
	disp, align, ok := e.Decode(code)
	if !ok || disp != 20 || align != 2 {
		t.Fatalf("got disp=%d align=%d ok=%v, want 20/2/true", disp, align, ok)
	}
}

func TestIsARMClassifiesAllAlwaysAsARM(t *testing.T) {
	code := make([]byte, 16)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(code[i*4:], 0xE0000000)
	}
	if !IsARM(code) {
		t.Fatalf("expected ARM classification")
	}
}

func TestIsARMClassifiesNoAlwaysAsThumb(t *testing.T) {
	code := make([]byte, 16)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(code[i*4:], 0x00000000)
	}
	if IsARM(code) {
		t.Fatalf("expected Thumb-2 classification")
	}
}
