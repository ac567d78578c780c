// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package armcode

import "encoding/binary"

// IsARM classifies an AArch32 code region as ARM (true) or Thumb-2 (false)
// by the ratio of 4-byte-aligned words whose condition nibble is 0xE
// (condition-always), per 0.4 threshold.
func IsARM(code []byte) bool {
	n := len(code) / 4
	if n == 0 {
		return true
	}
	always := 0
	for i := 0; i < n; i++ {
		instr := binary.LittleEndian.Uint32(code[i*4:])
		if instr>>28 == 0xE {
			always++
		}
	}
	return float64(always)/float64(n) >= 0.4
}
