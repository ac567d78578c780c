// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

//go:build gofuzz

package buffer

// Fuzz round-trips data through the unsigned and signed LEB128 codecs,
// matching the teacher's single bare-harness-per-format convention.
func Fuzz(data []byte) int {
	v, n, err := DecodeUleb128(data)
	if err != nil {
		return 0
	}
	re := EncodeUleb128(nil, v)
	rev, rn, err := DecodeUleb128(re)
	if err != nil || rev != v || rn != len(re) {
		panic("buffer: uleb128 round trip mismatch")
	}

	sv, sn, err := DecodeSleb128(data)
	if err == nil {
		sre := EncodeSleb128(nil, sv)
		srev, srn, err := DecodeSleb128(sre)
		if err != nil || srev != sv || srn != len(sre) {
			panic("buffer: sleb128 round trip mismatch")
		}
	}
	_ = n
	return 1
}
