// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package buffer

import "errors"

// MaxVarintBytes is the hard cap on LEB128 encoding length for a 32-bit
// value.
const MaxVarintBytes = 5

// ErrVarintTooLong is returned when a LEB128 stream runs past MaxVarintBytes
// without terminating (its continuation bit never clears).
var ErrVarintTooLong = errors.New("buffer: varint longer than 5 bytes")

// DecodeUleb128 decodes an unsigned LEB128 value from b, returning the value
// and the number of bytes consumed. The fifth byte's upper bits are silently
// discarded rather than rejected — values in [2^32, 2^35) decode to a masked
// 32-bit value instead of failing.
func DecodeUleb128(b []byte) (uint32, int, error) {
	var result uint32
	var shift uint
	for i := 0; i < MaxVarintBytes; i++ {
		if i >= len(b) {
			return 0, 0, ErrOutsideBoundary
		}
		by := b[i]
		if shift < 32 {
			result |= uint32(by&0x7F) << shift
		}
		shift += 7
		if by&0x80 == 0 {
			return result, i + 1, nil
		}
	}
	return 0, 0, ErrVarintTooLong
}

// EncodeUleb128 appends the unsigned LEB128 encoding of v to dst.
func EncodeUleb128(dst []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			dst = append(dst, b|0x80)
		} else {
			dst = append(dst, b)
			return dst
		}
	}
}

// DecodeSleb128 decodes a zig-zag LEB128 signed value from b.
func DecodeSleb128(b []byte) (int32, int, error) {
	u, n, err := DecodeUleb128(b)
	if err != nil {
		return 0, 0, err
	}
	return ZigZagDecode(u), n, nil
}

// EncodeSleb128 appends the zig-zag LEB128 encoding of v to dst.
func EncodeSleb128(dst []byte, v int32) []byte {
	return EncodeUleb128(dst, ZigZagEncode(v))
}

// ZigZagEncode maps a signed value to an unsigned one so that small
// magnitude values (positive or negative) encode to few bytes.
func ZigZagEncode(v int32) uint32 {
	return uint32((v << 1) ^ (v >> 31))
}

// ZigZagDecode is the inverse of ZigZagEncode.
func ZigZagDecode(u uint32) int32 {
	return int32(u>>1) ^ -int32(u&1)
}
