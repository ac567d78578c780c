// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package crc computes the CRC-32 (IEEE 802.3 polynomial) checksums carried
// in the patch header (section 3, PatchHeader.old_crc32/new_crc32). It is a
// thin named wrapper around the standard library's hash/crc32 rather than a
// hand-rolled table, since hash/crc32 is itself one of the reference
// packages this module was grounded on (src/hash/crc32 in the Go standard
// library tree) and already implements the IEEE polynomial bit-exactly.
package crc

import "hash/crc32"

// Checksum32 computes the IEEE CRC-32 of data.
func Checksum32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
