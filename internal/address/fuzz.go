// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

//go:build gofuzz

package address

import "encoding/binary"

// Fuzz decodes data as a packed list of 16-byte Units (four little-endian
// uint32 fields each) and feeds them to New, exercising the overlap,
// dangling-RVA and fake-offset validation passes.
func Fuzz(data []byte) int {
	const unitSize = 16
	if len(data) < unitSize {
		return 0
	}
	var units []Unit
	for i := 0; i+unitSize <= len(data); i += unitSize {
		units = append(units, Unit{
				OffsetBegin: binary.LittleEndian.Uint32(data[i:]),
				OffsetSize: binary.LittleEndian.Uint32(data[i+4:]),
				RvaBegin: binary.LittleEndian.Uint32(data[i+8:]),
				RvaSize: binary.LittleEndian.Uint32(data[i+12:]),
		})
	}

	t, err := New(units)
	if err != nil {
		return 0
	}

	cache := NewOffsetToRvaCache()
	for _, u := range t.Units() {
		if rva, ok := t.OffsetToRva(u.OffsetBegin, cache); ok && rva != u.RvaBegin {
			panic("address: offset-to-rva disagreed with source unit")
		}
	}
	return 1
}
