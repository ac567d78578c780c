// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package patch

import "github.com/saferwall/zucchini/internal/buffer"

// writeBlob appends a u32 length prefix followed by b, per
// "u32 size || bytes" stream framing.
func writeBlob(sink *buffer.Sink, b []byte) {
	sink.PutUint32(uint32(len(b)))
	sink.PutRange(b)
}

// readBlob reads a length-prefixed byte blob and returns it as its own
// bounds-checked Source, ready for the caller to decode varints from.
func readBlob(src *buffer.Source) (*buffer.Source, error) {
	n, err := src.GetUint32()
	if err != nil {
		return nil, err
	}
	region, err := src.GetRegion(int(n))
	if err != nil {
		return nil, err
	}
	return buffer.NewSource(buffer.New(region)), nil
}
