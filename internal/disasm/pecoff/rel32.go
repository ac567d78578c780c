// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pecoff

import (
	"github.com/saferwall/zucchini/internal/disasm/intel"
	"github.com/saferwall/zucchini/internal/image"
)

// scanRel32 restricts the shared Intel scanner to this image's code
// sections.
func (im *image) scanRel32(is64 bool, abs32Locations []uint32, abs32Width uint32) image.ReferenceReader {
	var regions []intel.Region
	for _, s := range im.sections {
		if !s.isCode() {
			continue
		}
		regions = append(regions, intel.Region{
				OffsetBegin: s.PointerToRawData,
				OffsetEnd: s.PointerToRawData + s.SizeOfRawData,
				RvaBegin: s.VirtualAddress,
				RvaEnd: s.rvaEnd(),
		})
	}
	return intel.Scan(im.view, im.translator, is64, regions, abs32Locations, abs32Width)
}
