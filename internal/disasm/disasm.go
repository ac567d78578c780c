// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package disasm defines the uniform interface every format-aware
// disassembler implements: a way to enumerate reference
// groups (relocations, abs32 pointers, rel32 displacements) over a parsed
// executable image, plus the writer/mixer capabilities the apply pipeline
// needs to correct those references in a reconstructed new image.
package disasm

import (
	"encoding/binary"
	"errors"

	"github.com/saferwall/zucchini/internal/image"
)

// ExeType is a 4-character code packed little-endian into 32 bits, matching
// the FourCC convention used elsewhere for executable type tags.
type ExeType uint32

// FourCC packs a (padded to 4 bytes) ASCII code into an ExeType.
func FourCC(s string) ExeType {
	var b [4]byte
	copy(b[:], s)
	return ExeType(binary.LittleEndian.Uint32(b[:]))
}

// String renders the ExeType back to its 4-character code.
func (e ExeType) String() string {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(e))
	return string(b[:])
}

// Recognised executable types.
var (
	ExeTypeNoOp = FourCC("NoOp")
	ExeTypeWin32X86 = FourCC("Px86")
	ExeTypeWin32X64 = FourCC("Px64")
	ExeTypeElfX86 = FourCC("Ex86")
	ExeTypeElfX64 = FourCC("Ex64")
	ExeTypeElfAArch32 = FourCC("EA32")
	ExeTypeElfAArch64 = FourCC("EA64")
	ExeTypeDex = FourCC("DEX ")
	ExeTypeZtf = FourCC("ZTF ")
)

// ErrNotRecognised is returned by a disassembler factory when the input
// doesn't look like that factory's format at all: a format error, an
// immediate non-match rather than a partial parse.
var ErrNotRecognised = errors.New("disasm: input not recognised")

// Writer overwrites references of one type in place within a buffer.
type Writer interface {
	// Write stores target as the reference at location, encoding it
	// according to the type's on-disk representation.
	Write(location uint32, target uint32) error
}

// Mixer produces composite "new operation bits, old payload bits" code
// words for architectures (ARM) where operation and payload share bytes; it
// has no role on Intel, where a type's Group.MakeMixer is nil.
type Mixer interface {
	// Mix returns the bytes to place at newLocation in the diff basis: the
	// new image's operation bits overlaid with the old image's payload bits.
	// On encoding failure, implementations fall back to returning newCode
	// verbatim.
	Mix(oldCode, newCode []byte) ([]byte, error)
}

// Group bundles one reference type's traits with factories for reading,
// writing, and (ARM only) mixing its references.
type Group struct {
	image.GroupSpec
	MakeWriter func(buf []byte) Writer
	MakeMixer func(oldImage, newImage []byte) Mixer // nil outside ARM
}

// Disassembler is the per-format, per-architecture capability set: it knows
// how to enumerate an image's reference groups and how many EquivalenceMap
// co-refinement iterations its reference graph warrants.
type Disassembler interface {
	ExeType() ExeType
	// Version reports the disassembler's format-compatibility version
	// (ElementHeader.DisassemblerVersion); apply rejects a patch whose
	// recorded version doesn't match the current binary's version for that
	// exe type.
	Version() uint16
	// Size reports how many bytes from the start of the buffer this
	// element occupies.
	Size() int
	Groups() []Group
	// NumEquivalenceIterations is 1 for images with no references, 2 for
	// x86/x64, and more for architectures with richer reference graphs.
	NumEquivalenceIterations() int
}

// CurrentVersion is this binary's disassembler format-compatibility
// version, written into every element header it produces.
const CurrentVersion uint16 = 1

// BuildIndex runs the generic two-pass ImageIndex construction over a
// disassembler's declared groups.
func BuildIndex(d Disassembler) (*image.Index, error) {
	groups := d.Groups()
	specs := make([]image.GroupSpec, len(groups))
	for i, g := range groups {
		specs[i] = g.GroupSpec
	}
	return image.Build(d.Size(), specs)
}

// Factory attempts to construct a Disassembler over data, returning
// ErrNotRecognised if data doesn't look like that format at all.
type Factory func(data []byte) (Disassembler, error)

// Factories lists every concrete disassembler factory this module ships,
// in the order the ensemble's ElementFinder probes them.
// Populated by each disasm subpackage's init.
var Factories []Factory

// Register adds f to Factories. Subpackages call this from init.
func Register(f Factory) {
	Factories = append(Factories, f)
}

// MinProgramSize is the smallest element ElementFinder will accept.
const MinProgramSize = 16
