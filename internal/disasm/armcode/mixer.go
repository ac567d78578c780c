// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package armcode

// Warnf is called when a Mixer falls back to an identity copy because no
// candidate encoding both decoded the old code and re-encoded into the new
// code. Tests and callers that don't care about diagnostics may
// leave it nil.
var Warnf func(format string, args ...interface{})

func warn(format string, args ...interface{}) {
	if Warnf != nil {
		Warnf(format, args...)
	}
}

// Mixer overlays a new image's operation bits onto an old image's payload
// displacement, for architectures where the two share bytes. It tries each
// candidate encoding against the old code until one decodes the
// displacement, then re-encodes that displacement into a copy of the new
// code.
type Mixer struct {
	encodings []Encoding
}

// NewAArch32Mixer returns a Mixer trying the five AArch32 encodings.
func NewAArch32Mixer() *Mixer { return &Mixer{encodings: AArch32Encodings} }

// NewAArch64Mixer returns a Mixer trying the three AArch64 encodings.
func NewAArch64Mixer() *Mixer { return &Mixer{encodings: AArch64Encodings} }

// Mix returns newCode with the old displacement re-encoded into it. On
// decode/encode failure for every candidate encoding, it falls back to
// newCode unchanged.
func (m *Mixer) Mix(oldCode, newCode []byte) ([]byte, error) {
	out := append([]byte(nil), newCode...)
	for _, e := range m.encodings {
		w := e.InstrWidth()
		if len(oldCode) < w || len(out) < w {
			continue
		}
		disp, _, ok := e.Decode(oldCode[:w])
		if !ok {
			continue
		}
		if e.Encode(disp, out[:w]) {
			return out, nil
		}
	}
	warn("armcode: mixer falling back to identity copy, no encoding matched")
	return append([]byte(nil), newCode...), nil
}
