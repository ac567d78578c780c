// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

//go:build gofuzz

package patch

// Fuzz drives the patch decoder over arbitrary bytes.
// A malformed patch must be rejected with an error, never a panic, and
// Decode must never report more element headers than it actually parsed.
func Fuzz(data []byte) int {
	h, elements, err := Decode(data)
	if err != nil {
		return 0
	}
	if uint32(len(elements)) == 0 && h.NewSize != 0 {
		return 0
	}
	return 1
}
