// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package hashchop

import "fmt"

// Supported range of the bits parameter.
const (
	MinBits = 8
	MaxBits = 30
)

const (
	// chunks are 2^(bits-bitSkew) <= size <= 2^(bits+bitSkew)
	bitSkew = 2

	// buffer limit is the max chunk size times this
	limitMultiplier = 4
)

// Params are the chunking constants derived from the bits parameter.
//
// The target average chunk size is 2^Bits bytes.
type Params struct {
	// Mask is tested against the rolling checksum, a boundary is found when checksum&Mask == 0.
	Mask uint32

	// Min is the minimum chunk size, and the length of the rolling checksum window.
	Min int
	// Max is the maximum chunk size, and the amount of buffered data required to search for a boundary.
	Max int
	// Limit is the capacity of the accumulation buffer.
	Limit int

	Bits uint8
}

// NewParams derives chunking parameters for the given number of bits.
func NewParams(bits int) (Params, error) {
	if bits < MinBits || bits > MaxBits {
		return Params{}, fmt.Errorf("%w: bits should be in range [%d, %d]: %d", ErrInvalidParameter, MinBits, MaxBits, bits)
	}

	maxSize := 1 << (bits + bitSkew)

	return Params{
		Bits:  uint8(bits),
		Mask:  uint32(1)<<bits - 1,
		Min:   1 << (bits - bitSkew),
		Max:   maxSize,
		Limit: limitMultiplier * maxSize,
	}, nil
}
