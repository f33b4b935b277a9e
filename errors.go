// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package hashchop

import "errors"

var (
	// ErrInvalidParameter is returned by New when the configuration is out of the supported range.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrUnderflow is returned by Poll when not enough data is buffered to search for a chunk boundary.
	//
	// Sink more data and try again.
	ErrUnderflow = errors.New("underflow")

	// ErrOverflow is returned when a sink is larger than the maximum chunk size,
	// or when the destination buffer is too small for the pending chunk.
	ErrOverflow = errors.New("overflow")

	// ErrFull is returned by Sink when the buffer has to be drained with Poll first.
	ErrFull = errors.New("buffer is full")

	// ErrClosed is returned when the Chopper is used after Close.
	ErrClosed = errors.New("chopper is closed")
)
