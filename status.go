// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package hashchop

import "errors"

// Status classifies results of Chopper operations.
type Status int

// Status values.
const (
	StatusOK Status = iota
	StatusUnderflow
	StatusOverflow
	StatusFull
	StatusInvalidParameter
	StatusClosed
	StatusUnknown
)

var statusNames = [...]string{
	StatusOK:               "ok",
	StatusUnderflow:        "underflow",
	StatusOverflow:         "overflow",
	StatusFull:             "full",
	StatusInvalidParameter: "invalid parameter",
	StatusClosed:           "closed",
	StatusUnknown:          "unknown",
}

// String implements fmt.Stringer.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return statusNames[StatusUnknown]
	}

	return statusNames[s]
}

// StatusOf returns the Status for an error returned by the package.
//
// StatusOf(nil) is StatusOK.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrUnderflow):
		return StatusUnderflow
	case errors.Is(err, ErrOverflow):
		return StatusOverflow
	case errors.Is(err, ErrFull):
		return StatusFull
	case errors.Is(err, ErrInvalidParameter):
		return StatusInvalidParameter
	case errors.Is(err, ErrClosed):
		return StatusClosed
	default:
		return StatusUnknown
	}
}
