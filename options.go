// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package hashchop

import (
	"fmt"

	"go.uber.org/zap"
)

// DefaultInitialCapacity caps the size of the buffer allocated by New.
//
// The buffer grows on demand up to the chunking limit.
const DefaultInitialCapacity = 4 * 1024 * 1024

// Options defines settings for Chopper.
type Options struct {
	Allocator Allocator

	Logger *zap.Logger

	InitialCapacity int

	// LenientFullCheck makes Sink report ErrFull only when the buffer is already over the limit,
	// instead of when the incoming data would not fit.
	LenientFullCheck bool
}

// defaultOptions returns default initial values.
func defaultOptions() Options {
	return Options{
		Allocator:       HeapAllocator{},
		Logger:          zap.NewNop(),
		InitialCapacity: DefaultInitialCapacity,
	}
}

// OptionFunc allows setting Chopper options.
type OptionFunc func(*Options) error

// WithAllocator sets the allocator used for the accumulation buffer.
//
// The buffer is always returned to the allocator it was obtained from.
func WithAllocator(a Allocator) OptionFunc {
	return func(opt *Options) error {
		if a == nil {
			return fmt.Errorf("%w: allocator should be set", ErrInvalidParameter)
		}

		opt.Allocator = a

		return nil
	}
}

// WithLogger sets logger for Chopper.
func WithLogger(logger *zap.Logger) OptionFunc {
	return func(opt *Options) error {
		if logger == nil {
			logger = zap.NewNop()
		}

		opt.Logger = logger

		return nil
	}
}

// WithInitialCapacity sets the upper bound of the buffer size allocated on construction.
//
// Default is to allocate twice the max chunk size, but no more than DefaultInitialCapacity.
func WithInitialCapacity(capacity int) OptionFunc {
	return func(opt *Options) error {
		if capacity <= 0 {
			return fmt.Errorf("%w: initial capacity should be positive: %d", ErrInvalidParameter, capacity)
		}

		opt.InitialCapacity = capacity

		return nil
	}
}

// WithLenientFullCheck enables the lenient buffer capacity check.
//
// With the lenient check, Sink accepts data as long as the buffer is not already over the limit,
// so a single Sink might push the buffer past the limit by up to one max chunk size.
// The buffer ceiling is raised accordingly.
func WithLenientFullCheck() OptionFunc {
	return func(opt *Options) error {
		opt.LenientFullCheck = true

		return nil
	}
}
