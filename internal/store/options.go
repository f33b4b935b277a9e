// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package store

import (
	"fmt"

	"go.uber.org/zap"
)

// Options defines settings for Store.
type Options struct {
	Compressor Compressor

	Logger *zap.Logger

	// Dir is the directory to persist chunks to.
	//
	// If Dir is empty, persistence is disabled.
	Dir string

	// QueueSize is the number of chunks waiting to be persisted before Put blocks.
	QueueSize int
}

// Compressor implements an optional interface for chunk compression.
//
// Compress and Decompress append to the dest slice and return the result.
//
// Compressor should be safe for concurrent use by multiple goroutines.
type Compressor interface {
	Compress(src, dest []byte) ([]byte, error)
	Decompress(src, dest []byte) ([]byte, error)
	DecompressedSize(src []byte) (int64, error)
}

func defaultOptions() Options {
	return Options{
		Logger:    zap.NewNop(),
		QueueSize: 64,
	}
}

// OptionFunc allows setting Store options.
type OptionFunc func(*Options) error

// WithCompressor enables chunk compression.
func WithCompressor(c Compressor) OptionFunc {
	return func(opt *Options) error {
		if c == nil {
			return fmt.Errorf("compressor should be set")
		}

		opt.Compressor = c

		return nil
	}
}

// WithDir enables chunk persistence to the directory.
//
// Persistence requires a compressor, chunk files are stored compressed.
func WithDir(dir string) OptionFunc {
	return func(opt *Options) error {
		if dir == "" {
			return fmt.Errorf("directory should be set")
		}

		opt.Dir = dir

		return nil
	}
}

// WithQueueSize sets the size of the persistence queue.
func WithQueueSize(size int) OptionFunc {
	return func(opt *Options) error {
		if size <= 0 {
			return fmt.Errorf("queue size should be positive: %d", size)
		}

		opt.QueueSize = size

		return nil
	}
}

// WithLogger sets logger for Store.
func WithLogger(logger *zap.Logger) OptionFunc {
	return func(opt *Options) error {
		if logger == nil {
			logger = zap.NewNop()
		}

		opt.Logger = logger

		return nil
	}
}
