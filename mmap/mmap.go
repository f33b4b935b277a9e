// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package mmap provides an allocator for chopper buffers outside of the Go heap.
package mmap

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Allocator allocates buffers with anonymous private mmap regions.
//
// Memory is returned to the operating system on Free, and it's not scanned by the
// garbage collector. Allocator is safe for concurrent use.
type Allocator struct {
	mapped atomic.Int64
}

// NewAllocator creates new Allocator.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// Alloc implements hashchop.Allocator.
//
// Pages are zeroed by the kernel.
func (a *Allocator) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("size should be positive: %d", size)
	}

	data, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE,
	)
	if err != nil {
		return nil, fmt.Errorf("cannot allocate %d bytes via mmap: %w", size, err)
	}

	a.mapped.Add(int64(len(data)))

	return data, nil
}

// Free implements hashchop.Allocator.
func (a *Allocator) Free(p []byte) error {
	if p == nil {
		return nil
	}

	size := len(p)

	if err := unix.Munmap(p[:cap(p)]); err != nil {
		return fmt.Errorf("failed to unmap %d bytes: %w", size, err)
	}

	a.mapped.Add(-int64(cap(p)))

	return nil
}

// Mapped returns the number of bytes currently mapped by the allocator.
func (a *Allocator) Mapped() int64 {
	return a.mapped.Load()
}
