// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package hashchop

// Allocator provides the memory for the accumulation buffer.
//
// Alloc should return a slice of exactly size bytes, contents are not required
// to be zeroed. Free is called once for every slice returned by Alloc, when the Chopper
// no longer references it.
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Free(p []byte) error
}

// HeapAllocator allocates buffers on the Go heap.
type HeapAllocator struct{}

// Alloc implements Allocator.
func (HeapAllocator) Alloc(size int) ([]byte, error) {
	return make([]byte, size), nil
}

// Free implements Allocator.
//
// Heap buffers are reclaimed by the garbage collector.
func (HeapAllocator) Free([]byte) error {
	return nil
}
