// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package hashchop implements content-defined chunking with a rolling checksum.
//
// A Chopper splits a stream into chunks at positions chosen by the content
// of the stream: if the stream is edited, only the chunks around the edit
// change, so the chunks can be deduplicated by content-addressed storage.
//
// The Chopper is driven explicitly: Sink data in, Poll chunks out until
// ErrUnderflow, repeat, and Finish the stream to get the last chunk.
// Reader and Writer wrap this loop for io.Reader and io.Writer.
package hashchop

import (
	"fmt"

	"go.uber.org/zap"
)

// Chopper implements content-defined chunking with a bounded buffer.
//
// The average chunk size is about 2^bits plus the min chunk size, each chunk (except for the last chunk of the stream)
// is at least Params().Min and at most Params().Max bytes long.
//
// Chopper is not safe for concurrent use.
type Chopper struct {
	// chunking options
	opt Options

	// accumulation buffer, pending data is data[start:start+fill]
	data []byte

	params Params

	// max size of data, the buffer grows up to the ceiling
	ceiling int

	// read cursor, advanced on Poll instead of moving pending data
	start int

	// number of pending bytes
	fill int

	closed bool
}

// New creates a Chopper with an average chunk size of 2^bits.
//
// bits should be in range [MinBits, MaxBits].
func New(bits int, opts ...OptionFunc) (*Chopper, error) {
	params, err := NewParams(bits)
	if err != nil {
		return nil, err
	}

	c := &Chopper{
		opt:     defaultOptions(),
		params:  params,
		ceiling: params.Limit,
	}

	for _, o := range opts {
		if err = o(&c.opt); err != nil {
			return nil, err
		}
	}

	if c.opt.LenientFullCheck {
		// the lenient check lets one more sink through once the limit is reached
		c.ceiling += params.Max
	}

	size := min(2*params.Max, c.opt.InitialCapacity, c.ceiling)

	c.data, err = c.opt.Allocator.Alloc(size)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate %d bytes: %w", size, err)
	}

	clear(c.data)

	c.opt.Logger.Debug("chopper created",
		zap.Uint8("bits", params.Bits),
		zap.Int("min", params.Min),
		zap.Int("max", params.Max),
		zap.Int("limit", params.Limit),
		zap.Int("capacity", size),
	)

	return c, nil
}

// Params returns chunking parameters.
func (c *Chopper) Params() Params {
	return c.params
}

// Buffered returns the number of bytes sunk but not yet emitted.
func (c *Chopper) Buffered() int {
	return c.fill
}

// Capacity returns number of bytes allocated for the buffer.
func (c *Chopper) Capacity() int {
	return len(c.data)
}

// Sink appends data to the buffer.
//
// Sink returns ErrOverflow if p is larger than the max chunk size (p should be sunk
// in smaller pieces), ErrFull if the buffer should be drained with Poll first.
// On error, the state of the Chopper is not changed.
func (c *Chopper) Sink(p []byte) error {
	l := len(p)

	if c.closed {
		return ErrClosed
	}

	if l > c.params.Max {
		return fmt.Errorf("%w: sink of %d bytes is over the max chunk size %d", ErrOverflow, l, c.params.Max)
	}

	if c.opt.LenientFullCheck {
		if c.fill > c.params.Limit {
			return ErrFull
		}
	} else if c.fill+l > c.params.Limit {
		return ErrFull
	}

	if l == 0 {
		return nil
	}

	if err := c.reserve(l); err != nil {
		return err
	}

	copy(c.data[c.start+c.fill:], p)
	c.fill += l

	return nil
}

// Poll copies the next chunk into dst and returns its length.
//
// Poll returns ErrUnderflow if there is not enough data buffered to cut a chunk
// (more data should be sunk first), ErrOverflow if the chunk doesn't fit into dst.
// On error, the state of the Chopper is not changed.
//
// A dst of Params().Max bytes always fits a chunk.
func (c *Chopper) Poll(dst []byte) (int, error) {
	if c.closed {
		return 0, ErrClosed
	}

	if c.fill < c.params.Max {
		return 0, ErrUnderflow
	}

	pending := c.data[c.start : c.start+c.fill]

	cut := findSeam(pending, c.params)
	if len(dst) < cut {
		return 0, fmt.Errorf("%w: chunk of %d bytes doesn't fit into %d bytes", ErrOverflow, cut, len(dst))
	}

	copy(dst, pending[:cut])
	c.consume(cut)

	return cut, nil
}

// Finish copies all buffered data into dst as the last chunk of the stream,
// and resets the Chopper for a new stream.
//
// The last chunk might be shorter than the min chunk size, or empty.
// Finish returns ErrOverflow if the buffered data doesn't fit into dst,
// leaving the state unchanged.
func (c *Chopper) Finish(dst []byte) (int, error) {
	if c.closed {
		return 0, ErrClosed
	}

	if len(dst) < c.fill {
		return 0, fmt.Errorf("%w: %d buffered bytes don't fit into %d bytes", ErrOverflow, c.fill, len(dst))
	}

	n := copy(dst, c.data[c.start:c.start+c.fill])

	c.Reset()

	return n, nil
}

// Reset discards buffered data, so that the Chopper can be used to chop a new stream.
func (c *Chopper) Reset() {
	c.start = 0
	c.fill = 0
}

// Close releases the buffer.
//
// Chopper can't be used after Close.
func (c *Chopper) Close() error {
	if c.closed {
		return nil
	}

	c.closed = true

	data := c.data

	c.data = nil
	c.Reset()

	if err := c.opt.Allocator.Free(data); err != nil {
		return fmt.Errorf("failed to release buffer: %w", err)
	}

	c.opt.Logger.Debug("chopper closed", zap.Int("capacity", len(data)))

	return nil
}

func (c *Chopper) consume(n int) {
	c.start += n
	c.fill -= n

	if c.fill == 0 {
		c.start = 0
	}
}

// reserve makes room for l more bytes after the pending data.
//
// reserve assumes that c.fill+l <= c.ceiling.
func (c *Chopper) reserve(l int) error {
	if c.start+c.fill+l <= len(c.data) {
		return nil
	}

	if c.fill+l <= len(c.data) {
		// move pending data to the front
		copy(c.data, c.data[c.start:c.start+c.fill])
		c.start = 0

		return nil
	}

	// grow buffer to ensure sink fits, but limit with the ceiling
	size := len(c.data) * 2
	for size < c.fill+l {
		size *= 2
	}

	size = min(size, c.ceiling)

	data, err := c.opt.Allocator.Alloc(size)
	if err != nil {
		return fmt.Errorf("failed to grow buffer to %d bytes: %w", size, err)
	}

	copy(data, c.data[c.start:c.start+c.fill])

	if err = c.opt.Allocator.Free(c.data); err != nil {
		c.opt.Logger.Warn("failed to release buffer", zap.Int("capacity", len(c.data)), zap.Error(err))
	}

	c.opt.Logger.Debug("buffer grown", zap.Int("from", len(c.data)), zap.Int("to", size))

	c.data = data
	c.start = 0

	return nil
}
