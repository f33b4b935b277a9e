// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package hashchop

import (
	"errors"
)

// ChunkFunc is called by Writer for every chunk.
//
// Chunk data is only valid for the duration of the call.
type ChunkFunc func(Chunk) error

// Writer chops a stream written to it, and passes the chunks to a ChunkFunc.
//
// Writer is not safe for concurrent use.
type Writer struct {
	fn ChunkFunc

	chopper *Chopper

	// chunks are polled into scratch
	scratch []byte

	// offset of the next chunk in the stream
	off int64

	closed bool
}

// NewWriter creates a Writer with an average chunk size of 2^bits.
func NewWriter(fn ChunkFunc, bits int, opts ...OptionFunc) (*Writer, error) {
	chopper, err := New(bits, opts...)
	if err != nil {
		return nil, err
	}

	return &Writer{
		fn:      fn,
		chopper: chopper,
		scratch: make([]byte, chopper.params.Max),
	}, nil
}

// Write implements io.Writer.
//
// Every complete chunk is passed to the ChunkFunc before Write returns.
// If the ChunkFunc fails, Write returns its error.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}

	var n int

	for len(p) > 0 {
		l := min(len(p), w.chopper.params.Max)

		if err := w.chopper.Sink(p[:l]); err != nil {
			return n, err
		}

		n += l
		p = p[l:]

		if err := w.drain(); err != nil {
			return n, err
		}
	}

	return n, nil
}

// Offset returns the offset of the next chunk in the stream.
func (w *Writer) Offset() int64 {
	return w.off
}

// Close emits the last chunk and releases the Writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}

	w.closed = true

	err := w.flush()

	return errors.Join(err, w.chopper.Close())
}

func (w *Writer) flush() error {
	if err := w.drain(); err != nil {
		return err
	}

	n, err := w.chopper.Finish(w.scratch)
	if err != nil {
		return err
	}

	if n == 0 {
		return nil
	}

	return w.emit(w.scratch[:n])
}

func (w *Writer) drain() error {
	for {
		n, err := w.chopper.Poll(w.scratch)
		if errors.Is(err, ErrUnderflow) {
			return nil
		}

		if err != nil {
			return err
		}

		if err = w.emit(w.scratch[:n]); err != nil {
			return err
		}
	}
}

func (w *Writer) emit(data []byte) error {
	chunk := Chunk{
		Data:   data,
		Offset: w.off,
	}

	w.off += int64(len(data))

	return w.fn(chunk)
}
