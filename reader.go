// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package hashchop

import (
	"errors"
	"io"
)

// Reader chops a stream read from an io.Reader.
//
// Reader is not safe for concurrent use.
type Reader struct {
	r io.Reader

	chopper *Chopper

	// scratch space for reads, up to the max chunk size
	piece []byte

	// offset of the next chunk in the stream
	off int64

	// source is exhausted
	eof bool
	// last chunk was returned
	done bool
}

// NewReader creates a Reader which chops data from r with an average chunk size of 2^bits.
func NewReader(r io.Reader, bits int, opts ...OptionFunc) (*Reader, error) {
	chopper, err := New(bits, opts...)
	if err != nil {
		return nil, err
	}

	return &Reader{
		r:       r,
		chopper: chopper,
		piece:   make([]byte, chopper.params.Max),
	}, nil
}

// Next returns the next chunk of the stream.
//
// The chunk data is stored in buf if it has enough capacity (Params().Max bytes),
// otherwise a new slice is allocated. Next returns io.EOF after the last chunk.
func (r *Reader) Next(buf []byte) (Chunk, error) {
	if r.done {
		return Chunk{}, io.EOF
	}

	maxSize := r.chopper.params.Max

	if cap(buf) < maxSize {
		buf = make([]byte, maxSize)
	}

	buf = buf[:maxSize]

	for {
		n, err := r.chopper.Poll(buf)
		if err == nil {
			return r.emit(buf[:n]), nil
		}

		if !errors.Is(err, ErrUnderflow) {
			return Chunk{}, err
		}

		if r.eof {
			n, err = r.chopper.Finish(buf)
			if err != nil {
				return Chunk{}, err
			}

			r.done = true

			if n == 0 {
				return Chunk{}, io.EOF
			}

			return r.emit(buf[:n]), nil
		}

		if err = r.fill(); err != nil {
			return Chunk{}, err
		}
	}
}

// Params returns chunking parameters.
func (r *Reader) Params() Params {
	return r.chopper.params
}

// Offset returns the offset of the next chunk in the stream.
func (r *Reader) Offset() int64 {
	return r.off
}

// Reset discards the state, and starts chopping a new stream read from src.
func (r *Reader) Reset(src io.Reader) {
	r.r = src
	r.chopper.Reset()
	r.off = 0
	r.eof = false
	r.done = false
}

// Close implements io.Closer.
func (r *Reader) Close() error {
	r.r = nil

	return r.chopper.Close()
}

func (r *Reader) fill() error {
	n, err := io.ReadFull(r.r, r.piece)

	if n > 0 {
		if sinkErr := r.chopper.Sink(r.piece[:n]); sinkErr != nil {
			return sinkErr
		}
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		r.eof = true

		return nil
	}

	return err
}

func (r *Reader) emit(data []byte) Chunk {
	chunk := Chunk{
		Data:   data,
		Offset: r.off,
	}

	r.off += int64(len(data))

	return chunk
}
