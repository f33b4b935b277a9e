// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package store

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// ZstdCompressor implements Compressor using zstd compression.
type ZstdCompressor struct {
	dec *zstd.Decoder
	enc *zstd.Encoder
}

// NewZstdCompressor creates new ZstdCompressor with the given compression level.
//
// Level follows the zstd command line levels, see zstd.EncoderLevelFromZstd.
func NewZstdCompressor(level int) (*ZstdCompressor, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, err
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderCRC(true),
	)
	if err != nil {
		dec.Close()

		return nil, err
	}

	return &ZstdCompressor{
		dec: dec,
		enc: enc,
	}, nil
}

// Compress implements Compressor.
func (c *ZstdCompressor) Compress(src, dest []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, dest), nil
}

// Decompress implements Compressor.
func (c *ZstdCompressor) Decompress(src, dest []byte) ([]byte, error) {
	return c.dec.DecodeAll(src, dest)
}

// DecompressedSize implements Compressor.
//
// The size is read from the frame header if it's recorded there, small frames
// are decompressed to find out the size.
func (c *ZstdCompressor) DecompressedSize(src []byte) (int64, error) {
	if len(src) == 0 {
		return 0, nil
	}

	var header zstd.Header

	if err := header.Decode(src); err != nil {
		return 0, err
	}

	if header.HasFCS {
		return int64(header.FrameContentSize), nil
	}

	data, err := c.dec.DecodeAll(src, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to decompress frame without content size: %w", err)
	}

	return int64(len(data)), nil
}

// Close releases encoder and decoder resources.
func (c *ZstdCompressor) Close() error {
	c.dec.Close()

	return c.enc.Close()
}
