// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/siderolabs/go-hashchop"
)

type benchCmd struct {
	Size  int    `long:"size" default:"10240" description:"Size of generated input in KiB"`
	Seed  uint64 `long:"seed" default:"12345" description:"Seed for generated input"`
	Piece int    `long:"piece" default:"1024" description:"Number of bytes passed to every sink"`
}

func init() {
	cli.AddCommand("bench", "Measure throughput", "Chop generated pseudo-random data in memory and report throughput", &benchCmd{}) //nolint:errcheck
}

func (c *benchCmd) Execute(_ []string) error {
	if c.Size <= 0 {
		return fmt.Errorf("size should be positive: %d", c.Size)
	}

	e, err := newEnv()
	if err != nil {
		return err
	}

	defer e.close()

	data := randomData(c.Size*1024, c.Seed)

	res, err := e.bench(data, c.Piece)
	if err != nil {
		return err
	}

	return res.print(os.Stdout)
}

// benchResult describes a single benchmark run.
type benchResult struct {
	bytes   int
	chunks  int
	elapsed time.Duration
}

func (r benchResult) print(w io.Writer) error {
	seconds := r.elapsed.Seconds()

	var mbps float64

	if seconds > 0 {
		mbps = float64(r.bytes) / (1024 * 1024) / seconds
	}

	_, err := fmt.Fprintf(w, "%d bytes (%s) -- %d chunks -- %.3f sec -- %.3f MB/sec\n",
		r.bytes, humanize.IBytes(uint64(r.bytes)), r.chunks, seconds, mbps)

	return err
}

// randomData generates reproducible pseudo-random data.
func randomData(size int, seed uint64) []byte {
	var key [32]byte

	binary.LittleEndian.PutUint64(key[:], seed)

	data := make([]byte, size)
	rand.NewChaCha8(key).Read(data) //nolint:errcheck

	return data
}

// bench feeds data to a chopper in pieces, draining chunks before every sink.
func (e *env) bench(data []byte, piece int) (benchResult, error) {
	c, err := hashchop.New(e.bits, e.chopperOptions()...)
	if err != nil {
		return benchResult{}, err
	}

	defer c.Close() //nolint:errcheck

	if piece <= 0 || piece > c.Params().Max {
		return benchResult{}, fmt.Errorf("piece should be in range [1, %d]: %d", c.Params().Max, piece)
	}

	out := make([]byte, c.Params().Max)
	res := benchResult{bytes: len(data)}

	start := time.Now()

	for len(data) > 0 {
		for {
			_, err = c.Poll(out)
			if errors.Is(err, hashchop.ErrUnderflow) {
				break
			}

			if err != nil {
				return res, err
			}

			res.chunks++
		}

		n := min(piece, len(data))

		if err = c.Sink(data[:n]); err != nil {
			return res, err
		}

		data = data[n:]
	}

	for {
		_, err = c.Poll(out)
		if errors.Is(err, hashchop.ErrUnderflow) {
			break
		}

		if err != nil {
			return res, err
		}

		res.chunks++
	}

	n, err := c.Finish(out)
	if err != nil {
		return res, err
	}

	if n > 0 {
		res.chunks++
	}

	res.elapsed = time.Since(start)

	e.logger.Debug("benchmark finished",
		zap.Int("bits", e.bits),
		zap.Int("piece", piece),
		zap.Duration("elapsed", res.elapsed),
	)

	return res, nil
}
