// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/siderolabs/go-hashchop"
	"github.com/siderolabs/go-hashchop/internal/store"
)

type chopCmd struct {
	Args struct {
		Files []string `positional-arg-name:"FILE" required:"1"`
	} `positional-args:"yes"`
}

func init() {
	cli.AddCommand("chop", "List chunks", "Chop files into content-defined chunks and print offset, length and key of every chunk", &chopCmd{}) //nolint:errcheck
}

func (c *chopCmd) Execute(_ []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}

	defer e.close()

	ctx := context.Background()

	for _, path := range c.Args.Files {
		if err := e.chopFile(ctx, os.Stdout, path); err != nil {
			return fmt.Errorf("chop %s: %w", path, err)
		}
	}

	return nil
}

// chopFile prints a line per chunk of the file.
func (e *env) chopFile(ctx context.Context, w io.Writer, path string) error {
	var chunks int

	err := e.forEachChunk(ctx, path, func(chunk hashchop.Chunk) error {
		chunks++

		_, err := fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", path, chunk.Offset, chunk.Len(), store.KeyOf(chunk.Data))

		return err
	})
	if err != nil {
		return err
	}

	e.logger.Debug("chopped file", zap.String("path", path), zap.Int("chunks", chunks))

	return nil
}

// forEachChunk chops the file and calls fn for every chunk.
//
// Chunk data is only valid for the duration of the call.
func (e *env) forEachChunk(ctx context.Context, path string, fn hashchop.ChunkFunc) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer f.Close() //nolint:errcheck

	r, err := hashchop.NewReader(throttle(ctx, f, e.rate), e.bits, e.chopperOptions()...)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, r.Close())
	}()

	buf := make([]byte, r.Params().Max)

	for {
		if err = ctx.Err(); err != nil {
			return err
		}

		chunk, err := r.Next(buf)
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return err
		}

		if err = fn(chunk); err != nil {
			return err
		}
	}
}
