// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/siderolabs/go-hashchop"
	"github.com/siderolabs/go-hashchop/internal/store"
)

type dedupCmd struct {
	Store string `short:"s" long:"store" description:"Directory to persist unique chunks to"`
	Level int    `short:"l" long:"level" default:"3" description:"zstd compression level"`

	Args struct {
		Files []string `positional-arg-name:"FILE" required:"1"`
	} `positional-args:"yes"`
}

func init() {
	cli.AddCommand("dedup", "Estimate deduplication", "Chop files, store unique chunks and report the deduplication ratio", &dedupCmd{}) //nolint:errcheck
}

func (c *dedupCmd) Execute(_ []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}

	defer e.close()

	compressor, err := store.NewZstdCompressor(c.Level)
	if err != nil {
		return err
	}

	defer compressor.Close() //nolint:errcheck

	opts := []store.OptionFunc{
		store.WithCompressor(compressor),
		store.WithLogger(e.logger),
	}

	if c.Store != "" {
		opts = append(opts, store.WithDir(c.Store))
	}

	st, err := store.New(opts...)
	if err != nil {
		return err
	}

	files, err := e.dedup(context.Background(), st, c.Args.Files)
	if err != nil {
		st.Close() //nolint:errcheck

		return err
	}

	if err = st.Close(); err != nil {
		return err
	}

	return printDedup(os.Stdout, files, st.Stats())
}

// fileStats describes a single deduplicated file.
type fileStats struct {
	path   string
	size   int64
	chunks int
	unique int
}

// dedup chops the files concurrently and puts every chunk into the store.
func (e *env) dedup(ctx context.Context, st *store.Store, paths []string) ([]fileStats, error) {
	files := make([]fileStats, len(paths))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))

	for i, path := range paths {
		eg.Go(func() error {
			fs := &files[i]
			fs.path = path

			err := e.forEachChunk(ctx, path, func(chunk hashchop.Chunk) error {
				_, dup, err := st.Put(chunk.Data)
				if err != nil {
					return err
				}

				fs.size += int64(chunk.Len())
				fs.chunks++

				if !dup {
					fs.unique++
				}

				return nil
			})
			if err != nil {
				return fmt.Errorf("dedup %s: %w", path, err)
			}

			e.logger.Debug("deduplicated file",
				zap.String("path", path),
				zap.Int("chunks", fs.chunks),
				zap.Int("unique", fs.unique),
			)

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return files, nil
}

func printDedup(w io.Writer, files []fileStats, stats store.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "FILE\tSIZE\tCHUNKS\tUNIQUE") //nolint:errcheck

	for _, fs := range files {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", fs.path, humanize.Bytes(uint64(fs.size)), fs.chunks, fs.unique) //nolint:errcheck
	}

	fmt.Fprintf(tw, "TOTAL\t%s\t%d\t%d\n", humanize.Bytes(uint64(stats.LogicalBytes)), stats.Chunks, stats.Unique) //nolint:errcheck

	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "unique %s, reused from store %s, stored %s, dedup ratio %.2f\n",
		humanize.Bytes(uint64(stats.UniqueBytes)),
		humanize.Bytes(uint64(stats.ReusedBytes)),
		humanize.Bytes(uint64(stats.StoredBytes)),
		stats.DedupRatio(),
	)

	return err
}
