// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package store

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/siderolabs/gen/xslices"
	"go.uber.org/zap"
)

const chunkExt = ".zst"

func (s *Store) load() error {
	if s.opt.Dir == "" {
		// persistence is disabled
		return nil
	}

	chunkPaths, err := filepath.Glob(filepath.Join(s.opt.Dir, "*"+chunkExt))
	if err != nil {
		return err
	}

	var loaded []Key

	for _, chunkPath := range chunkPaths {
		key, err := ParseKey(strings.TrimSuffix(filepath.Base(chunkPath), chunkExt))
		if err != nil {
			s.opt.Logger.Warn("skipping file with unexpected name", zap.String("path", chunkPath), zap.Error(err))

			continue
		}

		data, err := os.ReadFile(chunkPath)
		if err != nil {
			s.opt.Logger.Error("failed to read chunk, skipping", zap.String("path", chunkPath), zap.Error(err))

			continue
		}

		size, err := s.opt.Compressor.DecompressedSize(data)
		if err != nil {
			s.opt.Logger.Error("failed to get size of compressed chunk, skipping", zap.String("path", chunkPath), zap.Error(err))

			continue
		}

		s.entries[key] = entry{
			data:   data,
			size:   size,
			loaded: true,
		}

		s.stats.LoadedBytes += size

		loaded = append(loaded, key)
	}

	s.stats.Loaded = int64(len(loaded))

	s.opt.Logger.Debug("loaded chunks from disk",
		zap.String("dir", s.opt.Dir),
		zap.Int("num_chunks", len(loaded)),
		zap.Strings("keys", xslices.Map(loaded, Key.String)),
	)

	return nil
}

func (s *Store) run() {
	if s.opt.Dir == "" {
		// persistence is disabled
		return
	}

	s.commandCh = make(chan persistenceCommand, s.opt.QueueSize)

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		s.runPersistence(s.commandCh)
	}()
}

type persistenceCommand struct {
	data []byte

	key Key
}

func (s *Store) chunkPath(key Key) string {
	return filepath.Join(s.opt.Dir, key.String()+chunkExt)
}

func (s *Store) runPersistence(ch <-chan persistenceCommand) {
	for command := range ch {
		chunkPath := s.chunkPath(command.key)

		if err := atomicWriteFile(chunkPath, command.data, 0o644); err != nil {
			s.opt.Logger.Error("failed to write chunk", zap.String("path", chunkPath), zap.Error(err))
		} else {
			s.opt.Logger.Debug("persisted chunk", zap.String("path", chunkPath), zap.Int("size", len(command.data)))
		}
	}
}

func atomicWriteFile(path string, data []byte, mode fs.FileMode) error {
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, mode); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck

		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}
