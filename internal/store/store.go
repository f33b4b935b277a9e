// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package store implements a content-addressed store for chunks.
package store

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

var (
	// ErrNotFound is returned when the chunk is not in the store.
	ErrNotFound = errors.New("chunk not found")

	// ErrClosed is returned when the store is used after Close.
	ErrClosed = errors.New("store is closed")
)

// Key identifies a chunk by its contents.
type Key uint64

// KeyOf returns the key of the chunk data.
func KeyOf(data []byte) Key {
	return Key(xxhash.Sum64(data))
}

// ParseKey parses the string representation of the key.
func ParseKey(s string) (Key, error) {
	if len(s) != 16 {
		return 0, fmt.Errorf("invalid key length %d: %q", len(s), s)
	}

	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid key %q: %w", s, err)
	}

	return Key(v), nil
}

// String implements fmt.Stringer.
func (k Key) String() string {
	return fmt.Sprintf("%016x", uint64(k))
}

// Stats describes the contents of the store.
type Stats struct {
	// Chunks is the number of chunks put into the store.
	Chunks int64
	// Unique is the number of chunks which were not in the store yet.
	Unique int64
	// Loaded is the number of chunks loaded from disk.
	Loaded int64
	// Reused is the number of loaded chunks which were put into the store again.
	Reused int64

	// LogicalBytes is the size of all chunks put into the store.
	LogicalBytes int64
	// UniqueBytes is the size of unique chunks.
	UniqueBytes int64
	// StoredBytes is the size of unique chunks as stored (compressed).
	StoredBytes int64
	// LoadedBytes is the size of chunks loaded from disk.
	LoadedBytes int64
	// ReusedBytes is the size of loaded chunks which were put into the store again.
	ReusedBytes int64
}

// DedupRatio returns the ratio of logical bytes to the size of distinct chunks put into the store.
//
// Chunks loaded from disk count once they are put again, so the ratio doesn't depend
// on whether the chunks were already persisted. DedupRatio returns 0 if nothing was put.
func (s Stats) DedupRatio() float64 {
	distinct := s.UniqueBytes + s.ReusedBytes
	if distinct == 0 {
		return 0
	}

	return float64(s.LogicalBytes) / float64(distinct)
}

type entry struct {
	// stored data, compressed if the compressor is set
	data []byte
	// uncompressed size
	size int64

	// loaded from disk, and not put into the store yet
	loaded bool
}

// Store keeps unique chunks, keyed by xxhash of the contents.
//
// Store is safe for concurrent use.
type Store struct {
	entries map[Key]entry

	// channel for persistence commands to the persistence goroutine
	commandCh chan persistenceCommand

	opt Options

	stats Stats

	// waitgroup to wait for persistence goroutine to finish
	wg sync.WaitGroup

	// synchronizing access to entries, stats
	mu sync.Mutex

	closed bool
}

// New creates new Store with specified options.
func New(opts ...OptionFunc) (*Store, error) {
	s := &Store{
		opt:     defaultOptions(),
		entries: map[Key]entry{},
	}

	for _, o := range opts {
		if err := o(&s.opt); err != nil {
			return nil, err
		}
	}

	if s.opt.Dir != "" {
		if s.opt.Compressor == nil {
			return nil, fmt.Errorf("compressor should be set for persistence")
		}

		if err := os.MkdirAll(s.opt.Dir, 0o755); err != nil {
			return nil, err
		}
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	s.run()

	return s, nil
}

// Put adds the chunk to the store.
//
// Put returns the key of the chunk, and whether the chunk was already in the store.
// The data is copied, and can be reused by the caller after Put returns.
func (s *Store) Put(data []byte) (Key, bool, error) {
	key := KeyOf(data)

	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return key, false, ErrClosed
	}

	_, dup := s.entries[key]
	if dup {
		s.account(len(data))
		s.reuse(key)
		s.mu.Unlock()

		return key, true, nil
	}

	s.mu.Unlock()

	// compress outside of the lock, as it's the most expensive part
	stored, err := s.encode(data)
	if err != nil {
		return key, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return key, false, ErrClosed
	}

	s.account(len(data))

	// another goroutine might have stored the same chunk meanwhile
	if _, dup = s.entries[key]; dup {
		s.reuse(key)

		return key, true, nil
	}

	s.entries[key] = entry{
		data: stored,
		size: int64(len(data)),
	}

	s.stats.Unique++
	s.stats.UniqueBytes += int64(len(data))
	s.stats.StoredBytes += int64(len(stored))

	if s.commandCh != nil {
		s.commandCh <- persistenceCommand{
			key:  key,
			data: stored,
		}
	}

	return key, false, nil
}

// Get appends the chunk data to dst and returns the result.
func (s *Store) Get(key Key, dst []byte) ([]byte, error) {
	s.mu.Lock()
	e, ok := s.entries[key]
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return dst, ErrClosed
	}

	if !ok {
		return dst, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	if s.opt.Compressor == nil {
		return append(dst, e.data...), nil
	}

	return s.opt.Compressor.Decompress(e.data, dst)
}

// Has reports whether the chunk is in the store.
func (s *Store) Has(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[key]

	return ok
}

// Stats returns current statistics.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stats
}

// Close closes the store and waits for pending chunks to be persisted.
func (s *Store) Close() error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return nil
	}

	s.closed = true

	if s.commandCh != nil {
		close(s.commandCh)
	}

	s.mu.Unlock()

	s.wg.Wait()

	return nil
}

func (s *Store) account(size int) {
	s.stats.Chunks++
	s.stats.LogicalBytes += int64(size)
}

// reuse accounts for the first put of a chunk loaded from disk.
func (s *Store) reuse(key Key) {
	e := s.entries[key]
	if !e.loaded {
		return
	}

	e.loaded = false
	s.entries[key] = e

	s.stats.Reused++
	s.stats.ReusedBytes += e.size
}

func (s *Store) encode(data []byte) ([]byte, error) {
	if s.opt.Compressor == nil {
		return slices.Clone(data), nil
	}

	compressed, err := s.opt.Compressor.Compress(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to compress chunk: %w", err)
	}

	return compressed, nil
}
