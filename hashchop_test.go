// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package hashchop_test

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/go-hashchop"
)

func randomData(seed uint64, size int) []byte {
	var key [32]byte

	key[0], key[1] = byte(seed), byte(seed>>8)

	data := make([]byte, size)
	rand.NewChaCha8(key).Read(data) //nolint:errcheck

	return data
}

// chop feeds data to the chopper in pieces, draining chunks before every sink.
func chop(t testing.TB, c *hashchop.Chopper, data []byte, piece int) [][]byte {
	t.Helper()

	var chunks [][]byte

	out := make([]byte, c.Params().Max)

	drain := func() {
		for {
			n, err := c.Poll(out)
			if errors.Is(err, hashchop.ErrUnderflow) {
				return
			}

			require.NoError(t, err)

			chunks = append(chunks, bytes.Clone(out[:n]))
		}
	}

	for len(data) > 0 {
		drain()

		n := min(piece, len(data))
		require.NoError(t, c.Sink(data[:n]))

		data = data[n:]
	}

	drain()

	n, err := c.Finish(out)
	require.NoError(t, err)

	if n > 0 {
		chunks = append(chunks, bytes.Clone(out[:n]))
	}

	return chunks
}

func chopBits(t testing.TB, bits int, data []byte, piece int) [][]byte {
	t.Helper()

	c, err := hashchop.New(bits)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, c.Close())
	})

	return chop(t, c, data, piece)
}

func TestNew(t *testing.T) {
	t.Parallel()

	for _, bits := range []int{-1, 0, 7, 31, 64} {
		_, err := hashchop.New(bits)
		require.ErrorIs(t, err, hashchop.ErrInvalidParameter, "bits %d", bits)
	}

	for bits := hashchop.MinBits; bits <= hashchop.MaxBits; bits++ {
		c, err := hashchop.New(bits)
		require.NoError(t, err, "bits %d", bits)

		assert.Equal(t, uint8(bits), c.Params().Bits)
		assert.Equal(t, 0, c.Buffered())
		assert.LessOrEqual(t, c.Capacity(), hashchop.DefaultInitialCapacity)

		require.NoError(t, c.Close())
	}
}

func TestSingleChunk(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	c, err := hashchop.New(10, hashchop.WithLogger(zaptest.NewLogger(t)))
	req.NoError(err)

	defer c.Close() //nolint:errcheck

	data := randomData(1, 1000)

	req.NoError(c.Sink(data))
	req.Equal(1000, c.Buffered())

	_, err = c.Poll(make([]byte, c.Params().Max))
	req.ErrorIs(err, hashchop.ErrUnderflow)

	out := make([]byte, 1000)

	n, err := c.Finish(out)
	req.NoError(err)
	req.Equal(1000, n)
	req.Equal(data, out)
	req.Equal(0, c.Buffered())
}

func TestSinkOverflow(t *testing.T) {
	t.Parallel()

	for _, bits := range []int{8, 10, 16} {
		c, err := hashchop.New(bits)
		require.NoError(t, err)

		err = c.Sink(make([]byte, c.Params().Max+1))
		require.ErrorIs(t, err, hashchop.ErrOverflow)
		require.Equal(t, hashchop.StatusOverflow, hashchop.StatusOf(err))

		n, err := c.Finish(nil)
		require.NoError(t, err)
		require.Equal(t, 0, n)

		// exactly max is accepted
		require.NoError(t, c.Sink(make([]byte, c.Params().Max)))
		require.Equal(t, c.Params().Max, c.Buffered())

		require.NoError(t, c.Close())
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		name string

		bits  int
		size  int
		piece int
	}{
		{
			name:  "fragmented",
			bits:  10,
			size:  1 << 20,
			piece: 512,
		},
		{
			name:  "max pieces",
			bits:  10,
			size:  1 << 20,
			piece: 4096,
		},
		{
			name:  "single bytes",
			bits:  8,
			size:  64 << 10,
			piece: 1,
		},
		{
			name:  "short input",
			bits:  12,
			size:  100,
			piece: 512,
		},
		{
			name:  "large bits",
			bits:  20,
			size:  8 << 20,
			piece: 1 << 16,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			data := randomData(2, test.size)
			chunks := chopBits(t, test.bits, data, test.piece)

			require.Equal(t, data, bytes.Join(chunks, nil))

			params, err := hashchop.NewParams(test.bits)
			require.NoError(t, err)

			for i, chunk := range chunks[:len(chunks)-1] {
				assert.GreaterOrEqual(t, len(chunk), params.Min, "chunk %d", i)
				assert.LessOrEqual(t, len(chunk), params.Max, "chunk %d", i)
			}
		})
	}
}

func TestFeedGranularity(t *testing.T) {
	t.Parallel()

	data := randomData(3, 4<<20)

	expected := chopBits(t, 12, data, 512)

	for _, piece := range []int{1, 256, 1000, 4096, 1 << 14} {
		assert.Equal(t, expected, chopBits(t, 12, data, piece), "piece %d", piece)
	}
}

func TestZeroData(t *testing.T) {
	t.Parallel()

	for _, bits := range []int{8, 12, 16} {
		params, err := hashchop.NewParams(bits)
		require.NoError(t, err)

		chunks := chopBits(t, bits, make([]byte, 10*params.Max+123), params.Max)
		require.Len(t, chunks, 11)

		for _, chunk := range chunks[:10] {
			require.Len(t, chunk, params.Max)
		}

		require.Len(t, chunks[10], 123)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	first := randomData(4, 1<<20)
	second := randomData(5, 1<<20)

	expected := chopBits(t, 10, second, 700)

	c, err := hashchop.New(10)
	req.NoError(err)

	defer c.Close() //nolint:errcheck

	// leave data pending, then start over
	req.NoError(c.Sink(first[:3000]))
	req.NoError(c.Sink(first[3000:7000]))

	_, err = c.Poll(make([]byte, c.Params().Max))
	req.NoError(err)

	c.Reset()
	req.Equal(0, c.Buffered())

	req.Equal(expected, chop(t, c, second, 700))

	// and after a completed stream
	chop(t, c, first, 512)

	req.Equal(expected, chop(t, c, second, 700))
}

func TestFull(t *testing.T) {
	t.Parallel()

	t.Run("strict", func(t *testing.T) {
		t.Parallel()

		req := require.New(t)

		c, err := hashchop.New(8)
		req.NoError(err)

		defer c.Close() //nolint:errcheck

		params := c.Params()
		piece := make([]byte, params.Max)

		for range params.Limit / params.Max {
			req.NoError(c.Sink(piece))
		}

		req.Equal(params.Limit, c.Buffered())
		req.ErrorIs(c.Sink([]byte{1}), hashchop.ErrFull)
		req.Equal(params.Limit, c.Buffered())

		// empty sink is always fine
		req.NoError(c.Sink(nil))

		_, err = c.Poll(make([]byte, params.Max))
		req.NoError(err)

		req.NoError(c.Sink([]byte{1}))
		req.LessOrEqual(c.Buffered(), params.Limit)
		req.LessOrEqual(c.Capacity(), params.Limit)
	})

	t.Run("strict partial", func(t *testing.T) {
		t.Parallel()

		req := require.New(t)

		c, err := hashchop.New(8)
		req.NoError(err)

		defer c.Close() //nolint:errcheck

		params := c.Params()

		req.NoError(c.Sink(make([]byte, params.Max)))
		req.NoError(c.Sink(make([]byte, params.Max)))
		req.NoError(c.Sink(make([]byte, params.Max)))
		req.NoError(c.Sink(make([]byte, params.Max-10)))

		req.ErrorIs(c.Sink(make([]byte, 11)), hashchop.ErrFull)
		req.NoError(c.Sink(make([]byte, 10)))
		req.Equal(params.Limit, c.Buffered())
	})

	t.Run("lenient", func(t *testing.T) {
		t.Parallel()

		req := require.New(t)

		c, err := hashchop.New(8, hashchop.WithLenientFullCheck())
		req.NoError(err)

		defer c.Close() //nolint:errcheck

		params := c.Params()
		piece := make([]byte, params.Max)

		for range params.Limit / params.Max {
			req.NoError(c.Sink(piece))
		}

		// at the limit, one more sink is accepted
		req.NoError(c.Sink([]byte{1}))
		req.Equal(params.Limit+1, c.Buffered())

		req.ErrorIs(c.Sink([]byte{1}), hashchop.ErrFull)
		req.Equal(hashchop.StatusFull, hashchop.StatusOf(hashchop.ErrFull))
		req.Equal(params.Limit+1, c.Buffered())

		out := make([]byte, params.Limit+params.Max)

		n, err := c.Finish(out)
		req.NoError(err)
		req.Equal(params.Limit+1, n)
	})

	t.Run("lenient max sink", func(t *testing.T) {
		t.Parallel()

		req := require.New(t)

		c, err := hashchop.New(8, hashchop.WithLenientFullCheck())
		req.NoError(err)

		defer c.Close() //nolint:errcheck

		params := c.Params()
		piece := make([]byte, params.Max)

		for range params.Limit / params.Max {
			req.NoError(c.Sink(piece))
		}

		req.NoError(c.Sink(piece))

		req.Equal(params.Limit+params.Max, c.Buffered())
		req.Equal(params.Limit+params.Max, c.Capacity())

		req.ErrorIs(c.Sink(piece), hashchop.ErrFull)
	})
}

func TestPollOverflow(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	c, err := hashchop.New(8)
	req.NoError(err)

	defer c.Close() //nolint:errcheck

	params := c.Params()

	// zero data is cut at max
	req.NoError(c.Sink(make([]byte, params.Max)))
	req.NoError(c.Sink(make([]byte, 10)))

	_, err = c.Poll(make([]byte, params.Max-1))
	req.ErrorIs(err, hashchop.ErrOverflow)
	req.Equal(params.Max+10, c.Buffered())

	_, err = c.Finish(make([]byte, params.Max))
	req.ErrorIs(err, hashchop.ErrOverflow)
	req.Equal(params.Max+10, c.Buffered())

	n, err := c.Poll(make([]byte, params.Max))
	req.NoError(err)
	req.Equal(params.Max, n)
	req.Equal(10, c.Buffered())

	n, err = c.Finish(make([]byte, 10))
	req.NoError(err)
	req.Equal(10, n)
}

func TestClosed(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	c, err := hashchop.New(10)
	req.NoError(err)

	req.NoError(c.Sink([]byte("hello")))

	req.NoError(c.Close())
	req.NoError(c.Close())

	req.ErrorIs(c.Sink([]byte("world")), hashchop.ErrClosed)
	req.ErrorIs(c.Sink(nil), hashchop.ErrClosed)

	// closed is reported before the size check
	err = c.Sink(make([]byte, c.Params().Max+1))
	req.ErrorIs(err, hashchop.ErrClosed)
	req.NotErrorIs(err, hashchop.ErrOverflow)

	_, err = c.Poll(make([]byte, c.Params().Max))
	req.ErrorIs(err, hashchop.ErrClosed)

	_, err = c.Finish(make([]byte, c.Params().Max))
	req.ErrorIs(err, hashchop.ErrClosed)
	req.Equal(hashchop.StatusClosed, hashchop.StatusOf(err))

	req.Equal(0, c.Buffered())
}

// countingAllocator tracks outstanding allocations.
type countingAllocator struct {
	mu sync.Mutex

	live map[*byte]int
	fail bool
}

func newCountingAllocator() *countingAllocator {
	return &countingAllocator{live: map[*byte]int{}}
}

func (a *countingAllocator) Alloc(size int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.fail {
		return nil, errors.New("out of memory")
	}

	p := make([]byte, size)

	// contents are not required to be zeroed
	for i := range p {
		p[i] = 0xaa
	}

	a.live[&p[0]] = size

	return p, nil
}

func (a *countingAllocator) Free(p []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.live[&p[0]]; !ok {
		return errors.New("unknown buffer")
	}

	delete(a.live, &p[0])

	return nil
}

func (a *countingAllocator) outstanding() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.live)
}

func TestAllocator(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	alloc := newCountingAllocator()

	c, err := hashchop.New(10,
		hashchop.WithAllocator(alloc),
		hashchop.WithInitialCapacity(1024),
		hashchop.WithLogger(zaptest.NewLogger(t)),
	)
	req.NoError(err)

	req.Equal(1024, c.Capacity())
	req.Equal(1, alloc.outstanding())

	data := randomData(6, 1<<20)

	chunks := chop(t, c, data, 4096)
	req.Equal(data, bytes.Join(chunks, nil))

	// buffer grows, old buffers are released
	req.Greater(c.Capacity(), 1024)
	req.LessOrEqual(c.Capacity(), c.Params().Limit)
	req.Equal(1, alloc.outstanding())

	req.NoError(c.Close())
	req.Equal(0, alloc.outstanding())
}

func TestAllocatorFailure(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	alloc := newCountingAllocator()
	alloc.fail = true

	_, err := hashchop.New(10, hashchop.WithAllocator(alloc))
	req.Error(err)

	alloc.fail = false

	c, err := hashchop.New(10, hashchop.WithAllocator(alloc), hashchop.WithInitialCapacity(16))
	req.NoError(err)

	alloc.mu.Lock()
	alloc.fail = true
	alloc.mu.Unlock()

	req.Error(c.Sink(make([]byte, 100)))
	req.Equal(0, c.Buffered())

	req.NoError(c.Close())
	req.Equal(0, alloc.outstanding())
}

func TestCapacityGrowth(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	c, err := hashchop.New(10, hashchop.WithInitialCapacity(1000))
	req.NoError(err)

	defer c.Close() //nolint:errcheck

	req.Equal(1000, c.Capacity())

	req.NoError(c.Sink(make([]byte, 1500)))
	req.Equal(2000, c.Capacity())

	req.NoError(c.Sink(make([]byte, 4096)))
	req.Equal(8000, c.Capacity())

	req.NoError(c.Sink(make([]byte, 4096)))
	req.Equal(16000, c.Capacity())

	req.NoError(c.Sink(make([]byte, 4096)))
	req.Equal(16000, c.Capacity())

	// growth is capped at the limit
	req.NoError(c.Sink(make([]byte, 2596)))
	req.Equal(c.Params().Limit, c.Buffered())
	req.Equal(c.Params().Limit, c.Capacity())
}
