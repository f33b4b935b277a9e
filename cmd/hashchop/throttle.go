// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// throttledReader limits the rate of reads from the underlying reader.
type throttledReader struct {
	ctx     context.Context //nolint:containedctx
	r       io.Reader
	limiter *rate.Limiter
}

// throttle returns r limited to bytesPerSec, or r as is if bytesPerSec is not positive.
func throttle(ctx context.Context, r io.Reader, bytesPerSec int) io.Reader {
	if bytesPerSec <= 0 {
		return r
	}

	return &throttledReader{
		ctx:     ctx,
		r:       r,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec),
	}
}

func (t *throttledReader) Read(p []byte) (int, error) {
	// limiter allows waiting for at most Burst() tokens at once
	if burst := t.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}

	n, err := t.r.Read(p)

	if n > 0 {
		if waitErr := t.limiter.WaitN(t.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}

	return n, err
}
