// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package main implements the hashchop command line tool.
package main

import (
	"errors"
	"os"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/siderolabs/go-hashchop"
	"github.com/siderolabs/go-hashchop/mmap"
)

type globalOpt struct {
	Verbose []bool `short:"v" long:"verbose" description:"Verbose output"`
	Bits    int    `short:"b" long:"bits" default:"13" description:"Average chunk size as a power of two (8-30)"`
	Rate    int    `long:"rate" default:"0" description:"Limit reading input to this many bytes per second (0 is unlimited)"`
	Mmap    bool   `long:"mmap" description:"Allocate chopper buffers outside of the Go heap"`
}

var (
	globalOpts globalOpt
	cli        = flags.NewParser(&globalOpts, flags.Default)
)

func main() {
	if _, err := cli.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}

		os.Exit(1)
	}
}

// env carries the settings shared by all commands.
type env struct {
	logger    *zap.Logger
	allocator hashchop.Allocator

	bits int
	rate int
}

func newEnv() (*env, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.DisableStacktrace = true

	if len(globalOpts.Verbose) > 0 {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	e := &env{
		logger: logger,
		bits:   globalOpts.Bits,
		rate:   globalOpts.Rate,
	}

	if globalOpts.Mmap {
		e.allocator = mmap.NewAllocator()
	}

	return e, nil
}

func (e *env) chopperOptions() []hashchop.OptionFunc {
	opts := []hashchop.OptionFunc{hashchop.WithLogger(e.logger)}

	if e.allocator != nil {
		opts = append(opts, hashchop.WithAllocator(e.allocator))
	}

	return opts
}

func (e *env) close() {
	e.logger.Sync() //nolint:errcheck
}
