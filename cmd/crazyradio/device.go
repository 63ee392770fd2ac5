package main

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ozontech/bulkrpc/link/loopback"
	"github.com/ozontech/bulkrpc/radio"
	"github.com/ozontech/bulkrpc/radio/emulator"
)

type Globals struct {
	DeviceIndex int  `group:"device" default:"0" help:"Index of the radio among the connected ones."`
	Emulate     bool `group:"device" help:"Use the built-in emulator instead of a USB device."`
	Verbose     bool `help:"Verbose output."`
}

// open returns the radio and a function that releases it.
func (g *Globals) open(ctx context.Context, log *zap.Logger) (*radio.Radio, func() error, error) {
	opts := radio.DefaultOptions()
	if !g.Emulate {
		opts.USB.Index = g.DeviceIndex
		r, err := radio.Open(ctx, opts, log)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	}

	l, dev := loopback.New()
	emu := emulator.New(dev, log)
	emuCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- emu.Run(emuCtx) }()

	stop := func() error {
		cancel()
		return <-done
	}
	r, err := radio.New(ctx, l, opts, log)
	if err != nil {
		return nil, nil, multierr.Combine(fmt.Errorf("emulated radio: %w", err), l.Close(), stop())
	}
	return r, func() error { return multierr.Append(r.Close(), stop()) }, nil
}
