package main

import (
	"context"
	"io"
	"math"
	"net/http"
	_ "net/http/pprof" //nolint:gosec
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	mangokong "github.com/alecthomas/mango-kong"
	"go.uber.org/zap"
)

var CLI struct {
	Methods MethodsCommand `cmd:"" help:"List methods exposed by the radio."`
	Call    CallCommand    `cmd:"" help:"Call an arbitrary method."`
	Scan    ScanCommand    `cmd:"" help:"Scan ESB channels for a receiver."`
	Bench   BenchCommand   `cmd:"" help:"Measure call throughput."`

	Globals

	Man         mangokong.ManFlag `help:"Write man page." hidden:""`
	DebugServer string            `help:"Listen address of the pprof debug server." placeholder:":8081"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(
		&CLI,
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.BindTo(os.Stdout, (*io.Writer)(nil)),
		kong.Bind(&CLI.Globals, DurationLimit{Duration: math.MaxInt64}),
		kong.Groups(map[string]string{
			"device": `Device flags:`,
		}),
		kong.ConfigureHelp(kong.HelpOptions{
			Tree:    true,
			Compact: true,
		}),
		kong.Description(`host tool for the Crazyradio 2 RPC API

Talks CBOR RPC to the radio over the USB bulk transport. Use --emulate to run against an in-process emulator.
		`),
	)

	if CLI.DebugServer != "" {
		go func() {
			http.ListenAndServe(CLI.DebugServer, nil) //nolint:errcheck,gosec
		}()
	}

	log := zap.NewNop()
	if CLI.Verbose {
		log = zap.Must(zap.NewDevelopment())
	}
	defer log.Sync() //nolint:errcheck
	kongCtx.Bind(log)

	err := kongCtx.Run()
	kongCtx.FatalIfErrorf(err)
}
