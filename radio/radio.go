// Package radio is the client of the Crazyradio 2 RPC API.
package radio

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ozontech/bulkrpc/link"
	"github.com/ozontech/bulkrpc/link/usb"
	"github.com/ozontech/bulkrpc/rpc"
	"github.com/ozontech/bulkrpc/transport"
)

const (
	methodRadioModeList = "radioMode.list"
	methodRadioModeSet  = "radioMode.set"
	methodESBSendPacket = "esb.sendPacket"
	methodVersion       = "version"
)

type Options struct {
	USB       usb.Options
	Transport transport.Config
	RPC       []rpc.Opt
}

func DefaultOptions() Options {
	return Options{
		USB:       usb.DefaultOptions(),
		Transport: transport.DefaultConfig(),
	}
}

// Ack result of an ESB packet transmission. Data holds the ack payload if
// the receiver attached one.
type Ack struct {
	_     struct{} `cbor:",toarray"`
	Acked bool
	Data  []byte
	RSSI  int8
}

type Radio struct {
	link   link.Link
	framer *transport.Framer
	rpc    *rpc.Engine
	log    *zap.Logger
}

// Open opens the USB device selected by opts.USB.
func Open(ctx context.Context, opts Options, log *zap.Logger) (*Radio, error) {
	l, err := usb.Open(opts.USB, log)
	if err != nil {
		return nil, err
	}
	r, err := New(ctx, l, opts, log)
	if err != nil {
		return nil, multierr.Append(err, l.Close())
	}
	return r, nil
}

// New builds the radio on top of an opened link. The link is closed by
// Close; on error it stays with the caller.
func New(ctx context.Context, l link.Link, opts Options, log *zap.Logger) (*Radio, error) {
	log = log.Named("radio")

	f, err := transport.Open(ctx, l, opts.Transport, log)
	if err != nil {
		return nil, fmt.Errorf("open transport: %w", err)
	}
	e, err := rpc.Open(ctx, f, log, opts.RPC...)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("open rpc: %w", err), f.Close())
	}

	log.Info("radio ready", zap.Int("methods", len(e.Methods())))
	return &Radio{link: l, framer: f, rpc: e, log: log}, nil
}

func (r *Radio) RadioModeList(ctx context.Context) ([]string, error) {
	return rpc.Call[[]string](ctx, r.rpc, methodRadioModeList, nil)
}

func (r *Radio) RadioModeSet(ctx context.Context, mode string) error {
	return r.rpc.Call(ctx, methodRadioModeSet, mode, nil)
}

// ESBSendPacket sends data to address on channel and waits for the radio to
// report whether it was acknowledged.
func (r *Radio) ESBSendPacket(ctx context.Context, channel uint8, address [5]byte, data []byte) (Ack, error) {
	return rpc.Call[Ack](ctx, r.rpc, methodESBSendPacket, []any{channel, address[:], data})
}

// Version returns the version components reported by the firmware.
func (r *Radio) Version(ctx context.Context) (map[string][]int64, error) {
	return rpc.Call[map[string][]int64](ctx, r.rpc, methodVersion, nil)
}

// Call performs an arbitrary RPC call.
func (r *Radio) Call(ctx context.Context, method string, params, result any) error {
	return r.rpc.Call(ctx, method, params, result)
}

func (r *Radio) Methods() map[string]uint32 { return r.rpc.Methods() }

func (r *Radio) Stats() transport.Stats { return r.framer.Stats() }

// Close stops the RPC engine, the framer and closes the link.
func (r *Radio) Close() error {
	err := r.rpc.Close()
	err = multierr.Append(err, r.link.Close())
	r.log.Debug("radio closed", zap.Error(err))
	return err
}
