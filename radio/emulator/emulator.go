// Package emulator serves the Crazyradio 2 RPC API on a loopback device so
// the whole stack runs without hardware.
package emulator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/ozontech/bulkrpc/consts"
	"github.com/ozontech/bulkrpc/link"
	"github.com/ozontech/bulkrpc/link/loopback"
	"github.com/ozontech/bulkrpc/transport/framing"
	"github.com/ozontech/bulkrpc/utils/queue"
)

const responseKind = 1

var (
	DefaultAddress = [5]byte{0xe7, 0xe7, 0xe7, 0xad, 0x42}
	DefaultVersion = map[string][]int64{"firmware": {1, 2, 0}, "protocol": {consts.ProtocolVersion}}
	DefaultModes   = []string{"esb", "ble"}
)

type request struct {
	_      struct{} `cbor:",toarray"`
	Kind   uint8
	Seq    uint64
	Method any
	Params cbor.RawMessage
}

type esbParams struct {
	_       struct{} `cbor:",toarray"`
	Channel uint8
	Address []byte
	Data    []byte
}

type handler func(params cbor.RawMessage) (any, error)

// Emulator scripted device. Every method runs synchronously in Run.
type Emulator struct {
	dev *loopback.Device

	handlers map[string]handler
	ids      map[string]uint32
	names    map[uint32]string

	mu         sync.Mutex
	mode       string
	ackChannel uint8
	address    [5]byte
	rssi       int8
	version    map[string][]int64

	calls atomic.Uint64
	log   *zap.Logger
}

type Opt interface {
	apply(*Emulator)
}

// WithAckChannel channel on which esb.sendPacket is acknowledged.
type WithAckChannel uint8

func (o WithAckChannel) apply(e *Emulator) { e.ackChannel = uint8(o) }

type WithAddress [5]byte

func (o WithAddress) apply(e *Emulator) { e.address = o }

type WithRSSI int8

func (o WithRSSI) apply(e *Emulator) { e.rssi = int8(o) }

type WithVersion map[string][]int64

func (o WithVersion) apply(e *Emulator) { e.version = o }

func New(dev *loopback.Device, log *zap.Logger, opts ...Opt) *Emulator {
	e := &Emulator{
		dev:        dev,
		ackChannel: 80,
		address:    DefaultAddress,
		rssi:       -40,
		version:    DefaultVersion,
		log:        log.Named("emulator"),
	}
	for _, o := range opts {
		o.apply(e)
	}

	e.handlers = map[string]handler{
		consts.MethodsCall: e.methods,
		"version":          e.versionCall,
		"radioMode.list":   e.radioModeList,
		"radioMode.set":    e.radioModeSet,
		"esb.sendPacket":   e.esbSendPacket,
	}
	names := make([]string, 0, len(e.handlers))
	for name := range e.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	e.ids = make(map[string]uint32, len(names))
	e.names = make(map[uint32]string, len(names))
	for i, name := range names {
		e.ids[name] = uint32(i + 1)
		e.names[uint32(i+1)] = name
	}
	return e
}

// Run serves requests until ctx is done or the link is closed.
func (e *Emulator) Run(ctx context.Context) error {
	r := framing.NewReassembler(consts.ProtocolMTU)
	var responses [][]byte
	out := make([]byte, 0, consts.ProtocolMTU)

	for {
		tr, err := e.dev.ReadOut(ctx)
		switch {
		case ctx.Err() != nil, errors.Is(err, link.ErrClosed), errors.Is(err, queue.ErrClosed):
			return nil
		case err != nil:
			return err
		}

		if len(tr) == 0 {
			// пустой трансфер сбрасывает фрейминг
			e.log.Debug("reset", zap.Int("dropped", r.Buffered()))
			r.Reset()
			continue
		}

		packets, err := r.Feed(tr)
		if err != nil {
			e.log.Warn("framing error, resetting", zap.Error(err))
			r.Reset()
		}

		responses = responses[:0]
		for _, p := range packets {
			resp, ok := e.handle(p)
			if ok {
				responses = append(responses, resp)
			}
		}

		for len(responses) > 0 {
			var n int
			out, n = framing.EncodeBatch(out, responses, consts.ProtocolMTU)
			if n == 0 {
				e.log.Error("response does not fit into mtu", zap.Int("size", len(responses[0])))
				responses = responses[1:]
				continue
			}
			if err := e.dev.WriteIn(out); err != nil {
				return nil
			}
			responses = responses[n:]
		}
	}
}

func (e *Emulator) handle(p []byte) ([]byte, bool) {
	var req request
	if err := cbor.Unmarshal(p, &req); err != nil {
		e.log.Warn("malformed request", zap.Error(err))
		return nil, false
	}
	e.calls.Add(1)

	var name string
	switch m := req.Method.(type) {
	case string:
		name = m
	case uint64:
		name = e.names[uint32(m)]
	}

	var (
		result  any
		callErr any
	)
	h, ok := e.handlers[name]
	if !ok {
		callErr = "method not found"
	} else if res, err := h(req.Params); err != nil {
		callErr = err.Error()
	} else {
		result = res
	}

	b, err := cbor.Marshal([]any{responseKind, req.Seq, callErr, result})
	if err != nil {
		e.log.Error("encode response", zap.Error(err))
		return nil, false
	}
	return b, true
}

// Calls returns the number of handled requests.
func (e *Emulator) Calls() uint64 { return e.calls.Load() }

// Mode returns the current radio mode.
func (e *Emulator) Mode() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

func (e *Emulator) methods(cbor.RawMessage) (any, error) {
	return e.ids, nil
}

func (e *Emulator) versionCall(cbor.RawMessage) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version, nil
}

func (e *Emulator) radioModeList(cbor.RawMessage) (any, error) {
	return DefaultModes, nil
}

func (e *Emulator) radioModeSet(params cbor.RawMessage) (any, error) {
	var mode string
	if err := cbor.Unmarshal(params, &mode); err != nil {
		return nil, errors.New("invalid parameters")
	}
	for _, m := range DefaultModes {
		if m == mode {
			e.mu.Lock()
			e.mode = mode
			e.mu.Unlock()
			return nil, nil
		}
	}
	return nil, errors.New("unknown radio mode")
}

func (e *Emulator) esbSendPacket(params cbor.RawMessage) (any, error) {
	var p esbParams
	if err := cbor.Unmarshal(params, &p); err != nil {
		return nil, errors.New("invalid parameters")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != "esb" {
		return nil, errors.New("radio is not in esb mode")
	}
	if p.Channel != e.ackChannel || string(p.Address) != string(e.address[:]) {
		return []any{false, nil, 0}, nil
	}
	return []any{true, p.Data, e.rssi}, nil
}
