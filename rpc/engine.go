// Package rpc implements CBOR request/response calls multiplexed over a
// packet connection.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ozontech/bulkrpc/consts"
)

// PacketConn ordered packet channel. *transport.Framer implements it.
// Close must make a blocked Recv return.
type PacketConn interface {
	Send(p []byte) error
	Recv() ([]byte, error)
	Close() error
}

type call struct {
	method string
	done   chan reply
}

// reply ответ на вызов либо ошибка разбора ответа с известным seq.
type reply struct {
	resp response
	err  error
}

type Engine struct {
	conn    PacketConn
	seq     atomic.Uint64
	pending PendingStore[*call]
	methods map[string]uint32

	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
	err       error // причина остановки dispatch, читается после done

	log *zap.Logger
}

// Open starts the dispatch loop and requests the method table. A failed
// method table request leaves the table empty and calls go by name.
func Open(ctx context.Context, conn PacketConn, log *zap.Logger, opts ...Opt) (*Engine, error) {
	conf := defaultConfig()
	for _, o := range opts {
		o.apply(&conf)
	}

	e := &Engine{
		conn: conn,
		pending: NewShardedPendingMap(conf.pendingShards, func() PendingStore[*call] {
			return NewPendingMap[*call](16)
		}),
		done: make(chan struct{}),
		log:  log.Named("rpc"),
	}
	go e.dispatch()

	if conf.bootstrap {
		if err := e.bootstrap(ctx, conf); err != nil {
			return nil, multierr.Append(err, e.Close())
		}
	}
	return e, nil
}

func (e *Engine) bootstrap(ctx context.Context, conf config) error {
	ctx, cancel := context.WithTimeout(ctx, conf.bootstrapTimeout)
	defer cancel()

	var methods map[string]uint32
	err := e.Call(ctx, consts.MethodsCall, nil, &methods)
	switch {
	case errors.Is(err, ErrClosed):
		return err
	case err != nil:
		e.log.Warn("method table request failed, calling methods by name", zap.Error(err))
		return nil
	}

	e.methods = methods
	e.log.Debug("method table loaded", zap.Int("methods", len(methods)))
	return nil
}

func (e *Engine) dispatch() {
	var err error
	defer func() {
		e.err = err
		close(e.done)
		e.failPending()
	}()

	for {
		var p []byte
		p, err = e.conn.Recv()
		if err != nil {
			if !e.closing.Load() {
				e.log.Error("dispatch loop stopped", zap.Error(err))
			}
			return
		}

		var r reply
		seq, derr := decodeResponse(p, &r.resp)
		if derr != nil {
			e.log.Warn("malformed response", zap.Error(derr), zap.Binary("packet", p))
			if seq == 0 {
				continue
			}
		}

		c, ok := e.pending.GetAndDelete(seq)
		if !ok {
			e.log.Warn("response for unknown call", zap.Uint64("seq", seq))
			continue
		}
		if derr != nil {
			r.err = &DecodeError{Method: c.method, Raw: p, Err: derr}
		}
		c.done <- r
	}
}

// failPending удаляет слоты вызовов, ждущих ответа. Сами вызовы
// завершаются по закрытию done.
func (e *Engine) failPending() {
	var seqs []uint64
	e.pending.Each(func(seq uint64, _ *call) {
		seqs = append(seqs, seq)
	})
	for _, seq := range seqs {
		e.pending.Delete(seq)
	}
	if len(seqs) > 0 {
		e.log.Debug("pending calls failed", zap.Int("count", len(seqs)))
	}
}

func (e *Engine) stopErr() error {
	if e.closing.Load() || e.err == nil {
		return ErrClosed
	}
	return fmt.Errorf("%w: %w", ErrClosed, e.err)
}

// Call sends method with params and waits for the response. result must be
// a pointer or nil to discard the result value.
func (e *Engine) Call(ctx context.Context, method string, params, result any) error {
	if e.closing.Load() {
		return ErrClosed
	}
	select {
	case <-e.done:
		return e.stopErr()
	default:
	}

	seq := e.seq.Add(1)
	b, err := cbor.Marshal(request{
		Kind:   kindRequest,
		Seq:    seq,
		Method: e.methodKey(method),
		Params: params,
	})
	if err != nil {
		return &EncodeError{Method: method, Err: err}
	}

	c := &call{method: method, done: make(chan reply, 1)}
	e.pending.Set(seq, c)
	if err := e.conn.Send(b); err != nil {
		e.pending.Delete(seq)
		if e.closing.Load() {
			return ErrClosed
		}
		return fmt.Errorf("call %s: send: %w", method, err)
	}

	var r reply
	select {
	case r = <-c.done:
	case <-ctx.Done():
		e.pending.Delete(seq)
		return fmt.Errorf("call %s: %w", method, ctx.Err())
	case <-e.done:
		select {
		case r = <-c.done:
		default:
			return e.stopErr()
		}
	}
	if r.err != nil {
		return r.err
	}
	return decodeResult(method, r.resp, result)
}

// Call is Engine.Call returning the decoded result.
func Call[R any](ctx context.Context, e *Engine, method string, params any) (R, error) {
	var r R
	err := e.Call(ctx, method, params, &r)
	return r, err
}

func decodeResult(method string, resp response, result any) error {
	if !isNull(resp.Error) {
		return remoteError(method, resp.Error)
	}
	if result == nil {
		return nil
	}

	raw := resp.Result
	if len(raw) == 0 {
		raw = cbor.RawMessage{cborNull}
	}
	if err := cbor.Unmarshal(raw, result); err != nil {
		return &DecodeError{Method: method, Raw: raw, Err: err}
	}
	return nil
}

func remoteError(method string, raw cbor.RawMessage) error {
	if isText(raw) {
		var msg string
		if err := cbor.Unmarshal(raw, &msg); err == nil {
			return &CallError{Method: method, Message: msg}
		}
	}
	var v any
	if err := cbor.Unmarshal(raw, &v); err != nil {
		v = []byte(raw)
	}
	return &CallError{Method: method, Value: v}
}

func (e *Engine) methodKey(method string) any {
	if id, ok := e.methods[method]; ok {
		return id
	}
	return method
}

// Methods returns a copy of the method table.
func (e *Engine) Methods() map[string]uint32 {
	m := make(map[string]uint32, len(e.methods))
	for k, v := range e.methods {
		m[k] = v
	}
	return m
}

func (e *Engine) MethodID(name string) (uint32, bool) {
	id, ok := e.methods[name]
	return id, ok
}

// Pending returns the number of calls waiting for a response.
func (e *Engine) Pending() int { return e.pending.Len() }

// Close closes the connection and waits for the dispatch loop. Calls still
// waiting fail with ErrClosed.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closing.Store(true)
		e.closeErr = e.conn.Close()
		<-e.done
	})
	return e.closeErr
}
