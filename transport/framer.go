// Package transport turns a pair of USB bulk endpoints into a packet
// oriented, ordered, full duplex channel.
package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ozontech/bulkrpc/frameheader"
	"github.com/ozontech/bulkrpc/link"
	"github.com/ozontech/bulkrpc/transport/framing"
	"github.com/ozontech/bulkrpc/utils/pool"
	"github.com/ozontech/bulkrpc/utils/queue"
)

type Framer struct {
	link    link.Link
	in, out link.EndpointDesc
	conf    Config

	sendQueue *queue.Queue[[]byte]
	recvQueue *queue.Queue[[]byte]
	bufs      *pool.Bytes

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	err       error

	stats stats
	log   *zap.Logger
}

var framerID atomic.Uint32

// Open checks the protocol version, finds the bulk endpoints, resets the
// device framing state and starts the background loops. On success the
// Framer is the only user of l until Close returns; closing l stays with the
// caller.
func Open(ctx context.Context, l link.Link, conf Config, log *zap.Logger) (*Framer, error) {
	conf = conf.withDefaults()
	log = log.Named("transport").With(zap.Uint32("framer-id", framerID.Add(1)))

	if err := checkVersion(ctx, l, conf); err != nil {
		return nil, err
	}

	ifaces, err := l.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("read interfaces: %w", err)
	}
	in, out, err := link.FindEndpoints(ifaces)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.Stringer("in", in), zap.Stringer("out", out))

	if err := reset(ctx, l, in, out, conf, log); err != nil {
		return nil, err
	}

	f := &Framer{
		link:      l,
		in:        in,
		out:       out,
		conf:      conf,
		sendQueue: queue.New[[]byte](),
		recvQueue: queue.New[[]byte](),
		bufs:      pool.NewBytes(conf.MTU-frameheader.Size, 64),
		done:      make(chan struct{}),
		log:       log,
	}
	f.run()
	log.Debug("framer started")
	return f, nil
}

func (f *Framer) run() {
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel

	var sendErr, recvErr error
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sendErr = f.runSender(ctx)
		if sendErr != nil {
			f.fail(sendErr)
		}
		// пакеты, принятые после остановки отправителя, не уйдут никогда
		f.sendQueue.CloseWithError(ErrClosed)
		return sendErr
	})
	g.Go(func() error {
		recvErr = f.runReceiver(ctx)
		if recvErr != nil {
			f.fail(recvErr)
		}
		return recvErr
	})

	go func() {
		defer close(f.done)
		_ = g.Wait()
		f.err = multierr.Append(sendErr, recvErr)
		f.recvQueue.CloseWithError(ErrClosed)
		f.log.Debug("loops done", zap.Error(f.err))
	}()
}

// fail closes both queues with the fatal error of a loop, so the next Send
// and the drained Recv report it. Only the first close of a queue counts.
func (f *Framer) fail(err error) {
	f.sendQueue.CloseWithError(err)
	f.recvQueue.CloseWithError(err)
}

// Send enqueues a copy of p. It does not wait for the transfer. Once a loop
// failed Send returns its error, after Close it returns ErrClosed.
func (f *Framer) Send(p []byte) error {
	if err := framing.CheckPacket(p, f.conf.MTU); err != nil {
		return err
	}
	buf := f.bufs.Copy(p)
	if err := f.sendQueue.Push(buf); err != nil {
		f.bufs.Put(buf)
		return err
	}
	return nil
}

// Recv blocks until the next packet arrives.
func (f *Framer) Recv() ([]byte, error) {
	return f.RecvContext(context.Background())
}

// RecvContext returns packets already received even after the Framer stops,
// then ErrClosed or the fatal error of the inbound loop.
func (f *Framer) RecvContext(ctx context.Context) ([]byte, error) {
	return f.recvQueue.Pop(ctx)
}

// Close stops both loops and waits for them. Calls after the first one
// return the same result.
func (f *Framer) Close() error {
	f.closeOnce.Do(func() {
		f.sendQueue.CloseWithError(ErrClosed)
		f.cancel()
		<-f.done
		f.log.Debug("framer closed", zap.Int("unsent", f.sendQueue.Len()))
	})
	return f.err
}

// Done is closed once both loops have terminated.
func (f *Framer) Done() <-chan struct{} { return f.done }

// Link returns the underlying link so the owner can close it after Close.
func (f *Framer) Link() link.Link { return f.link }

func (f *Framer) Stats() Stats { return f.stats.snapshot() }
