package transport

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ozontech/bulkrpc/link"
	"github.com/ozontech/bulkrpc/transport/framing"
)

// runSender собирает из очереди столько пакетов, сколько помещается в MTU,
// и отправляет их одним bulk OUT трансфером. Пакет, не поместившийся в
// текущий батч, открывает следующий.
func (f *Framer) runSender(ctx context.Context) (err error) {
	defer func() { f.log.Debug("sender loop done", zap.Error(err)) }()

	batch := framing.NewBatch(make([]byte, 0, f.conf.MTU), f.conf.MTU)
	inBatch := make([][]byte, 0, f.conf.MTU/2)
	var leftover []byte

	for {
		p := leftover
		leftover = nil
		if p == nil {
			p, err = f.sendQueue.Pop(ctx)
			if err != nil {
				// отмена или закрытие очереди
				return nil
			}
		}

		batch.Reset()
		inBatch = inBatch[:0]
		if !batch.Add(p) {
			// Send проверяет размер, сюда попасть не должны
			f.log.Error("packet does not fit into empty batch", zap.Int("size", len(p)))
			f.bufs.Put(p)
			continue
		}
		inBatch = append(inBatch, p)

		for {
			next, ok := f.sendQueue.TryPop()
			if !ok {
				break
			}
			if !batch.Add(next) {
				leftover = next
				break
			}
			inBatch = append(inBatch, next)
		}

		if err := f.write(ctx, batch.Bytes()); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return LoopError{Loop: "outbound", Err: err}
		}

		f.stats.transfersOut.Add(1)
		f.stats.packetsOut.Add(uint64(batch.Packets()))
		f.stats.bytesOut.Add(uint64(len(batch.Bytes())))
		for _, p := range inBatch {
			f.bufs.Put(p)
		}
	}
}

// write повторяет трансфер, пока он завершается по таймауту.
func (f *Framer) write(ctx context.Context, b []byte) error {
	for {
		wctx, cancel := context.WithTimeout(ctx, f.conf.PollTimeout)
		n, err := f.link.BulkOut(wctx, f.out.Address, b)
		cancel()
		switch {
		case err == nil && n != len(b):
			return fmt.Errorf("short write: %d of %d bytes", n, len(b))
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case !link.IsTimeout(err):
			return err
		}
		f.stats.timeouts.Add(1)
		f.log.Debug("bulk out timeout, retrying", zap.Int("size", len(b)))
	}
}
