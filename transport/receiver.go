package transport

import (
	"context"

	"go.uber.org/zap"

	"github.com/ozontech/bulkrpc/link"
	"github.com/ozontech/bulkrpc/transport/framing"
)

func (f *Framer) runReceiver(ctx context.Context) (err error) {
	defer func() { f.log.Debug("receiver loop done", zap.Error(err)) }()

	buf := make([]byte, f.conf.MTU)
	r := framing.NewReassembler(f.conf.MaxFrameLength)

	for ctx.Err() == nil {
		rctx, cancel := context.WithTimeout(ctx, f.conf.PollTimeout)
		n, err := f.link.BulkIn(rctx, f.in.Address, buf)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if link.IsTimeout(err) {
				continue
			}
			return LoopError{Loop: "inbound", Err: err}
		}
		f.stats.transfersIn.Add(1)
		f.stats.bytesIn.Add(uint64(n))

		r.Fill(buf[:n])
		for {
			p, status, err := r.Next()
			if err != nil {
				return LoopError{Loop: "inbound", Err: err}
			}
			if status != framing.StatusFrameDone {
				break
			}
			f.stats.packetsIn.Add(1)
			if err := f.recvQueue.Push(append(make([]byte, 0, len(p)), p...)); err != nil {
				return nil
			}
		}
	}
	return nil
}
