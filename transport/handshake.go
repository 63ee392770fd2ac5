package transport

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ozontech/bulkrpc/consts"
	"github.com/ozontech/bulkrpc/link"
)

func checkVersion(ctx context.Context, l link.Link, conf Config) error {
	ctx, cancel := context.WithTimeout(ctx, conf.ControlTimeout)
	defer cancel()

	b := make([]byte, 1)
	n, err := l.ControlIn(ctx, link.Setup{
		RequestType: consts.VersionRequestType,
		Request:     consts.VersionRequest,
	}, b)
	if err != nil {
		return fmt.Errorf("read protocol version: %w", err)
	}
	if n != 1 {
		return errors.New("read protocol version: empty response")
	}
	if b[0] != conf.ProtocolVersion {
		return VersionError{Expected: conf.ProtocolVersion, Got: b[0]}
	}
	return nil
}

// reset синхронизирует фрейминг с устройством: пустой OUT трансфер
// сбрасывает его состояние, затем вычитываем все, что оно успело
// отправить до нас, пока не придет короткий трансфер.
func reset(ctx context.Context, l link.Link, in, out link.EndpointDesc, conf Config, log *zap.Logger) error {
	wctx, cancel := context.WithTimeout(ctx, conf.PollTimeout)
	_, err := l.BulkOut(wctx, out.Address, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("reset: write zero length packet: %w", err)
	}

	unit := in.MaxPacketSize
	if unit <= 0 {
		unit = conf.TransferUnit
	}
	buf := make([]byte, unit)

	var drained int
	for {
		rctx, cancel := context.WithTimeout(ctx, conf.DrainTimeout)
		n, err := l.BulkIn(rctx, in.Address, buf)
		cancel()
		if err != nil && ctx.Err() == nil && link.IsTimeout(err) {
			n, err = 0, nil
		}
		if err != nil {
			return fmt.Errorf("reset: drain: %w", err)
		}
		drained += n
		if n < unit {
			break
		}
	}

	if drained > 0 {
		log.Debug("drained stale data", zap.Int("bytes", drained))
	}
	return nil
}
