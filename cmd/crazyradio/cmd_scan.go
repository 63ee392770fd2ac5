package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxChannel = 125

type ScanCommand struct {
	From    uint8         `default:"0" help:"First channel."`
	To      uint8         `default:"100" help:"Last channel."`
	Address string        `default:"e7e7e7ad42" help:"Receiver address, 5 bytes in hex."`
	Data    string        `default:"ff" help:"Payload in hex."`
	Rate    float64       `default:"0" help:"Packets per second, 0 for no limit."`
	Timeout time.Duration `default:"1s" help:"Timeout of a single transmission."`

	address [5]byte
	data    []byte
}

func (c *ScanCommand) Validate() error {
	if c.From > c.To {
		return errors.New("--from must not be greater than --to")
	}
	if c.To > maxChannel {
		return fmt.Errorf("--to must not exceed %d", maxChannel)
	}
	addr, err := hex.DecodeString(c.Address)
	if err != nil {
		return fmt.Errorf("--address: %w", err)
	}
	if len(addr) != len(c.address) {
		return fmt.Errorf("--address must be %d bytes long", len(c.address))
	}
	copy(c.address[:], addr)
	c.data, err = hex.DecodeString(c.Data)
	if err != nil {
		return fmt.Errorf("--data: %w", err)
	}
	return nil
}

func (c *ScanCommand) Run(ctx context.Context, g *Globals, log *zap.Logger, out io.Writer) (err error) {
	r, release, err := g.open(ctx, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, release()) }()

	if err := r.RadioModeSet(ctx, "esb"); err != nil {
		return fmt.Errorf("set esb mode: %w", err)
	}

	limit := rate.Inf
	if c.Rate > 0 {
		limit = rate.Limit(c.Rate)
	}
	limiter := rate.NewLimiter(limit, 1)

	var acked, total int
	for ch := int(c.From); ch <= int(c.To); ch++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, c.Timeout)
		ack, err := r.ESBSendPacket(callCtx, uint8(ch), c.address, c.data)
		cancel()
		if err != nil {
			return fmt.Errorf("channel %d: %w", ch, err)
		}
		total++
		log.Debug("packet sent", zap.Int("channel", ch), zap.Bool("acked", ack.Acked))
		if !ack.Acked {
			continue
		}
		acked++
		if _, err := fmt.Fprintf(out, "channel %d: ack rssi=%d data=%x\n", ch, ack.RSSI, ack.Data); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(out, "%d of %d channels acked\n", acked, total)
	return err
}
