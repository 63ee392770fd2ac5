package transport

import (
	"time"

	"github.com/ozontech/bulkrpc/consts"
)

type Config struct {
	// MTU ограничивает размер одного bulk-трансфера в обе стороны.
	MTU int
	// TransferUnit размер физического USB-пакета. Используется при сбросе,
	// если дескриптор IN эндпоинта не сообщает wMaxPacketSize.
	TransferUnit    int
	ProtocolVersion uint8

	PollTimeout    time.Duration
	DrainTimeout   time.Duration
	ControlTimeout time.Duration

	// MaxFrameLength максимальная длина входящего пакета.
	MaxFrameLength int
}

func DefaultConfig() Config {
	return Config{
		MTU:             consts.ProtocolMTU,
		TransferUnit:    consts.TransferUnit,
		ProtocolVersion: consts.ProtocolVersion,
		PollTimeout:     consts.PollTimeout,
		DrainTimeout:    consts.DrainTimeout,
		ControlTimeout:  consts.ControlTimeout,
		MaxFrameLength:  consts.ProtocolMTU,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MTU <= 0 {
		c.MTU = d.MTU
	}
	if c.TransferUnit <= 0 {
		c.TransferUnit = d.TransferUnit
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = d.PollTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = d.DrainTimeout
	}
	if c.ControlTimeout <= 0 {
		c.ControlTimeout = d.ControlTimeout
	}
	if c.MaxFrameLength <= 0 {
		c.MaxFrameLength = c.MTU
	}
	return c
}
