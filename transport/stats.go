package transport

import "sync/atomic"

type Stats struct {
	PacketsOut   uint64
	BytesOut     uint64
	TransfersOut uint64
	PacketsIn    uint64
	BytesIn      uint64
	TransfersIn  uint64
	// Timeouts количество повторенных по таймауту OUT трансферов.
	Timeouts uint64
}

type stats struct {
	packetsOut, bytesOut, transfersOut atomic.Uint64
	packetsIn, bytesIn, transfersIn    atomic.Uint64
	timeouts                           atomic.Uint64
}

func (s *stats) snapshot() Stats {
	return Stats{
		PacketsOut:   s.packetsOut.Load(),
		BytesOut:     s.bytesOut.Load(),
		TransfersOut: s.transfersOut.Load(),
		PacketsIn:    s.packetsIn.Load(),
		BytesIn:      s.bytesIn.Load(),
		TransfersIn:  s.transfersIn.Load(),
		Timeouts:     s.timeouts.Load(),
	}
}
