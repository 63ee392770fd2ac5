package framing

import "github.com/ozontech/bulkrpc/frameheader"

type Status int

const (
	StatusFrameDone Status = iota
	StatusBufEmpty
	StatusHeaderIncomplete
	StatusPayloadIncomplete
)

// Reassembler keeps the carry-over between reads of the inbound loop.
// Once Next returns a status other than StatusFrameDone the unconsumed bytes
// are owned by the Reassembler and the slice passed to Fill may be reused.
type Reassembler struct {
	carry []byte
	buf   []byte
	limit int
}

// NewReassembler returns a Reassembler rejecting frames longer than limit.
// limit <= 0 allows any length the header can express.
func NewReassembler(limit int) *Reassembler {
	if limit <= 0 || limit > frameheader.MaxLength {
		limit = frameheader.MaxLength
	}
	return &Reassembler{limit: limit}
}

func (r *Reassembler) Fill(b []byte) {
	if len(r.buf) == 0 {
		r.buf = b
		return
	}
	r.keep()
	r.carry = append(r.carry, b...)
	r.buf = r.carry
}

// Next returns the next complete packet. The packet is valid until the next
// call to Next or Fill.
func (r *Reassembler) Next() ([]byte, Status, error) {
	if len(r.buf) == 0 {
		return nil, StatusBufEmpty, nil
	}
	if len(r.buf) < frameheader.Size {
		r.keep()
		return nil, StatusHeaderIncomplete, nil
	}

	l := frameheader.FrameHeader(r.buf).Length()
	if l > r.limit {
		return nil, 0, FrameError{Length: l, Limit: r.limit}
	}
	end := frameheader.Size + l
	if len(r.buf) < end {
		r.keep()
		return nil, StatusPayloadIncomplete, nil
	}

	p := r.buf[frameheader.Size:end:end]
	r.buf = r.buf[end:]
	return p, StatusFrameDone, nil
}

// keep переносит недочитанный хвост в carry (буфер чтения будет переиспользован).
func (r *Reassembler) keep() {
	r.carry = append(r.carry[:0], r.buf...)
	r.buf = r.carry
}

// Feed consumes data and returns copies of every completed packet.
func (r *Reassembler) Feed(data []byte) ([][]byte, error) {
	r.Fill(data)
	var packets [][]byte
	for {
		p, status, err := r.Next()
		if err != nil {
			return packets, err
		}
		if status != StatusFrameDone {
			return packets, nil
		}
		packets = append(packets, append(make([]byte, 0, len(p)), p...))
	}
}

// Buffered returns the number of carried bytes.
func (r *Reassembler) Buffered() int { return len(r.buf) }

func (r *Reassembler) Reset() {
	r.carry = r.carry[:0]
	r.buf = nil
}
