// Package framing converts between packets and the byte stream carried by
// bulk transfers: every packet is sent as a frame of a 2-byte little-endian
// length followed by the payload, frames are concatenated up to the MTU and
// may be split across transfers.
package framing

import (
	"errors"
	"strconv"

	"github.com/ozontech/bulkrpc/frameheader"
)

var (
	ErrPacketTooLarge = errors.New("packet does not fit into mtu")
	ErrFrameTooLarge  = errors.New("declared frame length exceeds limit")
)

// FrameError is returned when the length prefix of an incoming frame declares
// a payload no legal sender could produce.
type FrameError struct {
	Length int
	Limit  int
}

func (e FrameError) Error() string {
	return "framing: declared length " + strconv.Itoa(e.Length) + " exceeds limit " + strconv.Itoa(e.Limit)
}

func (e FrameError) Unwrap() error { return ErrFrameTooLarge }

// FrameLen returns the encoded size of p.
func FrameLen(p []byte) int { return frameheader.Size + len(p) }

// CheckPacket reports whether p can be sent at all with the given mtu.
func CheckPacket(p []byte, mtu int) error {
	if FrameLen(p) > mtu || len(p) > frameheader.MaxLength {
		return ErrPacketTooLarge
	}
	return nil
}

func AppendFrame(dst, p []byte) []byte {
	dst = frameheader.Append(dst, len(p))
	return append(dst, p...)
}

// Batch accumulates frames for a single bulk transfer.
type Batch struct {
	buf []byte
	mtu int
	n   int
}

func NewBatch(buf []byte, mtu int) *Batch {
	return &Batch{buf: buf[:0], mtu: mtu}
}

// Add appends p if the batch stays within the mtu.
func (b *Batch) Add(p []byte) bool {
	if len(b.buf)+FrameLen(p) > b.mtu {
		return false
	}
	b.buf = AppendFrame(b.buf, p)
	b.n++
	return true
}

func (b *Batch) Bytes() []byte { return b.buf }
func (b *Batch) Packets() int  { return b.n }

func (b *Batch) Reset() {
	b.buf = b.buf[:0]
	b.n = 0
}

// EncodeBatch greedily encodes packets into dst until the next one would
// exceed mtu. It returns the encoded bytes and the number of packets taken;
// packets[n] (if any) must start the next batch.
func EncodeBatch(dst []byte, packets [][]byte, mtu int) ([]byte, int) {
	b := Batch{buf: dst[:0], mtu: mtu}
	for _, p := range packets {
		if !b.Add(p) {
			break
		}
	}
	return b.buf, b.n
}

// DecodeStream extracts every complete frame from carry followed by data.
// The incomplete tail, possibly a partial length prefix, is returned as the
// carry for the next call. Packets never alias data.
func DecodeStream(carry, data []byte) (packets [][]byte, rest []byte) {
	buf := make([]byte, 0, len(carry)+len(data))
	buf = append(append(buf, carry...), data...)
	for len(buf) >= frameheader.Size {
		end := frameheader.Size + frameheader.FrameHeader(buf).Length()
		if len(buf) < end {
			break
		}
		packets = append(packets, buf[frameheader.Size:end:end])
		buf = buf[end:]
	}
	return packets, buf
}
