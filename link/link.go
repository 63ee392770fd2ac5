// Package link describes the physical USB link the transport runs over.
//
// Opening and enumerating devices is the job of a backend (see link/usb and
// link/loopback); the transport only needs one control read, descriptor
// lookup and bulk transfers on the vendor interface.
package link

import (
	"context"
	"errors"
)

var (
	// ErrTimeout is matched by every backend error caused by a transfer
	// timing out. Timeouts are not link failures.
	ErrTimeout  = errors.New("link: transfer timeout")
	ErrClosed   = errors.New("link: closed")
	ErrNoDevice = errors.New("link: device not found")
)

// Setup is the SETUP stage of a control transfer. The length is taken from
// the data buffer.
type Setup struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
}

type Link interface {
	// ControlIn performs a device-to-host control transfer into data.
	ControlIn(ctx context.Context, setup Setup, data []byte) (int, error)
	// BulkIn reads from an IN endpoint. The transfer ends on a short packet,
	// so n may be less than len(data).
	BulkIn(ctx context.Context, endpoint uint8, data []byte) (int, error)
	// BulkOut writes data to an OUT endpoint. A zero length write is a valid
	// zero length packet.
	BulkOut(ctx context.Context, endpoint uint8, data []byte) (int, error)
	// Interfaces returns the interface descriptors of the active configuration.
	Interfaces() ([]InterfaceDesc, error)
	Close() error
}

// IsTimeout reports whether err is a transfer timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
