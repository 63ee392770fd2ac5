// Package loopback provides an in-process USB link for tests and emulation.
//
// New returns both ends of the link: the host side implements link.Link and
// is handed to the transport, the device side is driven by a device emulator.
// IN data written by the device is cut into packets of the transfer unit
// size, and a bulk IN transfer completes on a short packet or a full buffer,
// the way a USB host controller completes it.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ozontech/bulkrpc/consts"
	"github.com/ozontech/bulkrpc/link"
	"github.com/ozontech/bulkrpc/utils/queue"
)

var ErrStall = errors.New("loopback: endpoint stalled")

const (
	InEndpoint  uint8 = 0x81
	OutEndpoint uint8 = 0x01
)

type Opt interface {
	apply(*config)
}

type config struct {
	transferUnit int
	version      uint8
	ifaces       []link.InterfaceDesc
}

type WithTransferUnit int

func (o WithTransferUnit) apply(c *config) { c.transferUnit = int(o) }

type WithVersion uint8

func (o WithVersion) apply(c *config) { c.version = uint8(o) }

type WithInterfaces []link.InterfaceDesc

func (o WithInterfaces) apply(c *config) { c.ifaces = o }

// DefaultInterfaces describes a single vendor interface with one bulk pair.
func DefaultInterfaces(transferUnit int) []link.InterfaceDesc {
	return []link.InterfaceDesc{{
		Class:    consts.VendorClass,
		SubClass: consts.VendorSubClass,
		Endpoints: []link.EndpointDesc{
			{Address: InEndpoint, MaxPacketSize: transferUnit},
			{Address: OutEndpoint, MaxPacketSize: transferUnit},
		},
	}}
}

type shared struct {
	conf config

	in  *queue.Queue[[]byte] // usb-пакеты device -> host
	out *queue.Queue[[]byte] // bulk-трансферы host -> device

	mu      sync.Mutex
	version uint8
	failErr error
	partial []byte // пакет, не поместившийся в предыдущий BulkIn
}

// Link is the host end.
type Link struct {
	s *shared
}

// Device is the emulated device end.
type Device struct {
	s *shared
}

func New(opts ...Opt) (*Link, *Device) {
	conf := config{transferUnit: consts.TransferUnit, version: consts.ProtocolVersion}
	for _, o := range opts {
		o.apply(&conf)
	}
	if conf.ifaces == nil {
		conf.ifaces = DefaultInterfaces(conf.transferUnit)
	}
	s := &shared{
		conf:    conf,
		in:      queue.New[[]byte](),
		out:     queue.New[[]byte](),
		version: conf.version,
	}
	return &Link{s}, &Device{s}
}

func (l *Link) fail() error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.failErr
}

func (l *Link) ControlIn(_ context.Context, setup link.Setup, data []byte) (int, error) {
	if err := l.fail(); err != nil {
		return 0, err
	}
	if setup.RequestType != consts.VersionRequestType || setup.Request != consts.VersionRequest || len(data) == 0 {
		return 0, ErrStall
	}
	l.s.mu.Lock()
	data[0] = l.s.version
	l.s.mu.Unlock()
	return 1, nil
}

func (l *Link) BulkOut(_ context.Context, endpoint uint8, data []byte) (int, error) {
	if err := l.fail(); err != nil {
		return 0, err
	}
	if endpoint != OutEndpoint {
		return 0, ErrStall
	}
	err := l.s.out.Push(append([]byte{}, data...))
	if err != nil {
		return 0, link.ErrClosed
	}
	return len(data), nil
}

func (l *Link) BulkIn(ctx context.Context, endpoint uint8, data []byte) (int, error) {
	if err := l.fail(); err != nil {
		return 0, err
	}
	if endpoint != InEndpoint {
		return 0, ErrStall
	}

	s := l.s
	s.mu.Lock()
	p := s.partial
	s.partial = nil
	s.mu.Unlock()

	if p == nil {
		var err error
		p, err = s.in.Pop(ctx)
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return 0, fmt.Errorf("bulk in 0x%02x: %w", endpoint, link.ErrTimeout)
		case errors.Is(err, queue.ErrClosed):
			return 0, link.ErrClosed
		case err != nil:
			return 0, err
		}
	}

	var n int
	for {
		if n+len(p) > len(data) {
			s.mu.Lock()
			s.partial = p
			s.mu.Unlock()
			return n, nil
		}
		n += copy(data[n:], p)
		if len(p) < s.conf.transferUnit {
			return n, nil // short packet завершает трансфер
		}
		var ok bool
		p, ok = s.in.TryPop()
		if !ok {
			return n, nil
		}
	}
}

func (l *Link) Interfaces() ([]link.InterfaceDesc, error) {
	if err := l.fail(); err != nil {
		return nil, err
	}
	return l.s.conf.ifaces, nil
}

// Close closes both directions. Pending BulkIn and ReadOut calls return
// link.ErrClosed.
func (l *Link) Close() error {
	l.s.in.CloseWithError(link.ErrClosed)
	l.s.out.CloseWithError(link.ErrClosed)
	return nil
}

// SetVersion changes the protocol version reported by the control request.
func (d *Device) SetVersion(v uint8) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	d.s.version = v
}

// Fail makes every following host transfer fail with err.
func (d *Device) Fail(err error) {
	d.s.mu.Lock()
	d.s.failErr = err
	d.s.mu.Unlock()
	// будим заблокированный BulkIn
	d.s.in.CloseWithError(err)
}

// WriteIn sends one device transfer to the host. The data is split into
// packets of the transfer unit; a transfer that is a multiple of the unit is
// terminated with a zero length packet.
func (d *Device) WriteIn(data []byte) error {
	unit := d.s.conf.transferUnit
	for {
		n := min(unit, len(data))
		if err := d.s.in.Push(append([]byte{}, data[:n]...)); err != nil {
			return err
		}
		data = data[n:]
		if n < unit {
			return nil
		}
	}
}

// ReadOut returns the next bulk OUT transfer written by the host.
func (d *Device) ReadOut(ctx context.Context) ([]byte, error) {
	return d.s.out.Pop(ctx)
}

// PendingIn returns the number of packets not yet read by the host.
func (d *Device) PendingIn() int {
	return d.s.in.Len()
}
