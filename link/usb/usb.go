// Package usb implements link.Link on top of libusb (github.com/google/gousb).
package usb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ozontech/bulkrpc/consts"
	"github.com/ozontech/bulkrpc/link"
)

type Options struct {
	VendorID  uint16
	ProductID uint16
	Index     int // порядковый номер среди подходящих устройств
}

func DefaultOptions() Options {
	return Options{
		VendorID:  consts.CrazyradioVendorID,
		ProductID: consts.CrazyradioProductID,
	}
}

// Link is an opened USB device. Interfaces are claimed lazily on the first
// transfer to one of their endpoints.
type Link struct {
	ctx *gousb.Context
	dev *gousb.Device
	cfg *gousb.Config

	mu    sync.Mutex
	intfs map[[2]int]*gousb.Interface
	in    map[uint8]*gousb.InEndpoint
	out   map[uint8]*gousb.OutEndpoint

	log *zap.Logger
}

func Open(opts Options, log *zap.Logger) (_ *Link, err error) {
	log = log.Named("usb")
	usbCtx := gousb.NewContext()
	defer func() {
		if err != nil {
			err = multierr.Append(err, usbCtx.Close())
		}
	}()

	devs, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(opts.VendorID) && desc.Product == gousb.ID(opts.ProductID)
	})
	var dev *gousb.Device
	for i, d := range devs {
		if i == opts.Index {
			dev = d
			continue
		}
		d.Close() //nolint:errcheck
	}
	if dev == nil {
		if err != nil {
			return nil, fmt.Errorf("open %04x:%04x: %w", opts.VendorID, opts.ProductID, err)
		}
		return nil, fmt.Errorf("%04x:%04x #%d: %w", opts.VendorID, opts.ProductID, opts.Index, link.ErrNoDevice)
	}
	if err != nil {
		// OpenDevices отдает открытые устройства вместе с ошибками по остальным
		log.Warn("some devices could not be opened", zap.Error(err))
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, dev.Close())
		}
	}()

	dev.ControlTimeout = consts.ControlTimeout
	if err = dev.SetAutoDetach(true); err != nil {
		return nil, fmt.Errorf("set auto detach: %w", err)
	}

	cfgNum, err := dev.ActiveConfigNum()
	if err != nil {
		return nil, fmt.Errorf("active config: %w", err)
	}
	cfg, err := dev.Config(cfgNum)
	if err != nil {
		return nil, fmt.Errorf("config %d: %w", cfgNum, err)
	}

	log.Info("device opened",
		zap.Stringer("vendor", gousb.ID(opts.VendorID)),
		zap.Stringer("product", gousb.ID(opts.ProductID)),
		zap.Int("index", opts.Index),
		zap.Int("config", cfgNum),
	)
	return &Link{
		ctx:   usbCtx,
		dev:   dev,
		cfg:   cfg,
		intfs: make(map[[2]int]*gousb.Interface),
		in:    make(map[uint8]*gousb.InEndpoint),
		out:   make(map[uint8]*gousb.OutEndpoint),
		log:   log,
	}, nil
}

func (l *Link) Interfaces() ([]link.InterfaceDesc, error) {
	var res []link.InterfaceDesc
	for _, intf := range l.cfg.Desc.Interfaces {
		for _, alt := range intf.AltSettings {
			d := link.InterfaceDesc{
				Number:    uint8(alt.Number),
				Alternate: uint8(alt.Alternate),
				Class:     uint8(alt.Class),
				SubClass:  uint8(alt.SubClass),
			}
			for _, ep := range alt.Endpoints {
				d.Endpoints = append(d.Endpoints, link.EndpointDesc{
					Address:       uint8(ep.Address),
					MaxPacketSize: ep.MaxPacketSize,
				})
			}
			sortEndpoints(d.Endpoints)
			res = append(res, d)
		}
	}
	return res, nil
}

// gousb хранит эндпоинты в map, порядок дескриптора восстанавливаем по номеру
func sortEndpoints(eps []link.EndpointDesc) {
	for i := 1; i < len(eps); i++ {
		for j := i; j > 0 && eps[j].Number() < eps[j-1].Number(); j-- {
			eps[j], eps[j-1] = eps[j-1], eps[j]
		}
	}
}

// claim returns the claimed interface owning the endpoint address.
func (l *Link) claim(addr uint8) (*gousb.Interface, int, error) {
	for _, intf := range l.cfg.Desc.Interfaces {
		for _, alt := range intf.AltSettings {
			ep, ok := alt.Endpoints[gousb.EndpointAddress(addr)]
			if !ok {
				continue
			}
			key := [2]int{alt.Number, alt.Alternate}
			if claimed, ok := l.intfs[key]; ok {
				return claimed, ep.Number, nil
			}
			claimed, err := l.cfg.Interface(alt.Number, alt.Alternate)
			if err != nil {
				return nil, 0, fmt.Errorf("claim interface %d/%d: %w", alt.Number, alt.Alternate, err)
			}
			l.intfs[key] = claimed
			l.log.Debug("interface claimed", zap.Int("interface", alt.Number), zap.Int("alt", alt.Alternate))
			return claimed, ep.Number, nil
		}
	}
	return nil, 0, fmt.Errorf("endpoint 0x%02x: %w", addr, link.ErrNoDevice)
}

func (l *Link) inEndpoint(addr uint8) (*gousb.InEndpoint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ep, ok := l.in[addr]; ok {
		return ep, nil
	}
	intf, num, err := l.claim(addr)
	if err != nil {
		return nil, err
	}
	ep, err := intf.InEndpoint(num)
	if err != nil {
		return nil, err
	}
	l.in[addr] = ep
	return ep, nil
}

func (l *Link) outEndpoint(addr uint8) (*gousb.OutEndpoint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ep, ok := l.out[addr]; ok {
		return ep, nil
	}
	intf, num, err := l.claim(addr)
	if err != nil {
		return nil, err
	}
	ep, err := intf.OutEndpoint(num)
	if err != nil {
		return nil, err
	}
	l.out[addr] = ep
	return ep, nil
}

func (l *Link) ControlIn(ctx context.Context, setup link.Setup, data []byte) (int, error) {
	if deadline, ok := ctx.Deadline(); ok {
		l.dev.ControlTimeout = time.Until(deadline)
	}
	n, err := l.dev.Control(setup.RequestType, setup.Request, setup.Value, setup.Index, data)
	return n, mapErr(ctx, err)
}

func (l *Link) BulkIn(ctx context.Context, endpoint uint8, data []byte) (int, error) {
	ep, err := l.inEndpoint(endpoint)
	if err != nil {
		return 0, err
	}
	n, err := ep.ReadContext(ctx, data)
	return n, mapErr(ctx, err)
}

func (l *Link) BulkOut(ctx context.Context, endpoint uint8, data []byte) (int, error) {
	ep, err := l.outEndpoint(endpoint)
	if err != nil {
		return 0, err
	}
	n, err := ep.WriteContext(ctx, data)
	return n, mapErr(ctx, err)
}

// mapErr приводит таймауты libusb и отмену по дедлайну контекста к link.ErrTimeout.
func mapErr(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gousb.ErrorTimeout), errors.Is(err, gousb.TransferTimedOut):
		return fmt.Errorf("%w: %w", link.ErrTimeout, err)
	case errors.Is(err, gousb.TransferCancelled) && errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", link.ErrTimeout, err)
	case errors.Is(err, gousb.ErrorNoDevice):
		return fmt.Errorf("%w: %w", link.ErrNoDevice, err)
	}
	return err
}

func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, intf := range l.intfs {
		intf.Close()
	}
	l.intfs = nil
	l.in, l.out = nil, nil

	return multierr.Combine(
		l.cfg.Close(),
		l.dev.Close(),
		l.ctx.Close(),
	)
}
