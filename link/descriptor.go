package link

import (
	"fmt"

	"github.com/ozontech/bulkrpc/consts"
)

type EndpointDesc struct {
	Address       uint8 // включая бит направления
	MaxPacketSize int
}

func (e EndpointDesc) IsIn() bool     { return e.Address&0x80 != 0 }
func (e EndpointDesc) Number() uint8  { return e.Address & 0x0F }
func (e EndpointDesc) String() string { return fmt.Sprintf("ep%d(0x%02x)", e.Number(), e.Address) }

// InterfaceDesc is one alternate setting of an interface.
type InterfaceDesc struct {
	Number    uint8
	Alternate uint8
	Class     uint8
	SubClass  uint8
	Endpoints []EndpointDesc
}

// DescriptorError reports that the descriptors do not describe the expected
// vendor interface.
type DescriptorError struct {
	Reason string
}

func (e DescriptorError) Error() string { return "usb descriptor error: " + e.Reason }

// FindEndpoints selects the bulk endpoint pair: only the first interface is
// considered, its first vendor specific (class 0xff, subclass 0) setting, and
// the first IN and OUT endpoints of that setting.
func FindEndpoints(ifaces []InterfaceDesc) (in, out EndpointDesc, err error) {
	if len(ifaces) == 0 {
		return in, out, DescriptorError{"cannot find first interface"}
	}

	first := ifaces[0].Number
	var setting *InterfaceDesc
	for i := range ifaces {
		d := &ifaces[i]
		if d.Number != first {
			continue
		}
		if d.Class == consts.VendorClass && d.SubClass == consts.VendorSubClass {
			setting = d
			break
		}
	}
	if setting == nil {
		return in, out, DescriptorError{"interface descriptor not found"}
	}

	var foundIn, foundOut bool
	for _, ep := range setting.Endpoints {
		switch {
		case ep.IsIn() && !foundIn:
			in, foundIn = ep, true
		case !ep.IsIn() && !foundOut:
			out, foundOut = ep, true
		}
	}
	if !foundIn {
		return in, out, DescriptorError{"IN endpoint not found"}
	}
	if !foundOut {
		return in, out, DescriptorError{"OUT endpoint not found"}
	}
	return in, out, nil
}
