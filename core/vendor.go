package core

import (
	"github.com/fluxripper/fluxusb/device"
	"github.com/fluxripper/fluxusb/personality"
	"github.com/fluxripper/fluxusb/pkg"
)

// Vendor control requests served by the stack itself.
const (
	// VendorRequestSetPersonality requests a switch to the personality
	// named by the low byte of wValue. No data stage. The request stalls
	// when the target is unbound or a switch is already in progress; the
	// drain sequence then runs over the following ticks.
	VendorRequestSetPersonality = 0x01

	// VendorRequestGetPersonality returns two bytes: the active
	// personality, and the switch target with bit 7 set while a switch is
	// in progress (zero otherwise).
	VendorRequestGetPersonality = 0x02

	// VendorRequestGetStatus returns the active engine's diagnostic
	// status byte.
	VendorRequestGetStatus = 0x03
)

// switchPendingFlag marks the pending byte of GET_PERSONALITY valid.
const switchPendingFlag = 0x80

// vendorSwitch serves the stack's own vendor control channel: personality
// switching and router diagnostics.
type vendorSwitch struct {
	router *personality.Router
}

func (v *vendorSwitch) VendorRequest(s device.SetupPacket) ([]byte, error) {
	switch s.Request {
	case VendorRequestSetPersonality:
		if s.DirectionIn() {
			return nil, pkg.ErrInvalidRequest
		}
		return nil, v.router.Request(personality.ID(s.Value))

	case VendorRequestGetPersonality:
		reply := []byte{byte(v.router.ActiveID()), 0}
		if pending, ok := v.router.Pending(); ok {
			reply[1] = byte(pending) | switchPendingFlag
		}
		return reply, nil

	case VendorRequestGetStatus:
		return []byte{v.router.Status()}, nil

	default:
		return nil, pkg.ErrNotSupported
	}
}

func (v *vendorSwitch) VendorData(s device.SetupPacket, data []byte) error {
	return pkg.ErrNotSupported
}
