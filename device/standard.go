package device

import (
	"github.com/fluxripper/fluxusb/pkg"
)

// handleStandard serves the standard request set. It returns the data-stage
// reply for IN requests; an error stalls the transfer.
func (c *Control) handleStandard(s SetupPacket) ([]byte, error) {
	switch s.Recipient() {
	case RecipientDevice:
		return c.handleDeviceRequest(s)
	case RecipientInterface:
		return c.handleInterfaceRequest(s)
	case RecipientEndpoint:
		return c.handleEndpointRequest(s)
	default:
		return nil, pkg.ErrInvalidRequest
	}
}

func (c *Control) handleDeviceRequest(s SetupPacket) ([]byte, error) {
	switch s.Request {
	case RequestGetStatus:
		status := byte(0)
		if c.selfPowered {
			status |= 0x01
		}
		return []byte{status, 0x00}, nil

	case RequestSetAddress:
		if s.Value > 0x7F {
			return nil, pkg.ErrInvalidParameter
		}
		// Staged only: committed when this transfer's status stage is
		// acknowledged, because the host still uses the old address
		// for the status transaction.
		c.dev.StagePendingAddress(uint8(s.Value))
		return nil, nil

	case RequestGetDescriptor:
		if c.desc == nil {
			return nil, pkg.ErrNotSupported
		}
		return c.desc.Descriptor(uint8(s.Value>>8), uint8(s.Value), s.Index)

	case RequestGetConfiguration:
		return []byte{c.dev.Configuration()}, nil

	case RequestSetConfiguration:
		c.dev.SetConfiguration(uint8(s.Value))
		c.reg.ResetToggles()
		pkg.LogInfo(pkg.ComponentControl, "configuration selected",
			"configuration", s.Value, "configured", c.dev.Configured())
		return nil, nil

	case RequestSetFeature, RequestClearFeature:
		if s.Value != FeatureRemoteWakeup {
			return nil, pkg.ErrNotSupported
		}
		// Remote wakeup is accepted but not acted on.
		return nil, nil

	default:
		return nil, pkg.ErrInvalidRequest
	}
}

func (c *Control) handleInterfaceRequest(s SetupPacket) ([]byte, error) {
	switch s.Request {
	case RequestGetStatus:
		return []byte{0x00, 0x00}, nil
	case RequestGetInterface:
		return []byte{0x00}, nil
	case RequestSetInterface:
		// Alternate settings are not used.
		if s.Value != 0 {
			return nil, pkg.ErrInvalidParameter
		}
		return nil, nil
	default:
		return nil, pkg.ErrInvalidRequest
	}
}

func (c *Control) handleEndpointRequest(s SetupPacket) ([]byte, error) {
	dir := DirOut
	if s.Index&0x80 != 0 {
		dir = DirIn
	}
	ep := c.reg.Lookup(uint8(s.Index)&0x0F, dir)
	if ep == nil {
		return nil, pkg.ErrInvalidEndpoint
	}

	switch s.Request {
	case RequestGetStatus:
		status := byte(0)
		if ep.Stalled() {
			status |= 0x01
		}
		return []byte{status, 0x00}, nil

	case RequestSetFeature:
		if s.Value != FeatureEndpointHalt {
			return nil, pkg.ErrNotSupported
		}
		ep.SetStalled(true)
		return nil, nil

	case RequestClearFeature:
		if s.Value != FeatureEndpointHalt {
			return nil, pkg.ErrNotSupported
		}
		// Clearing a halt also resets the toggle so the next transfer
		// restarts at DATA0.
		ep.SetStalled(false)
		ep.SetToggle(false)
		return nil, nil

	default:
		return nil, pkg.ErrInvalidRequest
	}
}
