package core

import (
	"github.com/fluxripper/fluxusb/device"
	"github.com/fluxripper/fluxusb/personality"
	"github.com/fluxripper/fluxusb/pkg"
)

// Bulk-only mass-storage class requests.
const (
	// RequestBulkOnlyMassStorageReset resets the mass-storage protocol
	// engine without disturbing endpoint toggles. No data stage.
	RequestBulkOnlyMassStorageReset = 0xFF

	// RequestGetMaxLUN returns the highest Logical Unit Number. The
	// stack exposes a single unit, so the reply is always zero.
	RequestGetMaxLUN = 0xFE
)

// classBridge serves class-specific control requests on behalf of the
// active personality. Only the mass-storage personality defines any; every
// other personality stalls them.
type classBridge struct {
	router  *personality.Router
	engines map[personality.ID]personality.Engine
}

func (c *classBridge) ClassRequest(s device.SetupPacket) ([]byte, error) {
	if c.router.ActiveID() != personality.MassStorage || c.router.Switching() {
		return nil, pkg.ErrNotSupported
	}
	switch s.Request {
	case RequestBulkOnlyMassStorageReset:
		if s.DirectionIn() || s.Length != 0 {
			return nil, pkg.ErrInvalidRequest
		}
		pkg.LogInfo(pkg.ComponentCore, "bulk-only mass storage reset")
		c.engines[personality.MassStorage].ResetProtocol()
		return nil, nil

	case RequestGetMaxLUN:
		if !s.DirectionIn() {
			return nil, pkg.ErrInvalidRequest
		}
		return []byte{0}, nil

	default:
		return nil, pkg.ErrNotSupported
	}
}

func (c *classBridge) ClassData(s device.SetupPacket, data []byte) error {
	return pkg.ErrNotSupported
}
