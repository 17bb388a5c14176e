package device

import (
	"github.com/fluxripper/fluxusb/pkg"
)

// maxControlData bounds the data stage of a control transfer in either
// direction.
const maxControlData = 512

// DescriptorSource supplies descriptor bytes for GET_DESCRIPTOR. The wValue
// high byte selects the type, the low byte the index; lang carries wIndex
// (the language ID for string descriptors).
type DescriptorSource interface {
	Descriptor(typ, index uint8, lang uint16) ([]byte, error)
}

// VendorHandler serves vendor-specific control requests (bmRequestType bits
// 6:5 == 10). VendorRequest handles IN and no-data requests, returning the
// data-stage bytes if any; VendorData receives the data stage of an OUT
// request. A returned error stalls the transfer.
type VendorHandler interface {
	VendorRequest(s SetupPacket) ([]byte, error)
	VendorData(s SetupPacket, data []byte) error
}

// ClassHandler serves class-specific control requests with the same
// contract as VendorHandler. The personality layer binds the handler for
// the currently active protocol here.
type ClassHandler interface {
	ClassRequest(s SetupPacket) ([]byte, error)
	ClassData(s SetupPacket, data []byte) error
}

// ctrlState tracks the control transfer stage.
type ctrlState int

const (
	ctrlIdle      ctrlState = iota
	ctrlDataIn              // Device-to-host data stage in progress
	ctrlDataOut             // Host-to-device data stage in progress
	ctrlStatusIn            // Device sends zero-length status, host ACKs
	ctrlStatusOut           // Host sends zero-length status, device ACKs
)

// Control is the control transfer manager. It implements Handler for the
// default endpoint and sequences each transfer through SETUP, optional data
// stage, and status stage.
//
// Address assignment is deferred: SET_ADDRESS stages the new address on the
// device and Control commits it only when the status stage of that transfer
// is acknowledged.
type Control struct {
	dev *Device
	reg *Registry

	desc   DescriptorSource
	vendor VendorHandler
	class  ClassHandler

	maxPacket   int
	selfPowered bool

	state   ctrlState
	stalled bool
	setup   SetupPacket

	// IN data stage.
	inData     []byte
	inOff      int
	zlpPending bool

	// OUT data stage.
	outBuf [maxControlData]byte
	outLen int
}

// NewControl creates a control transfer manager. maxPacket is the default
// endpoint's maximum packet size and must match its registry entry.
func NewControl(dev *Device, reg *Registry, maxPacket int) *Control {
	return &Control{dev: dev, reg: reg, maxPacket: maxPacket}
}

// SetDescriptorSource binds the descriptor supplier for GET_DESCRIPTOR.
func (c *Control) SetDescriptorSource(ds DescriptorSource) {
	c.desc = ds
}

// SetVendorHandler binds the vendor-specific request handler.
func (c *Control) SetVendorHandler(vh VendorHandler) {
	c.vendor = vh
}

// SetClassHandler binds the class-specific request handler.
func (c *Control) SetClassHandler(ch ClassHandler) {
	c.class = ch
}

// SetSelfPowered sets the self-powered bit reported by GET_STATUS.
func (c *Control) SetSelfPowered(v bool) {
	c.selfPowered = v
}

// Reset aborts any transfer in progress. Bus reset invokes this.
func (c *Control) Reset() {
	c.state = ctrlIdle
	c.stalled = false
	c.inData = nil
	c.inOff = 0
	c.zlpPending = false
	c.outLen = 0
}

// Setup begins a new control transfer. Any transfer in progress is
// abandoned; a protocol stall from a previous request is cleared.
func (c *Control) Setup(data []byte) {
	c.Reset()

	s, err := ParseSetup(data)
	if err != nil {
		c.fail(err)
		return
	}
	c.setup = s
	pkg.LogDebug(pkg.ComponentControl, "SETUP", "request", s.String())

	if s.Length > 0 && !s.DirectionIn() {
		if int(s.Length) > maxControlData {
			c.fail(pkg.ErrBufferTooSmall)
			return
		}
		c.state = ctrlDataOut
		return
	}

	reply, err := c.dispatch(s)
	if err != nil {
		c.fail(err)
		return
	}

	if s.DirectionIn() && s.Length > 0 {
		if len(reply) > int(s.Length) {
			reply = reply[:s.Length]
		}
		c.inData = reply
		// A full-size final packet that undershoots wLength needs a
		// zero-length packet to terminate the stage.
		c.zlpPending = len(reply) < int(s.Length) && len(reply)%c.maxPacket == 0 && len(reply) > 0
		c.state = ctrlDataIn
		return
	}
	c.state = ctrlStatusIn
}

// dispatch routes a request with no OUT data stage to its handler and
// returns the data-stage reply, if any.
func (c *Control) dispatch(s SetupPacket) ([]byte, error) {
	switch s.Type() {
	case RequestTypeVendor:
		if c.vendor == nil {
			return nil, pkg.ErrNotSupported
		}
		return c.vendor.VendorRequest(s)
	case RequestTypeClass:
		if c.class == nil {
			return nil, pkg.ErrNotSupported
		}
		return c.class.ClassRequest(s)
	case RequestTypeStandard:
		return c.handleStandard(s)
	default:
		return nil, pkg.ErrInvalidRequest
	}
}

// dispatchOutData routes a completed OUT data stage to its handler.
func (c *Control) dispatchOutData(s SetupPacket, data []byte) error {
	switch s.Type() {
	case RequestTypeVendor:
		if c.vendor == nil {
			return pkg.ErrNotSupported
		}
		return c.vendor.VendorData(s, data)
	case RequestTypeClass:
		if c.class == nil {
			return pkg.ErrNotSupported
		}
		return c.class.ClassData(s, data)
	default:
		// SET_DESCRIPTOR is the only standard request with OUT data;
		// it is not supported.
		return pkg.ErrNotSupported
	}
}

// DataIn serves IN transactions on the default endpoint: data-stage chunks,
// the terminating zero-length packet, and the zero-length status stage.
func (c *Control) DataIn(buf []byte) (int, error) {
	if c.stalled {
		return 0, pkg.ErrStall
	}
	switch c.state {
	case ctrlDataIn:
		if c.inOff >= len(c.inData) {
			// Only reachable when a zero-length packet terminates
			// the stage.
			return 0, nil
		}
		return copy(buf, c.inData[c.inOff:]), nil
	case ctrlStatusIn:
		return 0, nil
	default:
		return 0, pkg.ErrStall
	}
}

// InAcked advances the transfer when the host acknowledges an IN packet.
// The data-stage offset moves here rather than in DataIn so that a
// retransmitted packet carries identical bytes.
func (c *Control) InAcked() {
	switch c.state {
	case ctrlDataIn:
		remaining := len(c.inData) - c.inOff
		if remaining > c.maxPacket {
			remaining = c.maxPacket
		}
		c.inOff += remaining
		if c.inOff < len(c.inData) {
			return
		}
		if c.zlpPending {
			// The acknowledged packet was the final full-size
			// chunk; one zero-length packet remains.
			c.zlpPending = false
			return
		}
		c.state = ctrlStatusOut
	case ctrlStatusIn:
		if c.dev.CommitPendingAddress() {
			pkg.LogInfo(pkg.ComponentControl, "address assigned",
				"address", c.dev.Address())
		}
		c.state = ctrlIdle
	}
}

// DataOut serves OUT transactions on the default endpoint: data-stage
// payloads and the zero-length status stage.
func (c *Control) DataOut(data []byte) error {
	if c.stalled {
		return pkg.ErrStall
	}
	switch c.state {
	case ctrlDataOut:
		if c.outLen+len(data) > int(c.setup.Length) {
			c.fail(pkg.ErrOverrun)
			return pkg.ErrStall
		}
		c.outLen += copy(c.outBuf[c.outLen:], data)
		if c.outLen < int(c.setup.Length) {
			return nil
		}
		if err := c.dispatchOutData(c.setup, c.outBuf[:c.outLen]); err != nil {
			c.fail(err)
			return pkg.ErrStall
		}
		c.state = ctrlStatusIn
		return nil
	case ctrlStatusOut:
		c.state = ctrlIdle
		return nil
	default:
		return pkg.ErrStall
	}
}

// fail latches a protocol stall for the remainder of the transfer. The
// next SETUP clears it.
func (c *Control) fail(err error) {
	pkg.LogDebug(pkg.ComponentControl, "control transfer stalled",
		"request", c.setup.String(), "err", err)
	c.stalled = true
	c.state = ctrlIdle
}
