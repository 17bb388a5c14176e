package device

// Speed identifies the negotiated bus speed.
type Speed uint8

// Bus speeds.
const (
	SpeedFull Speed = iota // 12 Mbps
	SpeedHigh              // 480 Mbps
)

// String returns a string representation of the speed.
func (s Speed) String() string {
	switch s {
	case SpeedFull:
		return "full-speed"
	case SpeedHigh:
		return "high-speed"
	default:
		return "unknown"
	}
}

// Device holds the bus-visible device state: the assigned address, the
// active configuration, the negotiated speed, and the last seen frame
// number.
//
// Address changes are staged: SET_ADDRESS captures the new address at SETUP
// time, but it is applied only after the status stage of that control
// transfer completes. The host still addresses the status-stage transaction
// with the old address.
type Device struct {
	address        uint8
	pendingAddress int // -1 when no address change is staged
	configuration  uint8
	speed          Speed
	frame          uint16
}

// NewDevice creates a device in the unaddressed, unconfigured state.
func NewDevice(speed Speed) *Device {
	return &Device{pendingAddress: -1, speed: speed}
}

// Address returns the current device address, 0 until enumeration assigns
// one.
func (d *Device) Address() uint8 {
	return d.address
}

// StagePendingAddress records an address to apply at the end of the current
// control transfer.
func (d *Device) StagePendingAddress(addr uint8) {
	d.pendingAddress = int(addr & 0x7F)
}

// PendingAddress returns the staged address, if any.
func (d *Device) PendingAddress() (uint8, bool) {
	if d.pendingAddress < 0 {
		return 0, false
	}
	return uint8(d.pendingAddress), true
}

// CommitPendingAddress applies the staged address, if any, and reports
// whether an address change took effect.
func (d *Device) CommitPendingAddress() bool {
	if d.pendingAddress < 0 {
		return false
	}
	d.address = uint8(d.pendingAddress)
	d.pendingAddress = -1
	return true
}

// Configuration returns the active configuration value, 0 when
// unconfigured.
func (d *Device) Configuration() uint8 {
	return d.configuration
}

// SetConfiguration selects a configuration. The device is configured iff
// the value is non-zero.
func (d *Device) SetConfiguration(value uint8) {
	d.configuration = value
}

// Configured returns whether a non-zero configuration is active.
func (d *Device) Configured() bool {
	return d.configuration != 0
}

// Speed returns the negotiated bus speed.
func (d *Device) Speed() Speed {
	return d.speed
}

// SetSpeed records the negotiated bus speed.
func (d *Device) SetSpeed(s Speed) {
	d.speed = s
}

// Frame returns the most recent start-of-frame number.
func (d *Device) Frame() uint16 {
	return d.frame
}

// SetFrame records the frame number from a start-of-frame token.
func (d *Device) SetFrame(frame uint16) {
	d.frame = frame & 0x07FF
}

// Reset returns the device to its bus-reset state: address 0, no staged
// address, unconfigured. The negotiated speed is retained.
func (d *Device) Reset() {
	d.address = 0
	d.pendingAddress = -1
	d.configuration = 0
	d.frame = 0
}
