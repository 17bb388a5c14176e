package wire

import "fmt"

// PID is a USB packet identifier byte. The low nibble selects the packet
// type and the high nibble is its bitwise complement (USB 2.0 Table 8-1).
type PID uint8

// Packet identifiers with their complement check bits.
const (
	PIDOut   PID = 0xE1 // Token: host-to-device data follows
	PIDIn    PID = 0x69 // Token: device transmits data
	PIDSOF   PID = 0xA5 // Token: start of frame
	PIDSetup PID = 0x2D // Token: control transfer setup

	PIDData0 PID = 0xC3 // Data packet, even toggle
	PIDData1 PID = 0x4B // Data packet, odd toggle

	PIDAck   PID = 0xD2 // Handshake: accepted
	PIDNak   PID = 0x5A // Handshake: not ready, retry
	PIDStall PID = 0x1E // Handshake: request cannot succeed
)

// CheckPID validates the complement nibble of a raw PID byte and verifies
// it is a member of the supported PID set. Returns false for anything the
// transaction engine must silently ignore.
func CheckPID(b byte) (PID, bool) {
	if b>>4 != ^b&0x0F {
		return 0, false
	}
	pid := PID(b)
	switch pid {
	case PIDOut, PIDIn, PIDSOF, PIDSetup,
		PIDData0, PIDData1,
		PIDAck, PIDNak, PIDStall:
		return pid, true
	}
	return 0, false
}

// IsToken returns true for SETUP, IN, OUT, and SOF packet identifiers.
func (p PID) IsToken() bool {
	return p == PIDOut || p == PIDIn || p == PIDSOF || p == PIDSetup
}

// IsData returns true for DATA0 and DATA1.
func (p PID) IsData() bool {
	return p == PIDData0 || p == PIDData1
}

// IsHandshake returns true for ACK, NAK, and STALL.
func (p PID) IsHandshake() bool {
	return p == PIDAck || p == PIDNak || p == PIDStall
}

// Toggle returns the data toggle value carried by a data PID
// (false for DATA0, true for DATA1).
func (p PID) Toggle() bool {
	return p == PIDData1
}

// DataPID returns the data packet identifier for a toggle value.
func DataPID(toggle bool) PID {
	if toggle {
		return PIDData1
	}
	return PIDData0
}

// String returns the USB name of the packet identifier.
func (p PID) String() string {
	switch p {
	case PIDOut:
		return "OUT"
	case PIDIn:
		return "IN"
	case PIDSOF:
		return "SOF"
	case PIDSetup:
		return "SETUP"
	case PIDData0:
		return "DATA0"
	case PIDData1:
		return "DATA1"
	case PIDAck:
		return "ACK"
	case PIDNak:
		return "NAK"
	case PIDStall:
		return "STALL"
	default:
		return fmt.Sprintf("PID(0x%02X)", uint8(p))
	}
}
