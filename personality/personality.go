package personality

// ID identifies one of the five protocol personalities sharing the bulk
// pipe.
type ID uint8

// Personalities.
const (
	Flux        ID = iota // Flux-stream capture/emission
	FloppyEmu             // Floppy-emulator (HFE) framing
	Legacy                // Legacy dongle compatibility framing
	Native                // Native 16-byte command framing
	MassStorage           // USB mass storage (CBW/CSW + SCSI)

	numPersonalities
)

// Valid reports whether the value names a personality.
func (id ID) Valid() bool {
	return id < numPersonalities
}

// String returns a string representation of the personality.
func (id ID) String() string {
	switch id {
	case Flux:
		return "flux"
	case FloppyEmu:
		return "floppy-emu"
	case Legacy:
		return "legacy"
	case Native:
		return "native"
	case MassStorage:
		return "mass-storage"
	default:
		return "unknown"
	}
}

// Engine is the boundary contract every protocol engine implements. The
// router treats engines uniformly; command decoding behind this interface
// is each engine's own business.
//
// All methods follow the one-byte-per-tick streaming contract: Rx offers a
// host byte and reports whether the engine accepted it (its ready line),
// Tx produces at most one response byte (its valid line), TxPending
// mirrors the valid line without consuming.
type Engine interface {
	// Rx offers one host byte. A false return means not ready; the
	// router holds the byte for a later tick.
	Rx(b byte) bool

	// Tx returns the next response byte, if one is pending.
	Tx() (byte, bool)

	// TxPending reports whether a response byte is pending without
	// consuming it.
	TxPending() bool

	// ResetProtocol returns the engine's protocol state machine to
	// idle. The router pulses this when switching away from the engine.
	ResetProtocol()

	// Status returns the engine's opaque 8-bit diagnostic status.
	Status() byte
}
