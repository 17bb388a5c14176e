package pkg

import "errors"

// USB protocol errors.
var (
	// ErrStall indicates an endpoint stall condition.
	ErrStall = errors.New("endpoint stalled")

	// ErrNAK indicates the consumer has no data or buffer space (try again).
	ErrNAK = errors.New("not ready")

	// ErrCRC indicates a CRC error.
	ErrCRC = errors.New("CRC error")

	// ErrPID indicates a malformed or unknown packet identifier.
	ErrPID = errors.New("invalid PID")

	// ErrTimeout indicates an operation timeout.
	ErrTimeout = errors.New("timeout")

	// ErrOverrun indicates a data overrun condition.
	ErrOverrun = errors.New("data overrun")

	// ErrProtocol indicates a protocol error.
	ErrProtocol = errors.New("protocol error")

	// ErrInvalidEndpoint indicates an invalid endpoint address.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrInvalidState indicates an invalid state for the operation.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidRequest indicates an invalid or unsupported request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")

	// ErrBusy indicates the resource is busy.
	ErrBusy = errors.New("resource busy")

	// ErrNotConfigured indicates the device is not configured.
	ErrNotConfigured = errors.New("device not configured")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")

	// ErrReset indicates a bus reset was received.
	ErrReset = errors.New("bus reset")
)

// Handshake represents the handshake response to a USB transaction.
type Handshake int

// Handshake values.
const (
	HandshakeACK   Handshake = iota // Transaction accepted
	HandshakeNAK                    // Not ready, host should retry
	HandshakeSTALL                  // Request cannot succeed as framed
	HandshakeNone                   // No handshake (corrupt packet, host times out)
)

// String returns a string representation of the handshake.
func (h Handshake) String() string {
	switch h {
	case HandshakeACK:
		return "ACK"
	case HandshakeNAK:
		return "NAK"
	case HandshakeSTALL:
		return "STALL"
	case HandshakeNone:
		return "none"
	default:
		return "unknown"
	}
}

// HandshakeFor maps a consumer error onto the handshake to transmit.
// A nil error means ACK. ErrNAK means transient backpressure and maps to
// NAK; everything else is a terminal condition and maps to STALL.
func HandshakeFor(err error) Handshake {
	switch {
	case err == nil:
		return HandshakeACK
	case errors.Is(err, ErrNAK):
		return HandshakeNAK
	default:
		return HandshakeSTALL
	}
}
