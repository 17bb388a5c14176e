// Package wire implements the USB 2.0 packet layer: packet identifiers,
// CRC generation and checking, and a byte-level decoder that assembles
// validated packets from the PHY byte stream.
//
// The decoder is deliberately forgiving in the way USB requires: a packet
// with a malformed PID or a failing CRC is dropped without any response,
// because the host resolves the loss by retrying the transaction. Nothing
// at this layer is an error worth surfacing upward.
//
// CRC conventions follow the USB 2.0 specification section 8.3.5. CRC5
// covers the 11-bit token field (7-bit address, 4-bit endpoint) and the
// computed value is exactly the 5-bit field stored in token bits [15:11].
// CRC16 covers data payloads; the receiver runs the generator over payload
// plus CRC bytes and accepts the packet only when the register holds the
// fixed residual 0x800D.
package wire
