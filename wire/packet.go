package wire

import "fmt"

// MaxDataPayload is the largest data payload the packet layer accepts.
// Bulk packets top out at 512 bytes in high speed; the extra headroom
// covers isochronous-sized payloads pushed through the same decoder.
const MaxDataPayload = 1024

// Kind classifies a packet by its PID group.
type Kind uint8

// Packet kinds.
const (
	KindToken     Kind = iota // SETUP, IN, OUT, SOF
	KindData                  // DATA0, DATA1
	KindHandshake             // ACK, NAK, STALL
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindToken:
		return "token"
	case KindData:
		return "data"
	case KindHandshake:
		return "handshake"
	default:
		return "unknown"
	}
}

// Packet is a decoded, CRC-validated USB packet.
//
// Addr and Endpoint are valid for SETUP, IN, and OUT tokens. Frame is
// valid for SOF tokens. Payload is valid for data packets and aliases the
// decoder's buffer: it must be consumed before the next packet is fed.
type Packet struct {
	PID      PID
	Addr     uint8
	Endpoint uint8
	Frame    uint16
	Payload  []byte
}

// Kind returns the packet's PID group.
func (p *Packet) Kind() Kind {
	switch {
	case p.PID.IsData():
		return KindData
	case p.PID.IsHandshake():
		return KindHandshake
	default:
		return KindToken
	}
}

// String returns a short description for diagnostics.
func (p *Packet) String() string {
	switch {
	case p.PID == PIDSOF:
		return fmt.Sprintf("SOF frame=%d", p.Frame)
	case p.PID.IsToken():
		return fmt.Sprintf("%s addr=%d ep=%d", p.PID, p.Addr, p.Endpoint)
	case p.PID.IsData():
		return fmt.Sprintf("%s len=%d", p.PID, len(p.Payload))
	default:
		return p.PID.String()
	}
}

// AppendToken appends an encoded token packet (PID plus two field bytes
// carrying address, endpoint, and CRC5) to dst.
func AppendToken(dst []byte, pid PID, addr, endpoint uint8) []byte {
	crc := CRC5(addr, endpoint)
	b0 := addr&0x7F | endpoint<<7
	b1 := endpoint>>1&0x07 | crc<<3
	return append(dst, byte(pid), b0, b1)
}

// AppendSOF appends an encoded start-of-frame packet carrying an 11-bit
// frame number to dst.
func AppendSOF(dst []byte, frame uint16) []byte {
	frame &= 0x07FF
	crc := CRC5Frame(frame)
	b0 := uint8(frame)
	b1 := uint8(frame>>8)&0x07 | crc<<3
	return append(dst, byte(PIDSOF), b0, b1)
}

// AppendData appends an encoded data packet (PID, payload, CRC16) to dst.
func AppendData(dst []byte, pid PID, payload []byte) []byte {
	dst = append(dst, byte(pid))
	dst = append(dst, payload...)
	c0, c1 := CRC16Bytes(payload)
	return append(dst, c0, c1)
}

// AppendHandshake appends an encoded handshake packet to dst.
func AppendHandshake(dst []byte, pid PID) []byte {
	return append(dst, byte(pid))
}
