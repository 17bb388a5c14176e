package wire

import "github.com/fluxripper/fluxusb/pkg"

// decoderState tracks packet assembly progress.
type decoderState uint8

const (
	decodeIdle  decoderState = iota // Waiting for a PID byte
	decodeToken                     // Collecting the two token field bytes
	decodeData                      // Accumulating payload and CRC bytes
)

// Decoder assembles validated packets from the PHY byte stream.
//
// Bytes arrive through Feed; the transport collaborator signals the bus
// end-of-packet condition through End, which is what delimits data packets
// (tokens and handshakes have fixed lengths and complete on their final
// byte). A decoder is not safe for concurrent use; the transaction engine
// owns exactly one.
type Decoder struct {
	state    decoderState
	pid      PID
	buf      [MaxDataPayload + 2]byte
	n        int
	crc      uint16
	overflow bool
}

// Feed consumes one byte from the bus. When the byte completes a
// fixed-length packet the decoded packet is returned with ok true.
// Malformed bytes are dropped silently and the decoder returns to idle.
func (d *Decoder) Feed(b byte) (Packet, bool) {
	switch d.state {
	case decodeIdle:
		pid, ok := CheckPID(b)
		if !ok {
			// Transport-recoverable: the host will retry.
			pkg.LogDebug(pkg.ComponentWire, "dropping unknown PID",
				"byte", b)
			return Packet{}, false
		}
		switch {
		case pid.IsHandshake():
			return Packet{PID: pid}, true
		case pid.IsToken():
			d.state = decodeToken
			d.pid = pid
			d.n = 0
		default:
			d.state = decodeData
			d.pid = pid
			d.n = 0
			d.crc = CRC16Init
			d.overflow = false
		}
		return Packet{}, false

	case decodeToken:
		d.buf[d.n] = b
		d.n++
		if d.n < 2 {
			return Packet{}, false
		}
		d.state = decodeIdle
		return d.finishToken()

	case decodeData:
		if d.n >= len(d.buf) {
			d.overflow = true
			return Packet{}, false
		}
		d.buf[d.n] = b
		d.n++
		d.crc = CRC16Update(d.crc, b)
		return Packet{}, false
	}
	return Packet{}, false
}

// End signals the bus end-of-packet condition. It completes a pending
// data packet; a CRC16 residual mismatch drops the packet without any
// handshake so the host times out and retries.
func (d *Decoder) End() (Packet, bool) {
	if d.state != decodeData {
		d.state = decodeIdle
		return Packet{}, false
	}
	d.state = decodeIdle

	if d.overflow || d.n < 2 {
		pkg.LogDebug(pkg.ComponentWire, "dropping malformed data packet",
			"pid", d.pid.String(),
			"bytes", d.n,
			"overflow", d.overflow)
		return Packet{}, false
	}
	if d.crc != CRC16Residual {
		pkg.LogDebug(pkg.ComponentWire, "dropping data packet on CRC16 mismatch",
			"pid", d.pid.String(),
			"len", d.n-2)
		return Packet{}, false
	}
	return Packet{PID: d.pid, Payload: d.buf[:d.n-2]}, true
}

// Reset returns the decoder to idle, discarding any partial packet.
func (d *Decoder) Reset() {
	d.state = decodeIdle
	d.n = 0
	d.overflow = false
}

// finishToken validates the assembled token fields against their CRC5.
func (d *Decoder) finishToken() (Packet, bool) {
	b0, b1 := d.buf[0], d.buf[1]
	field := b1 >> 3

	if d.pid == PIDSOF {
		frame := uint16(b0) | uint16(b1&0x07)<<8
		if CRC5Frame(frame) != field {
			pkg.LogDebug(pkg.ComponentWire, "dropping SOF on CRC5 mismatch",
				"frame", frame)
			return Packet{}, false
		}
		return Packet{PID: d.pid, Frame: frame}, true
	}

	addr := b0 & 0x7F
	endpoint := b0>>7 | (b1&0x07)<<1
	if CRC5(addr, endpoint) != field {
		pkg.LogDebug(pkg.ComponentWire, "dropping token on CRC5 mismatch",
			"pid", d.pid.String(),
			"addr", addr,
			"ep", endpoint)
		return Packet{}, false
	}
	return Packet{PID: d.pid, Addr: addr, Endpoint: endpoint}, true
}
