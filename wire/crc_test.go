package wire

import (
	"math/rand"
	"testing"
)

func TestCRC5KnownVectors(t *testing.T) {
	tests := []struct {
		name string
		addr uint8
		ep   uint8
		want uint8
	}{
		// Worked example from the USB-IF CRC application note.
		{"addr 0x15 ep 0xE", 0x15, 0x0E, 0x1D},
		{"all zero field", 0x00, 0x00, 0x02},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CRC5(tt.addr, tt.ep); got != tt.want {
				t.Errorf("CRC5(0x%02X, 0x%X) = 0x%02X, want 0x%02X",
					tt.addr, tt.ep, got, tt.want)
			}
		})
	}
}

func TestCRC5FrameMatchesField(t *testing.T) {
	// The SOF variant must agree with the generic field computation.
	for frame := uint16(0); frame < 0x800; frame += 37 {
		addr := uint8(frame & 0x7F)
		ep := uint8(frame >> 7)
		if CRC5Frame(frame) != CRC5(addr, ep) {
			t.Fatalf("CRC5Frame(0x%03X) != CRC5(0x%02X, 0x%X)", frame, addr, ep)
		}
	}
}

func TestCRC5SingleBitCorruption(t *testing.T) {
	// Corrupting any one bit of the 11-bit field must change the CRC.
	rng := rand.New(rand.NewSource(5))
	for trial := 0; trial < 100; trial++ {
		addr := uint8(rng.Intn(128))
		ep := uint8(rng.Intn(16))
		good := CRC5(addr, ep)

		for bit := 0; bit < 11; bit++ {
			field := uint16(addr) | uint16(ep)<<7
			field ^= 1 << bit
			badAddr := uint8(field & 0x7F)
			badEP := uint8(field >> 7)
			if CRC5(badAddr, badEP) == good {
				t.Fatalf("bit %d flip of addr=0x%02X ep=0x%X not detected",
					bit, addr, ep)
			}
		}
	}
}

func TestCRC16ZeroLengthPayload(t *testing.T) {
	// A zero-length data packet still carries two CRC bytes, both zero:
	// the complement of the untouched 0xFFFF seed.
	b0, b1 := CRC16Bytes(nil)
	if b0 != 0x00 || b1 != 0x00 {
		t.Errorf("CRC16Bytes(nil) = %02X %02X, want 00 00", b0, b1)
	}

	crc := CRC16Update(CRC16Update(CRC16Init, b0), b1)
	if crc != CRC16Residual {
		t.Errorf("residual = 0x%04X, want 0x%04X", crc, CRC16Residual)
	}
}

func TestCRC16ResidualAllLengths(t *testing.T) {
	// Encode-then-check must reduce to the fixed residual for every
	// payload length the packet layer accepts.
	rng := rand.New(rand.NewSource(16))
	payload := make([]byte, MaxDataPayload)
	rng.Read(payload)

	for n := 0; n <= MaxDataPayload; n++ {
		data := payload[:n]
		b0, b1 := CRC16Bytes(data)

		crc := CRC16(data)
		crc = CRC16Update(crc, b0)
		crc = CRC16Update(crc, b1)
		if crc != CRC16Residual {
			t.Fatalf("length %d: residual = 0x%04X, want 0x%04X",
				n, crc, CRC16Residual)
		}
	}
}

func TestCRC16SingleBitCorruption(t *testing.T) {
	rng := rand.New(rand.NewSource(61))
	payload := make([]byte, 64)
	rng.Read(payload)
	b0, b1 := CRC16Bytes(payload)

	frame := make([]byte, 0, len(payload)+2)
	frame = append(frame, payload...)
	frame = append(frame, b0, b1)

	for byteIdx := range frame {
		for bit := 0; bit < 8; bit++ {
			corrupt := make([]byte, len(frame))
			copy(corrupt, frame)
			corrupt[byteIdx] ^= 1 << bit

			if CRC16(corrupt) == CRC16Residual {
				t.Fatalf("flip of byte %d bit %d not detected", byteIdx, bit)
			}
		}
	}
}
