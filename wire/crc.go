package wire

// CRC5 parameters (USB 2.0 section 8.3.5.1, G(x) = x^5 + x^2 + 1).
const (
	crc5Init = 0x1F // Shift register seed
	crc5Poly = 0x14 // Bit-reversed generator
	crc5Mask = 0x1F
)

// CRC16 parameters (USB 2.0 section 8.3.5.2, G(x) = x^16 + x^15 + x^2 + 1).
const (
	crc16Poly = 0x8005

	// CRC16Init is the shift register seed.
	CRC16Init = 0xFFFF

	// CRC16Residual is the register value a receiver must observe after
	// running the generator over an unmodified payload plus its CRC bytes.
	CRC16Residual = 0x800D
)

// CRC5 computes the token CRC over the 11-bit field formed by a 7-bit
// address and 4-bit endpoint. The result is the 5-bit value stored in
// token bits [15:11], ready for comparison against the received field.
func CRC5(addr, endpoint uint8) uint8 {
	v := uint16(addr&0x7F) | uint16(endpoint&0x0F)<<7
	return crc5Field(v)
}

// CRC5Frame computes the token CRC over an 11-bit SOF frame number.
func CRC5Frame(frame uint16) uint8 {
	return crc5Field(frame & 0x07FF)
}

// crc5Field runs the generator over 11 bits in wire order (LSB first).
func crc5Field(v uint16) uint8 {
	crc := uint8(crc5Init)
	for i := 0; i < 11; i++ {
		fb := (crc ^ uint8(v)) & 1
		crc >>= 1
		if fb != 0 {
			crc ^= crc5Poly
		}
		v >>= 1
	}
	return ^crc & crc5Mask
}

// CRC16Update advances the CRC16 shift register by one byte, consuming
// bits in wire order (LSB first). The register orientation matches the
// hardware generator, so a valid packet reduces to CRC16Residual.
func CRC16Update(crc uint16, b byte) uint16 {
	for i := 0; i < 8; i++ {
		fb := (crc >> 15) ^ uint16(b>>i)&1
		crc <<= 1
		if fb != 0 {
			crc ^= crc16Poly
		}
	}
	return crc
}

// CRC16 runs the generator over data starting from the initial seed and
// returns the final register value.
func CRC16(data []byte) uint16 {
	crc := uint16(CRC16Init)
	for _, b := range data {
		crc = CRC16Update(crc, b)
	}
	return crc
}

// CRC16Bytes returns the two CRC bytes to append to data, in transmission
// order: the complemented register shifted out MSB end first, packed into
// wire bytes LSB first.
func CRC16Bytes(data []byte) (b0, b1 byte) {
	crc := ^CRC16(data)
	return reverse8(uint8(crc >> 8)), reverse8(uint8(crc))
}

// reverse8 mirrors the bits of a byte.
func reverse8(b uint8) uint8 {
	b = b>>4 | b<<4
	b = b>>2&0x33 | b<<2&0xCC
	b = b>>1&0x55 | b<<1&0xAA
	return b
}
