// Package msc implements the mass-storage protocol engine: bulk-only
// transport (CBW/CSW) serialized over the shared byte stream, with the
// SCSI command subset a removable block device needs. Block storage sits
// behind the Storage collaborator.
package msc

import "encoding/binary"

// Command Block Wrapper constants.
const (
	CBWSignature   = 0x43425355 // "USBC"
	CBWSize        = 31
	CBWFlagDataIn  = 0x80
	CBWFlagDataOut = 0x00
)

// Command Status Wrapper constants.
const (
	CSWSignature        = 0x53425355 // "USBS"
	CSWSize             = 13
	CSWStatusGood       = 0x00
	CSWStatusFailed     = 0x01
	CSWStatusPhaseError = 0x02
)

// CBW is a decoded Command Block Wrapper.
type CBW struct {
	Tag            uint32
	DataLength     uint32
	Flags          uint8
	LUN            uint8
	CommandLength  uint8
	Command        [16]byte
}

// decodeCBW decodes buf, which must hold CBWSize bytes. The second return
// reports whether the signature matched.
func decodeCBW(buf []byte) (CBW, bool) {
	if binary.LittleEndian.Uint32(buf[0:4]) != CBWSignature {
		return CBW{}, false
	}
	cbw := CBW{
		Tag:           binary.LittleEndian.Uint32(buf[4:8]),
		DataLength:    binary.LittleEndian.Uint32(buf[8:12]),
		Flags:         buf[12],
		LUN:           buf[13] & 0x0F,
		CommandLength: buf[14] & 0x1F,
	}
	copy(cbw.Command[:], buf[15:31])
	return cbw, true
}

// DataIn reports whether the data stage, if any, flows device-to-host.
func (c *CBW) DataIn() bool {
	return c.Flags&CBWFlagDataIn != 0
}

// AppendCBW encodes a Command Block Wrapper to dst. Host-side tooling and
// tests share this encoder.
func AppendCBW(dst []byte, cbw CBW) []byte {
	var buf [CBWSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], CBWSignature)
	binary.LittleEndian.PutUint32(buf[4:8], cbw.Tag)
	binary.LittleEndian.PutUint32(buf[8:12], cbw.DataLength)
	buf[12] = cbw.Flags
	buf[13] = cbw.LUN & 0x0F
	buf[14] = cbw.CommandLength & 0x1F
	copy(buf[15:31], cbw.Command[:])
	return append(dst, buf[:]...)
}

// appendCSW encodes a Command Status Wrapper to dst.
func appendCSW(dst []byte, tag, residue uint32, status uint8) []byte {
	var buf [CSWSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], CSWSignature)
	binary.LittleEndian.PutUint32(buf[4:8], tag)
	binary.LittleEndian.PutUint32(buf[8:12], residue)
	buf[12] = status
	return append(dst, buf[:]...)
}
