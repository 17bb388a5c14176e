package msc

import "encoding/binary"

// SCSI operation codes (supported subset).
const (
	SCSITestUnitReady        = 0x00
	SCSIRequestSense         = 0x03
	SCSIInquiry              = 0x12
	SCSIModeSense6           = 0x1A
	SCSIStartStopUnit        = 0x1B
	SCSIPreventAllowRemoval  = 0x1E
	SCSIReadFormatCapacities = 0x23
	SCSIReadCapacity10       = 0x25
	SCSIRead10               = 0x28
	SCSIWrite10              = 0x2A
	SCSIModeSense10          = 0x5A
)

// SCSI sense keys.
const (
	SenseNoSense        = 0x00
	SenseNotReady       = 0x02
	SenseMediumError    = 0x03
	SenseIllegalRequest = 0x05
	SenseUnitAttention  = 0x06
	SenseDataProtect    = 0x07
)

// Additional Sense Codes.
const (
	ASCNoAdditionalInfo  = 0x00
	ASCInvalidCommand    = 0x20
	ASCLBAOutOfRange     = 0x21
	ASCInvalidFieldInCDB = 0x24
	ASCWriteProtected    = 0x27
	ASCMediumNotPresent  = 0x3A
)

// INQUIRY response constants.
const (
	inquirySize          = 36
	inquiryVersionSPC4   = 0x06
	inquiryFormatSPC     = 0x02
	inquiryRMB           = 0x80
	deviceTypeDisk       = 0x00
	fixedSenseSize       = 18
	fixedSenseFormat     = 0x70 // Current errors, fixed format
	fixedSenseAddlLength = 10
)

// sense is the pending {key, ASC, ASCQ} triple reported by REQUEST SENSE.
type sense struct {
	key  uint8
	asc  uint8
	ascq uint8
}

// appendInquiry encodes the standard 36-byte INQUIRY data.
func appendInquiry(dst []byte, vendor, product, revision string) []byte {
	buf := make([]byte, inquirySize)
	buf[0] = deviceTypeDisk
	buf[1] = inquiryRMB
	buf[2] = inquiryVersionSPC4
	buf[3] = inquiryFormatSPC
	buf[4] = inquirySize - 5
	padString(buf[8:16], vendor)
	padString(buf[16:32], product)
	padString(buf[32:36], revision)
	return append(dst, buf...)
}

// appendSense encodes the fixed-format REQUEST SENSE data.
func appendSense(dst []byte, s sense) []byte {
	buf := make([]byte, fixedSenseSize)
	buf[0] = fixedSenseFormat
	buf[2] = s.key & 0x0F
	buf[7] = fixedSenseAddlLength
	buf[12] = s.asc
	buf[13] = s.ascq
	return append(dst, buf...)
}

// appendReadCapacity10 encodes the READ CAPACITY (10) response.
func appendReadCapacity10(dst []byte, blocks, blockSize uint32) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[0:4], blocks-1) // Last LBA
	binary.BigEndian.PutUint32(buf[4:8], blockSize)
	return append(dst, buf[:]...)
}

// appendModeSense6 encodes the MODE SENSE (6) header with no pages.
func appendModeSense6(dst []byte, writeProtected bool) []byte {
	var buf [4]byte
	buf[0] = 3 // Mode data length excluding this byte
	if writeProtected {
		buf[2] = 0x80
	}
	return append(dst, buf[:]...)
}

// appendModeSense10 encodes the MODE SENSE (10) header with no pages.
func appendModeSense10(dst []byte, writeProtected bool) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint16(buf[0:2], 6) // Mode data length excluding this field
	if writeProtected {
		buf[3] = 0x80
	}
	return append(dst, buf[:]...)
}

// appendFormatCapacities encodes the READ FORMAT CAPACITIES list with one
// current/maximum descriptor.
func appendFormatCapacities(dst []byte, blocks, blockSize uint32) []byte {
	var buf [12]byte
	buf[3] = 8 // One descriptor
	binary.BigEndian.PutUint32(buf[4:8], blocks)
	buf[8] = 0x02 // Formatted media
	buf[9] = uint8(blockSize >> 16)
	buf[10] = uint8(blockSize >> 8)
	buf[11] = uint8(blockSize)
	return append(dst, buf[:]...)
}

// padString copies s into dst, space-padded.
func padString(dst []byte, s string) {
	for i := range dst {
		if i < len(s) {
			dst[i] = s[i]
		} else {
			dst[i] = ' '
		}
	}
}
