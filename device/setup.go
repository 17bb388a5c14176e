package device

import (
	"encoding/binary"
	"fmt"

	"github.com/fluxripper/fluxusb/pkg"
)

// SetupPacketLength is the fixed length of a SETUP data payload.
const SetupPacketLength = 8

// Request type classes, from bmRequestType bits 6:5.
const (
	RequestTypeStandard = 0
	RequestTypeClass    = 1
	RequestTypeVendor   = 2
)

// Request recipients, from bmRequestType bits 4:0.
const (
	RecipientDevice    = 0
	RecipientInterface = 1
	RecipientEndpoint  = 2
	RecipientOther     = 3
)

// Standard request codes.
const (
	RequestGetStatus        = 0x00
	RequestClearFeature     = 0x01
	RequestSetFeature       = 0x03
	RequestSetAddress       = 0x05
	RequestGetDescriptor    = 0x06
	RequestSetDescriptor    = 0x07
	RequestGetConfiguration = 0x08
	RequestSetConfiguration = 0x09
	RequestGetInterface     = 0x0A
	RequestSetInterface     = 0x0B
	RequestSynchFrame       = 0x0C
)

// Standard descriptor types.
const (
	DescriptorTypeDevice        = 0x01
	DescriptorTypeConfiguration = 0x02
	DescriptorTypeString        = 0x03
	DescriptorTypeInterface     = 0x04
	DescriptorTypeEndpoint      = 0x05
	DescriptorTypeQualifier     = 0x06
)

// Standard feature selectors.
const (
	FeatureEndpointHalt = 0x00
	FeatureRemoteWakeup = 0x01
)

// SetupPacket is the decoded 8-byte SETUP payload that initiates a control
// transfer. It is transient: valid only until the transfer it initiated
// completes.
type SetupPacket struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// ParseSetup decodes an 8-byte SETUP payload. It returns
// pkg.ErrSetupPacketTooShort when data holds fewer than 8 bytes.
func ParseSetup(data []byte) (SetupPacket, error) {
	if len(data) < SetupPacketLength {
		return SetupPacket{}, pkg.ErrSetupPacketTooShort
	}
	return SetupPacket{
		RequestType: data[0],
		Request:     data[1],
		Value:       binary.LittleEndian.Uint16(data[2:4]),
		Index:       binary.LittleEndian.Uint16(data[4:6]),
		Length:      binary.LittleEndian.Uint16(data[6:8]),
	}, nil
}

// DirectionIn returns whether the data stage, if any, flows device-to-host.
func (s SetupPacket) DirectionIn() bool {
	return s.RequestType&0x80 != 0
}

// Type returns the request class: RequestTypeStandard, RequestTypeClass, or
// RequestTypeVendor.
func (s SetupPacket) Type() int {
	return int(s.RequestType >> 5 & 0x03)
}

// Recipient returns the request recipient: RecipientDevice,
// RecipientInterface, RecipientEndpoint, or RecipientOther.
func (s SetupPacket) Recipient() int {
	return int(s.RequestType & 0x1F)
}

// String returns a short description for diagnostics.
func (s SetupPacket) String() string {
	return fmt.Sprintf("bmRequestType=0x%02X bRequest=0x%02X wValue=0x%04X wIndex=0x%04X wLength=%d",
		s.RequestType, s.Request, s.Value, s.Index, s.Length)
}
