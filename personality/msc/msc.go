package msc

import (
	"encoding/binary"

	"github.com/fluxripper/fluxusb/pkg"
)

// maxTransfer caps one READ(10)/WRITE(10) data stage.
const maxTransfer = 65536

// Storage is the block-device collaborator behind the mass-storage engine.
type Storage interface {
	// Ready reports whether medium is present and spun up.
	Ready() bool

	// Capacity returns the block count and block size of the medium.
	Capacity() (blocks, blockSize uint32)

	// WriteProtected reports whether the medium is read-only.
	WriteProtected() bool

	// ReadBlocks fills buf, whose length is a multiple of the block
	// size, starting at lba.
	ReadBlocks(lba uint32, buf []byte) error

	// WriteBlocks writes data, whose length is a multiple of the block
	// size, starting at lba.
	WriteBlocks(lba uint32, data []byte) error
}

// engineState tracks the bulk-only transport phase.
type engineState int

const (
	stateCommand engineState = iota // Accumulating a CBW
	stateDataOut                    // Receiving a write data stage
)

// Engine is the mass-storage protocol engine.
type Engine struct {
	store    Storage
	vendor   string
	product  string
	revision string

	state engineState

	cbwBuf [CBWSize]byte
	cbwLen int

	// Write data stage in progress.
	writeCBW    CBW
	writeLBA    uint32
	writeCount  int // Bytes the command addresses
	writeExpect int // Bytes the host announced
	writeBuf    []byte

	resp []byte

	sense      sense
	prevented  bool
	started    bool
	lastStatus uint8
}

// New creates a mass-storage engine over store. The identity strings fill
// the INQUIRY vendor/product/revision fields.
func New(store Storage, vendor, product, revision string) *Engine {
	return &Engine{
		store:    store,
		vendor:   vendor,
		product:  product,
		revision: revision,
		started:  true,
	}
}

// Rx accepts one host byte: CBW bytes in the command phase, payload bytes
// during a write data stage. Bytes are refused while a response is queued.
func (e *Engine) Rx(b byte) bool {
	if len(e.resp) > 0 {
		return false
	}
	switch e.state {
	case stateCommand:
		e.cbwBuf[e.cbwLen] = b
		e.cbwLen++
		if e.cbwLen == CBWSize {
			e.cbwLen = 0
			e.command(e.cbwBuf[:])
		}
	case stateDataOut:
		e.writeBuf = append(e.writeBuf, b)
		if len(e.writeBuf) == e.writeExpect {
			e.commitWrite()
		}
	}
	return true
}

// Tx returns the next queued response byte.
func (e *Engine) Tx() (byte, bool) {
	if len(e.resp) == 0 {
		return 0, false
	}
	b := e.resp[0]
	e.resp = e.resp[1:]
	return b, true
}

// TxPending reports whether response bytes are queued.
func (e *Engine) TxPending() bool {
	return len(e.resp) > 0
}

// ResetProtocol aborts any transfer in progress and clears pending sense.
func (e *Engine) ResetProtocol() {
	e.state = stateCommand
	e.cbwLen = 0
	e.writeBuf = nil
	e.resp = nil
	e.sense = sense{}
	e.lastStatus = CSWStatusGood
}

// Status reports the last CSW status in the low nibble, bit 4 while a
// response drains, and bit 5 during a write data stage.
func (e *Engine) Status() byte {
	s := e.lastStatus & 0x0F
	if len(e.resp) > 0 {
		s |= 0x10
	}
	if e.state == stateDataOut {
		s |= 0x20
	}
	return s
}

// command decodes and executes one CBW.
func (e *Engine) command(buf []byte) {
	cbw, ok := decodeCBW(buf)
	if !ok {
		// Signature mismatch is a transport phase error, not a SCSI
		// failure.
		pkg.LogWarn(pkg.ComponentPersonality, "CBW signature mismatch")
		tag := binary.LittleEndian.Uint32(buf[4:8])
		residue := binary.LittleEndian.Uint32(buf[8:12])
		e.complete(tag, residue, CSWStatusPhaseError)
		return
	}

	op := cbw.Command[0]
	switch op {
	case SCSITestUnitReady:
		if !e.store.Ready() {
			e.fail(cbw, SenseNotReady, ASCMediumNotPresent)
			return
		}
		e.succeed(cbw, nil)

	case SCSIRequestSense:
		data := appendSense(nil, e.sense)
		e.sense = sense{} // Reported sense is consumed
		e.finish(cbw, CSWStatusGood, data)

	case SCSIInquiry:
		e.succeed(cbw, appendInquiry(nil, e.vendor, e.product, e.revision))

	case SCSIModeSense6:
		e.succeed(cbw, appendModeSense6(nil, e.store.WriteProtected()))

	case SCSIModeSense10:
		e.succeed(cbw, appendModeSense10(nil, e.store.WriteProtected()))

	case SCSIStartStopUnit:
		e.started = cbw.Command[4]&0x01 != 0
		e.succeed(cbw, nil)

	case SCSIPreventAllowRemoval:
		e.prevented = cbw.Command[4]&0x01 != 0
		e.succeed(cbw, nil)

	case SCSIReadFormatCapacities:
		blocks, blockSize := e.store.Capacity()
		e.succeed(cbw, appendFormatCapacities(nil, blocks, blockSize))

	case SCSIReadCapacity10:
		if !e.store.Ready() {
			e.fail(cbw, SenseNotReady, ASCMediumNotPresent)
			return
		}
		blocks, blockSize := e.store.Capacity()
		e.succeed(cbw, appendReadCapacity10(nil, blocks, blockSize))

	case SCSIRead10:
		e.read10(cbw)

	case SCSIWrite10:
		e.write10(cbw)

	default:
		pkg.LogDebug(pkg.ComponentPersonality, "unsupported SCSI opcode", "opcode", op)
		e.fail(cbw, SenseIllegalRequest, ASCInvalidCommand)
	}
}

func (e *Engine) read10(cbw CBW) {
	lba, count, ok := e.checkRange(cbw)
	if !ok {
		return
	}
	_, blockSize := e.store.Capacity()
	buf := make([]byte, int(count)*int(blockSize))
	if err := e.store.ReadBlocks(lba, buf); err != nil {
		pkg.LogWarn(pkg.ComponentPersonality, "block read failed", "lba", lba, "err", err)
		e.fail(cbw, SenseMediumError, ASCNoAdditionalInfo)
		return
	}
	e.succeed(cbw, buf)
}

func (e *Engine) write10(cbw CBW) {
	// Write protection is refused before any range math or drive
	// request.
	if e.store.Ready() && e.store.WriteProtected() {
		e.fail(cbw, SenseDataProtect, ASCWriteProtected)
		return
	}
	lba, count, ok := e.checkRange(cbw)
	if !ok {
		return
	}
	_, blockSize := e.store.Capacity()
	need := int(count) * int(blockSize)
	if cbw.DataLength == 0 || int(cbw.DataLength) < need {
		e.fail(cbw, SenseIllegalRequest, ASCInvalidFieldInCDB)
		return
	}

	e.writeCBW = cbw
	e.writeLBA = lba
	e.writeCount = need
	e.writeExpect = int(cbw.DataLength)
	e.writeBuf = e.writeBuf[:0]
	e.state = stateDataOut
}

// commitWrite runs once the whole announced data stage has arrived.
func (e *Engine) commitWrite() {
	e.state = stateCommand
	cbw := e.writeCBW
	data := e.writeBuf[:e.writeCount]

	if err := e.store.WriteBlocks(e.writeLBA, data); err != nil {
		pkg.LogWarn(pkg.ComponentPersonality, "block write failed",
			"lba", e.writeLBA, "err", err)
		e.sense = sense{key: SenseMediumError}
		e.complete(cbw.Tag, cbw.DataLength-uint32(e.writeCount), CSWStatusFailed)
		return
	}
	e.sense = sense{}
	e.complete(cbw.Tag, cbw.DataLength-uint32(e.writeCount), CSWStatusGood)
}

// checkRange validates the READ(10)/WRITE(10) addressing fields against
// the medium.
func (e *Engine) checkRange(cbw CBW) (lba uint32, count uint16, ok bool) {
	if !e.store.Ready() {
		e.fail(cbw, SenseNotReady, ASCMediumNotPresent)
		return 0, 0, false
	}
	lba = binary.BigEndian.Uint32(cbw.Command[2:6])
	count = binary.BigEndian.Uint16(cbw.Command[7:9])
	blocks, blockSize := e.store.Capacity()

	if uint64(lba)+uint64(count) > uint64(blocks) {
		e.fail(cbw, SenseIllegalRequest, ASCLBAOutOfRange)
		return 0, 0, false
	}
	if int(count)*int(blockSize) > maxTransfer {
		e.fail(cbw, SenseIllegalRequest, ASCInvalidFieldInCDB)
		return 0, 0, false
	}
	return lba, count, true
}

// succeed queues a good CSW, with data clipped to the host's announced
// transfer length.
func (e *Engine) succeed(cbw CBW, data []byte) {
	e.sense = sense{}
	e.finish(cbw, CSWStatusGood, data)
}

// fail records sense data and queues a failed CSW with no data stage.
func (e *Engine) fail(cbw CBW, key, asc uint8) {
	e.sense = sense{key: key, asc: asc}
	e.finish(cbw, CSWStatusFailed, nil)
}

func (e *Engine) finish(cbw CBW, status uint8, data []byte) {
	if uint32(len(data)) > cbw.DataLength {
		data = data[:cbw.DataLength]
	}
	e.resp = append(e.resp, data...)
	e.complete(cbw.Tag, cbw.DataLength-uint32(len(data)), status)
}

func (e *Engine) complete(tag, residue uint32, status uint8) {
	e.lastStatus = status
	e.resp = appendCSW(e.resp, tag, residue, status)
}
