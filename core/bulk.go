package core

import (
	"github.com/fluxripper/fluxusb/personality"
	"github.com/fluxripper/fluxusb/pkg"
)

// bulkBridge adapts the personality router's byte pipes to the transaction
// engine's endpoint handler contract. OUT payloads enter the router whole
// or not at all so a NAKed packet can be retried without partial delivery;
// IN transactions carry whatever response bytes the router has buffered.
type bulkBridge struct {
	router *personality.Router
}

// Setup is not expected on the bulk endpoint; the payload is ignored and
// the transfer runs its course as an empty control sequence.
func (b *bulkBridge) Setup(data []byte) {}

func (b *bulkBridge) DataOut(data []byte) error {
	if b.router.Switching() || b.router.RxFree() < len(data) {
		return pkg.ErrNAK
	}
	for _, c := range data {
		if !b.router.HostWrite(c) {
			// Free space was checked above; a refusal here means the
			// router left Active mid-packet.
			return pkg.ErrNAK
		}
	}
	return nil
}

func (b *bulkBridge) DataIn(buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		c, ok := b.router.HostRead()
		if !ok {
			break
		}
		buf[n] = c
		n++
	}
	if n == 0 {
		return 0, pkg.ErrNAK
	}
	return n, nil
}

// InAcked needs no action: response bytes were consumed from the router at
// DataIn time and the engine's retransmit buffer covers a lost ACK.
func (b *bulkBridge) InAcked() {}
