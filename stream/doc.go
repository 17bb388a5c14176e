// Package stream provides the back-pressured byte FIFO used at every
// module boundary in the USB core.
//
// The contract is the standard (data, valid) → ready handshake: a byte
// moves only on the tick where the producer offers it and the consumer has
// space. Offer and Take never block; a refused transfer simply holds state
// for the next tick. There is no locking because the core is a single
// sequential machine — exactly one component owns each side of a pipe.
package stream
