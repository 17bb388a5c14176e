// Package personality multiplexes five mutually exclusive protocol engines
// onto the shared bulk pipe. Exactly one engine is active at a time; the
// router owns the pipe and wires only the active engine to it, so the
// single-writer invariant holds structurally rather than by locking.
//
// Switching personalities runs a bounded drain: the transmit path is given
// time to empty, then the receive path, then the outgoing engine gets a
// protocol reset pulse and the new engine is committed. Each drain stage is
// capped by a tick budget so a misbehaving engine can never wedge the
// router; data in flight across a forced timeout is lost by design.
package personality
