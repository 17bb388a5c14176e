// Package pkg provides shared utilities for the fluxusb USB core.
//
// This package contains common functionality used across the transaction
// engine, control transfer manager, and personality router, including:
//
//   - Component-tagged structured logging built on log/slog
//   - Sentinel errors for USB protocol and state conditions
//   - The Handshake type mapping consumer errors onto ACK/NAK/STALL
//
// The handshake mapping encodes a deliberate distinction: NAK is transient
// backpressure (the host retries shortly), STALL means the request can
// never succeed as framed. Consumers signal the former with ErrNAK and the
// latter with any other error.
package pkg
