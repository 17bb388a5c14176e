// Package device implements the device-side USB transaction layer: the
// endpoint registry with data-toggle and stall bookkeeping, the transaction
// engine that turns validated packets into handshakes and endpoint events,
// and the control transfer manager that sequences EP0 SETUP, data, and
// status stages.
//
// The transaction engine owns all endpoint state. Other components read and
// mutate it only through the registry's accessor methods, so toggle
// transitions stay strictly ordered by packet completion.
package device
