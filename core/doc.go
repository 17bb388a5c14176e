// Package core assembles the USB device stack: the wire decoder feeds the
// transaction engine, the control manager serves the default endpoint, and
// the personality router bridges the bulk endpoint to whichever protocol
// engine is active. The PHY collaborator pushes bus bytes in through Feed
// and End and collects encoded reply packets from Response; a periodic
// Tick drives the router's cooperative byte loop.
package core
