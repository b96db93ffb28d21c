// Package transport moves bytes between capability managers and hardware.
//
// Read-side devices (scanners, scales) speak newline-framed text over a
// serial port; LineAdapter owns the port, splits the stream into trimmed
// lines and keeps the link alive with periodic ENQ probes. Write-side
// devices (printers) take whole ESC/POS jobs; PrintAdapter has one
// strategy per attachment, spooler queue or raw USB bulk endpoint,
// selected once when the adapter is built.
package transport
