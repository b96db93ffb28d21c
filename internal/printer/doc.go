// Package printer manages print jobs to receipt printers.
//
// Unlike the scanner and scale managers there are no callback
// registries: printing is write-only and caller-initiated. The manager
// caches one print adapter per device, rebuilds it after failures and
// tears it down on disconnect. Failed jobs retry with backoff before the
// error reaches the caller; a wrong device type or unknown id fails
// immediately without touching hardware.
package printer
