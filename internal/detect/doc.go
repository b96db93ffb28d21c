// Package detect enumerates attached peripheral hardware.
//
// Three sources feed detection: USB serial ports (go.bug.st/serial),
// raw USB descriptors (gousb) and, on Windows, installed spooler queues.
// Multi merges them into one de-duplicated list keyed by vid:pid with
// capabilities unioned across sources.
//
// Watcher polls a source on an interval and turns set differences into
// attach and detach signals, which the reconciler maps to targeted
// refreshes instead of full scans.
package detect
