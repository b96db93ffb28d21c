// Package scanner manages barcode scanner sessions.
//
// Callback registries outlive the hardware: a subscriber keeps its handle
// across unplug/replug cycles, and the manager restarts reading when the
// device comes back. Three registries exist: per-device, global (every
// scanner), and pending-default (callbacks waiting for a default scanner
// to appear; they migrate to that device's registry on connect).
package scanner
