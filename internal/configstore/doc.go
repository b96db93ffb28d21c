// Package configstore persists device configuration keyed by vendor and
// product id.
//
// Configurations live in a key-value store under keys of the form
// "device_0x<vid>_0x<pid>" (lower-case hex). Any other key in the same
// store is ignored by enumeration, so the table can be shared with
// unrelated settings.
//
// The Store interface is the injected persistence abstraction; the
// production implementation is SQLite-backed, and tests use an in-memory
// map. Service layers validation and the one invariant that matters on
// top: across all persisted configs, at most one entry per device type has
// the default flag set.
package configstore
