// Package device defines the data model for attached peripherals.
//
// A Device is an ephemeral view of one piece of hardware: it is rebuilt on
// every detection scan by merging live enumeration data with the persisted
// configuration for its vendor/product id. A Config is the durable part:
// it survives the device being unplugged and is keyed by vid:pid alone.
//
// # Identity
//
// Device identity is the vendor-id/product-id pair, formatted as
// "device_0x<vid>_0x<pid>" in lower-case hex. Serial numbers are captured
// best-effort but are not part of identity, so two physically distinct
// units of the same model collide. This is a known limitation of the
// system, not an oversight.
package device
