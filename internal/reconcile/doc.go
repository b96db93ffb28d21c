// Package reconcile maps transient hardware detections onto persistent
// device identities.
//
// The Reconciler owns the single authoritative map from device id to the
// last-known merged Device, and it is the sole emitter of connect and
// disconnect events on the bus. Everything downstream (capability
// managers, telemetry) reacts to those events rather than to raw
// hot-plug signals.
//
// # Refresh scopes
//
// A full refresh detects everything and diffs against the map. Full
// refreshes are single-flight: concurrent callers share the in-flight
// scan's result, and a caller that joined mid-scan schedules exactly one
// coalesced follow-up scan so a hardware change racing the scan is never
// lost. Targeted refreshes cover the common hot-plug case of a single
// vid:pid changing and skip the full diff.
//
// # Ordering
//
// Two orderings are load-bearing. A disconnect event always precedes the
// purge of that device's data subscribers (the bus enforces this). And
// when a configuration deletion downgrades a device to unassigned, the
// disconnect is emitted while the map still shows the old type, so
// capability managers can tear down adapters for a device they still
// recognise as theirs.
package reconcile
