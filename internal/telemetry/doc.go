// Package telemetry bridges the event bus to external sinks.
//
// The Bridge subscribes to device lifecycle and data events and fans
// them out to an MQTT publisher and an InfluxDB metric writer. Both
// sinks are optional: a nil publisher or writer simply disables that
// leg, so the service runs identically with broker, database, both,
// or neither.
//
// Scan lines and weight readings are forwarded per device. The bridge
// registers a data subscription when a scanner or scale connects and
// lets the bus purge it on disconnect.
package telemetry
