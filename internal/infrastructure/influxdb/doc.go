// Package influxdb wraps the InfluxDB v2 client for peripheral telemetry.
//
// The Client records scan throughput, weight readings, and device
// lifecycle events. Writes are non-blocking: points are batched by the
// underlying client and flushed on an interval, so a slow or unreachable
// InfluxDB never stalls a device session. Asynchronous write failures
// are surfaced through the SetOnError callback.
//
// Measurements:
//
//	scan          one point per scan line, tagged by device_id
//	weight        one point per weight reading, tagged by device_id and unit
//	device_event  connect/disconnect/error counts, tagged by device_id and event
package influxdb
