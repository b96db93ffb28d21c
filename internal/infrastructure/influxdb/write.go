package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteScan records a scan line from a barcode scanner.
//
// One point per scan, tagged by device. The raw data is stored as a
// field so high-cardinality barcodes never blow up the tag index.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteScan("device_0x0c2e_0x0b61", "4006381333931")
func (c *Client) WriteScan(deviceID string, data string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"scan",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"data":   data,
			"length": len(data),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteWeight records a weight reading from a scale.
//
// Parameters:
//   - deviceID: Device identifier
//   - weight: Parsed numeric weight
//   - unit: Unit of measure (kg, g, lb, oz)
func (c *Client) WriteWeight(deviceID string, weight float64, unit string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"weight",
		map[string]string{
			"device_id": deviceID,
			"unit":      unit,
		},
		map[string]interface{}{
			"value": weight,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDeviceEvent records a device lifecycle event.
//
// Used for tracking connect/disconnect churn and session errors
// per device over time.
//
// Parameters:
//   - deviceID: Device identifier
//   - event: Event name (e.g., "connect", "disconnect", "error")
func (c *Client) WriteDeviceEvent(deviceID string, event string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_event",
		map[string]string{
			"device_id": deviceID,
			"event":     event,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("session_stats",
//	    map[string]string{"device_id": "device_0x0922_0x8003"},
//	    map[string]interface{}{"lines_per_min": 12.5})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
