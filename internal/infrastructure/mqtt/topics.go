package mqtt

import "fmt"

// Topic prefixes. All topics published by periphd live under "periph/".
const (
	// TopicPrefix is the base for all topics.
	TopicPrefix = "periph"

	// TopicPrefixEvent is the base for device lifecycle events.
	TopicPrefixEvent = "periph/event"

	// TopicPrefixDevice is the base for per-device topics.
	TopicPrefixDevice = "periph/device"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "periph/system"
)

// Topics provides builders for MQTT topic names. Using these helpers
// keeps topic naming consistent between the publisher and consumers.
//
//	topics := mqtt.Topics{}
//	dataTopic := topics.DeviceData("device_0x0416_0x5011")
//	// Returns: "periph/device/device_0x0416_0x5011/data"
type Topics struct{}

// EventConnect returns the topic for device connect events.
//
// Example: periph/event/connect
func (Topics) EventConnect() string {
	return fmt.Sprintf("%s/connect", TopicPrefixEvent)
}

// EventDisconnect returns the topic for device disconnect events.
//
// Example: periph/event/disconnect
func (Topics) EventDisconnect() string {
	return fmt.Sprintf("%s/disconnect", TopicPrefixEvent)
}

// DeviceData returns the topic for data emitted by a device session,
// such as scan lines or weight readings.
//
// Example: periph/device/device_0x0416_0x5011/data
func (Topics) DeviceData(deviceID string) string {
	return fmt.Sprintf("%s/%s/data", TopicPrefixDevice, deviceID)
}

// DeviceError returns the topic for errors raised by a device session.
//
// Example: periph/device/device_0x0416_0x5011/error
func (Topics) DeviceError(deviceID string) string {
	return fmt.Sprintf("%s/%s/error", TopicPrefixDevice, deviceID)
}

// SystemStatus returns the retained service status topic. The Last Will
// and Testament is configured on the same topic.
//
// Example: periph/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllEvents returns a pattern matching all device lifecycle events.
//
// Pattern: periph/event/+
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/+", TopicPrefixEvent)
}

// AllDeviceData returns a pattern matching data from every device.
//
// Pattern: periph/device/+/data
func (Topics) AllDeviceData() string {
	return fmt.Sprintf("%s/+/data", TopicPrefixDevice)
}

// AllDeviceErrors returns a pattern matching errors from every device.
//
// Pattern: periph/device/+/error
func (Topics) AllDeviceErrors() string {
	return fmt.Sprintf("%s/+/error", TopicPrefixDevice)
}

// AllTopics returns a pattern matching every topic under the prefix.
// Use with caution, this receives ALL traffic.
//
// Pattern: periph/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
