// Package mqtt wraps paho.mqtt.golang for publishing peripheral events
// to a broker.
//
// The Client manages connection state, auto-reconnects with exponential
// backoff, restores subscriptions after a reconnect, and publishes
// retained online/offline status with a Last Will and Testament so
// consumers can detect an ungraceful shutdown.
//
// Topic layout (see Topics):
//
//	periph/system/status             retained service status + LWT
//	periph/event/connect             device connect events
//	periph/event/disconnect          device disconnect events
//	periph/device/{id}/data          scan lines and weight readings
//	periph/device/{id}/error         session and transport errors
//
// Handlers registered via Subscribe run on paho's goroutines and are
// wrapped with panic recovery. A handler panic is logged and does not
// take down the connection.
package mqtt
