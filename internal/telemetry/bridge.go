package telemetry

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/helixpos/periph-core/internal/device"
	"github.com/helixpos/periph-core/internal/eventbus"
	"github.com/helixpos/periph-core/internal/infrastructure/mqtt"
	"github.com/helixpos/periph-core/internal/scale"
)

// Logger is the minimal logging surface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Publisher publishes event payloads to a message broker.
// *mqtt.Client satisfies this interface.
type Publisher interface {
	PublishJSON(topic string, payload []byte) error
}

// MetricWriter records peripheral measurements.
// *influxdb.Client satisfies this interface. Writes must not block.
type MetricWriter interface {
	WriteScan(deviceID string, data string)
	WriteWeight(deviceID string, weight float64, unit string)
	WriteDeviceEvent(deviceID string, event string)
}

// lifecycleEvent is the JSON payload published on connect and
// disconnect topics.
type lifecycleEvent struct {
	Event     string        `json:"event"`
	Device    device.Device `json:"device"`
	Timestamp string        `json:"timestamp"`
}

// dataEvent is the JSON payload published on per-device data topics.
type dataEvent struct {
	DeviceID  string  `json:"deviceId"`
	Data      string  `json:"data"`
	Weight    float64 `json:"weight,omitempty"`
	Unit      string  `json:"unit,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// errorEvent is the JSON payload published on per-device error topics.
type errorEvent struct {
	DeviceID  string `json:"deviceId"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// Bridge forwards bus events to the configured sinks.
type Bridge struct {
	bus     *eventbus.Bus
	pub     Publisher
	metrics MetricWriter
	topics  mqtt.Topics
	logger  Logger

	mu       sync.Mutex
	subs     []*eventbus.Subscription
	dataSubs map[string]*eventbus.Subscription
	started  bool
}

// New creates a bridge over bus. Either sink may be nil.
func New(bus *eventbus.Bus, pub Publisher, metrics MetricWriter) *Bridge {
	return &Bridge{
		bus:      bus,
		pub:      pub,
		metrics:  metrics,
		logger:   noopLogger{},
		dataSubs: make(map[string]*eventbus.Subscription),
	}
}

// SetLogger replaces the no-op logger.
func (b *Bridge) SetLogger(logger Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Start subscribes the bridge to the bus. Idempotent.
func (b *Bridge) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true

	b.subs = append(b.subs,
		b.bus.OnDeviceConnect(b.handleConnect),
		b.bus.OnDeviceDisconnect(b.handleDisconnect),
		b.bus.OnDeviceError(b.handleError),
	)
}

// Stop unsubscribes the bridge from the bus. Idempotent.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return
	}
	b.started = false

	for _, sub := range b.subs {
		sub.Unsubscribe()
	}
	b.subs = nil

	for id, sub := range b.dataSubs {
		sub.Unsubscribe()
		delete(b.dataSubs, id)
	}
}

func (b *Bridge) handleConnect(dev device.Device) {
	b.publish(b.topics.EventConnect(), lifecycleEvent{
		Event:     "connect",
		Device:    dev,
		Timestamp: now(),
	})
	if b.metrics != nil {
		b.metrics.WriteDeviceEvent(dev.ID, "connect")
	}

	// Read-capable sessions feed the data topic. The subscription keys
	// on the device ID so a reconfigured device does not double up.
	if dev.Meta.Type != device.TypeScanner && dev.Meta.Type != device.TypeScale {
		return
	}

	devType := dev.Meta.Type
	devID := dev.ID

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return
	}
	if _, ok := b.dataSubs[devID]; ok {
		return
	}
	b.dataSubs[devID] = b.bus.OnDeviceData(devID, func(line string) {
		b.handleData(devID, devType, line)
	})
}

func (b *Bridge) handleDisconnect(dev device.Device) {
	b.publish(b.topics.EventDisconnect(), lifecycleEvent{
		Event:     "disconnect",
		Device:    dev,
		Timestamp: now(),
	})
	if b.metrics != nil {
		b.metrics.WriteDeviceEvent(dev.ID, "disconnect")
	}

	// The bus purges the data subscription itself after dispatching
	// disconnect handlers. Drop our handle so the map does not grow.
	b.mu.Lock()
	delete(b.dataSubs, dev.ID)
	b.mu.Unlock()
}

func (b *Bridge) handleData(deviceID string, devType device.Type, line string) {
	evt := dataEvent{
		DeviceID:  deviceID,
		Data:      line,
		Timestamp: now(),
	}

	if devType == device.TypeScale {
		if reading, err := scale.ParseWeight(line); err == nil {
			evt.Weight = reading.Weight
			evt.Unit = reading.Unit
			if b.metrics != nil {
				b.metrics.WriteWeight(deviceID, reading.Weight, reading.Unit)
			}
		}
	} else if b.metrics != nil {
		b.metrics.WriteScan(deviceID, line)
	}

	b.publish(b.topics.DeviceData(deviceID), evt)
}

func (b *Bridge) handleError(deviceID string, err error) {
	b.publish(b.topics.DeviceError(deviceID), errorEvent{
		DeviceID:  deviceID,
		Error:     err.Error(),
		Timestamp: now(),
	})
	if b.metrics != nil {
		b.metrics.WriteDeviceEvent(deviceID, "error")
	}
}

// publish marshals and sends one payload. Broker failures are logged
// and dropped; telemetry must never stall a device session.
func (b *Bridge) publish(topic string, payload any) {
	if b.pub == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Warn("telemetry payload marshal failed", "topic", topic, "error", err)
		return
	}

	if err := b.pub.PublishJSON(topic, data); err != nil {
		b.logger.Warn("telemetry publish failed", "topic", topic, "error", err)
		return
	}
	b.logger.Debug("telemetry published", "topic", topic)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
