package eventbus

import (
	"sync"

	"github.com/google/uuid"

	"github.com/helixpos/periph-core/internal/device"
)

// Logger defines the logging interface used by the Bus.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DeviceHandler receives connect/disconnect events.
type DeviceHandler func(dev device.Device)

// DataHandler receives one line of data from a specific device.
type DataHandler func(line string)

// ErrorHandler receives adapter errors keyed by device id.
type ErrorHandler func(deviceID string, err error)

// Subscription is the handle returned by every On... method.
// Unsubscribe removes the subscriber; it is safe to call more than once.
type Subscription struct {
	id     string
	cancel func(id string)
	once   sync.Once
}

// Unsubscribe removes this subscriber from the bus.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() { s.cancel(s.id) })
}

// Bus is the typed connect/disconnect/data/error fan-out.
// All methods are safe for concurrent use.
type Bus struct {
	mu             sync.RWMutex
	connectSubs    map[string]DeviceHandler
	disconnectSubs map[string]DeviceHandler
	dataSubs       map[string]map[string]DataHandler // deviceID -> subID -> handler
	errorSubs      map[string]ErrorHandler
	logger         Logger
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		connectSubs:    make(map[string]DeviceHandler),
		disconnectSubs: make(map[string]DeviceHandler),
		dataSubs:       make(map[string]map[string]DataHandler),
		errorSubs:      make(map[string]ErrorHandler),
		logger:         noopLogger{},
	}
}

// SetLogger sets the logger used to report misbehaving subscribers.
func (b *Bus) SetLogger(logger Logger) {
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

// OnDeviceConnect registers fn for connect events.
func (b *Bus) OnDeviceConnect(fn DeviceHandler) *Subscription {
	id := uuid.NewString()
	b.mu.Lock()
	b.connectSubs[id] = fn
	b.mu.Unlock()
	return &Subscription{id: id, cancel: func(id string) {
		b.mu.Lock()
		delete(b.connectSubs, id)
		b.mu.Unlock()
	}}
}

// OnDeviceDisconnect registers fn for disconnect events.
func (b *Bus) OnDeviceDisconnect(fn DeviceHandler) *Subscription {
	id := uuid.NewString()
	b.mu.Lock()
	b.disconnectSubs[id] = fn
	b.mu.Unlock()
	return &Subscription{id: id, cancel: func(id string) {
		b.mu.Lock()
		delete(b.disconnectSubs, id)
		b.mu.Unlock()
	}}
}

// OnDeviceData registers fn for data lines from one specific device.
// The subscription is dropped automatically when that device disconnects.
func (b *Bus) OnDeviceData(deviceID string, fn DataHandler) *Subscription {
	id := uuid.NewString()
	b.mu.Lock()
	subs, ok := b.dataSubs[deviceID]
	if !ok {
		subs = make(map[string]DataHandler)
		b.dataSubs[deviceID] = subs
	}
	subs[id] = fn
	b.mu.Unlock()
	return &Subscription{id: id, cancel: func(id string) {
		b.mu.Lock()
		if subs, ok := b.dataSubs[deviceID]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(b.dataSubs, deviceID)
			}
		}
		b.mu.Unlock()
	}}
}

// OnDeviceError registers fn on the global error channel.
func (b *Bus) OnDeviceError(fn ErrorHandler) *Subscription {
	id := uuid.NewString()
	b.mu.Lock()
	b.errorSubs[id] = fn
	b.mu.Unlock()
	return &Subscription{id: id, cancel: func(id string) {
		b.mu.Lock()
		delete(b.errorSubs, id)
		b.mu.Unlock()
	}}
}

// EmitDeviceConnect dispatches a connect event to all subscribers.
// A reconfigured device reuses this event; subscribers compare the carried
// Meta against their own record to tell the two apart.
func (b *Bus) EmitDeviceConnect(dev device.Device) {
	for _, fn := range b.snapshotDeviceSubs(true) {
		b.dispatchDevice(fn, dev, "connect")
	}
}

// EmitDeviceDisconnect dispatches a disconnect event to all subscribers,
// then purges the device's data subscribers. The purge must come second:
// managers tear down adapters inside their disconnect handlers and rely on
// their data subscriptions still existing at that point.
func (b *Bus) EmitDeviceDisconnect(dev device.Device) {
	for _, fn := range b.snapshotDeviceSubs(false) {
		b.dispatchDevice(fn, dev, "disconnect")
	}

	b.mu.Lock()
	delete(b.dataSubs, dev.ID)
	b.mu.Unlock()
}

// EmitDeviceData dispatches one line to the device's data subscribers.
func (b *Bus) EmitDeviceData(deviceID, line string) {
	b.mu.RLock()
	subs := make([]DataHandler, 0, len(b.dataSubs[deviceID]))
	for _, fn := range b.dataSubs[deviceID] {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		b.dispatchData(fn, deviceID, line)
	}
}

// EmitDeviceError dispatches an adapter error to all error subscribers.
func (b *Bus) EmitDeviceError(deviceID string, err error) {
	b.mu.RLock()
	subs := make([]ErrorHandler, 0, len(b.errorSubs))
	for _, fn := range b.errorSubs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		b.dispatchError(fn, deviceID, err)
	}
}

// Reset removes every subscriber. Used by the reconciler's Stop.
func (b *Bus) Reset() {
	b.mu.Lock()
	b.connectSubs = make(map[string]DeviceHandler)
	b.disconnectSubs = make(map[string]DeviceHandler)
	b.dataSubs = make(map[string]map[string]DataHandler)
	b.errorSubs = make(map[string]ErrorHandler)
	b.mu.Unlock()
}

// DataSubscriberCount returns the number of data subscribers for a device.
func (b *Bus) DataSubscriberCount(deviceID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.dataSubs[deviceID])
}

func (b *Bus) snapshotDeviceSubs(connect bool) []DeviceHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	src := b.disconnectSubs
	if connect {
		src = b.connectSubs
	}
	subs := make([]DeviceHandler, 0, len(src))
	for _, fn := range src {
		subs = append(subs, fn)
	}
	return subs
}

// dispatchDevice invokes one subscriber with panic isolation.
func (b *Bus) dispatchDevice(fn DeviceHandler, dev device.Device, event string) {
	defer func() {
		if r := recover(); r != nil {
			b.getLogger().Error("event subscriber panicked",
				"event", event,
				"device_id", dev.ID,
				"panic", r,
			)
		}
	}()
	fn(dev)
}

func (b *Bus) dispatchData(fn DataHandler, deviceID, line string) {
	defer func() {
		if r := recover(); r != nil {
			b.getLogger().Error("data subscriber panicked",
				"device_id", deviceID,
				"panic", r,
			)
		}
	}()
	fn(line)
}

func (b *Bus) dispatchError(fn ErrorHandler, deviceID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.getLogger().Error("error subscriber panicked",
				"device_id", deviceID,
				"panic", r,
			)
		}
	}()
	fn(deviceID, err)
}

func (b *Bus) getLogger() Logger {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.logger
}
