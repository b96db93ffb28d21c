package scale

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helixpos/periph-core/internal/device"
	"github.com/helixpos/periph-core/internal/eventbus"
	"github.com/helixpos/periph-core/internal/retry"
	"github.com/helixpos/periph-core/internal/transport"
)

var (
	ErrNotScale      = errors.New("scale: device is not a scale")
	ErrNoDefault     = errors.New("scale: no default scale connected")
	ErrWeightTimeout = errors.New("scale: timed out waiting for reading")
)

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Callback receives one parsed weight reading.
type Callback func(r Reading)

// DeviceSource is the device-lookup surface the manager needs.
// The reconciler satisfies it.
type DeviceSource interface {
	Device(id string) (*device.Device, error)
	DefaultDevice(t device.Type) (*device.Device, error)
	DevicesByType(t device.Type) []*device.Device
}

// AdapterFactory builds the line transport for one scale.
type AdapterFactory func(dev *device.Device) transport.LineAdapter

// DefaultAdapterFactory opens a serial line at the device's configured
// baud rate with the given heartbeat interval and open retry schedule.
func DefaultAdapterFactory(heartbeat time.Duration, retryOpts retry.Options) AdapterFactory {
	return func(dev *device.Device) transport.LineAdapter {
		return transport.NewSerialLine(transport.SerialConfig{
			Path:      dev.Path,
			Baud:      dev.Meta.Baudrate,
			Heartbeat: heartbeat,
			Retry:     retryOpts,
		})
	}
}

// Manager owns scale reading sessions and their callback registries.
// All public methods are safe for concurrent use.
type Manager struct {
	source  DeviceSource
	bus     *eventbus.Bus
	factory AdapterFactory
	logger  Logger

	mu         sync.Mutex
	adapters   map[string]transport.LineAdapter
	persistent map[string]map[string]Callback
	global     map[string]Callback
	pendingDef map[string]Callback
	wasDefault map[string]bool
	subs       []*eventbus.Subscription
	started    bool
}

// NewManager creates a scale manager.
func NewManager(source DeviceSource, bus *eventbus.Bus, factory AdapterFactory) *Manager {
	return &Manager{
		source:     source,
		bus:        bus,
		factory:    factory,
		logger:     noopLogger{},
		adapters:   make(map[string]transport.LineAdapter),
		persistent: make(map[string]map[string]Callback),
		global:     make(map[string]Callback),
		pendingDef: make(map[string]Callback),
		wasDefault: make(map[string]bool),
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Start subscribes the manager to device lifecycle events. Idempotent.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	m.subs = append(m.subs,
		m.bus.OnDeviceConnect(m.handleConnect),
		m.bus.OnDeviceDisconnect(m.handleDisconnect),
	)
}

// Stop unsubscribes from lifecycle events and closes every open session.
// Callback registries are kept.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	m.StopAllReading()
}

func (m *Manager) handleConnect(dev device.Device) {
	if dev.Meta.Type != device.TypeScale {
		return
	}

	m.mu.Lock()

	// Losing the default flag force-stops the session and ends handling of
	// this event: no migration or auto-start evaluation for a demotion.
	if m.wasDefault[dev.ID] && !dev.Meta.Default {
		m.wasDefault[dev.ID] = false
		demoted := m.detachLocked(dev.ID)
		m.mu.Unlock()
		if demoted != nil {
			m.closeAdapter(demoted)
		}
		return
	}
	m.wasDefault[dev.ID] = dev.Meta.Default

	migrated := false
	if dev.Meta.Default && len(m.pendingDef) > 0 {
		subs := m.persistent[dev.ID]
		if subs == nil {
			subs = make(map[string]Callback)
			m.persistent[dev.ID] = subs
		}
		for handle, cb := range m.pendingDef {
			subs[handle] = cb
			delete(m.pendingDef, handle)
		}
		migrated = true
	}

	// Global callbacks only pull in the default scale.
	shouldStart := len(m.persistent[dev.ID]) > 0 || migrated ||
		(len(m.global) > 0 && dev.Meta.Default)
	m.mu.Unlock()

	if shouldStart {
		if err := m.ensureReading(&dev); err != nil {
			m.logger.Warn("auto-start failed", "device", dev.ID, "error", err)
		}
	}
}

func (m *Manager) handleDisconnect(dev device.Device) {
	if dev.Meta.Type != device.TypeScale {
		return
	}
	m.mu.Lock()
	adapter := m.detachLocked(dev.ID)
	m.mu.Unlock()
	if adapter != nil {
		m.closeAdapter(adapter)
	}
}

// ReadFromDevice registers cb for readings from one scale and starts its
// session. Returns the callback handle.
func (m *Manager) ReadFromDevice(id string, cb Callback) (string, error) {
	dev, err := m.source.Device(id)
	if err != nil {
		return "", err
	}
	if dev.Meta.Type != device.TypeScale {
		return "", fmt.Errorf("%w: %s is %s", ErrNotScale, id, dev.Meta.Type)
	}

	handle := uuid.NewString()
	m.mu.Lock()
	subs := m.persistent[id]
	if subs == nil {
		subs = make(map[string]Callback)
		m.persistent[id] = subs
	}
	subs[handle] = cb
	m.mu.Unlock()

	if err := m.ensureReading(dev); err != nil {
		return handle, err
	}
	return handle, nil
}

// ReadFromDefault registers cb against the default scale, parking it in
// the pending-default registry when none is connected.
func (m *Manager) ReadFromDefault(cb Callback) (string, error) {
	dev, err := m.source.DefaultDevice(device.TypeScale)
	if err != nil {
		if errors.Is(err, device.ErrNoDefault) {
			handle := uuid.NewString()
			m.mu.Lock()
			m.pendingDef[handle] = cb
			m.mu.Unlock()
			return handle, nil
		}
		return "", err
	}
	return m.ReadFromDevice(dev.ID, cb)
}

// OnWeightData registers a global callback. Only the default scale is
// started for it; other scales stay idle until addressed directly.
func (m *Manager) OnWeightData(cb Callback) string {
	handle := uuid.NewString()
	m.mu.Lock()
	m.global[handle] = cb
	m.mu.Unlock()

	if dev, err := m.source.DefaultDevice(device.TypeScale); err == nil {
		if err := m.ensureReading(dev); err != nil {
			m.logger.Warn("global start failed", "device", dev.ID, "error", err)
		}
	}
	return handle
}

// RemoveCallback drops a handle from the per-device and global
// registries. A scale left with no callbacks of any kind has its session
// stopped: nothing would consume the stream.
func (m *Manager) RemoveCallback(handle string) {
	m.mu.Lock()
	delete(m.global, handle)

	var orphaned []string
	for id, subs := range m.persistent {
		if _, ok := subs[handle]; !ok {
			continue
		}
		delete(subs, handle)
		if len(subs) == 0 {
			delete(m.persistent, id)
			orphaned = append(orphaned, id)
		}
	}

	var stopped []transport.LineAdapter
	if len(m.global) == 0 {
		for _, id := range orphaned {
			if a := m.detachLocked(id); a != nil {
				stopped = append(stopped, a)
			}
		}
	}
	m.mu.Unlock()

	for _, a := range stopped {
		m.closeAdapter(a)
	}
}

// RemoveDefaultCallback drops a handle still parked in the
// pending-default registry.
func (m *Manager) RemoveDefaultCallback(handle string) {
	m.mu.Lock()
	delete(m.pendingDef, handle)
	m.mu.Unlock()
}

// GetCurrentWeight waits for a single reading from the default scale.
// The temporary callback is removed exactly once, on first reading,
// timeout or context cancellation.
func (m *Manager) GetCurrentWeight(ctx context.Context, timeout time.Duration) (Reading, error) {
	dev, err := m.source.DefaultDevice(device.TypeScale)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrNoDefault, err)
	}

	result := make(chan Reading, 1)
	var once sync.Once

	handle, err := m.ReadFromDevice(dev.ID, func(r Reading) {
		once.Do(func() { result <- r })
	})
	if handle != "" {
		defer m.RemoveCallback(handle)
	}
	if err != nil {
		return Reading{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-result:
		return r, nil
	case <-timer.C:
		return Reading{}, ErrWeightTimeout
	case <-ctx.Done():
		return Reading{}, ctx.Err()
	}
}

// StopReading closes the session for one scale, keeping its callbacks.
func (m *Manager) StopReading(id string) {
	m.mu.Lock()
	adapter := m.detachLocked(id)
	m.mu.Unlock()
	if adapter != nil {
		m.closeAdapter(adapter)
	}
}

// StopAllReading closes every session.
func (m *Manager) StopAllReading() {
	m.mu.Lock()
	stopped := make([]transport.LineAdapter, 0, len(m.adapters))
	for id := range m.adapters {
		if a := m.detachLocked(id); a != nil {
			stopped = append(stopped, a)
		}
	}
	m.mu.Unlock()

	for _, a := range stopped {
		m.closeAdapter(a)
	}
}

// IsReading reports whether a session is open for the device.
func (m *Manager) IsReading(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.adapters[id]
	return ok
}

// ActiveScales lists the devices with open sessions.
func (m *Manager) ActiveScales() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.adapters))
	for id := range m.adapters {
		ids = append(ids, id)
	}
	return ids
}

// ensureReading opens a session for dev if none is open.
func (m *Manager) ensureReading(dev *device.Device) error {
	m.mu.Lock()
	if _, open := m.adapters[dev.ID]; open {
		m.mu.Unlock()
		return nil
	}

	adapter := m.factory(dev)
	id := dev.ID
	adapter.OnLine(func(line string) {
		reading, err := ParseWeight(line)
		if err != nil {
			m.logger.Debug("unparseable scale line", "device", id, "line", line)
			m.bus.EmitDeviceError(id, err)
			return
		}
		m.dispatch(id, reading)
		m.bus.EmitDeviceData(id, line)
	})
	adapter.OnError(func(err error) {
		m.logger.Warn("scale link error", "device", id, "error", err)
		m.bus.EmitDeviceError(id, err)
	})
	m.adapters[id] = adapter
	m.mu.Unlock()

	if err := adapter.Open(context.Background()); err != nil {
		m.mu.Lock()
		delete(m.adapters, id)
		m.mu.Unlock()
		return err
	}

	m.logger.Info("reading started", "device", id)
	return nil
}

// detachLocked forgets the adapter for id and returns it for closing.
// The close itself must happen outside m.mu: a closing adapter waits for
// its reader goroutine, and the reader's dispatch path takes m.mu.
func (m *Manager) detachLocked(id string) transport.LineAdapter {
	adapter, ok := m.adapters[id]
	if !ok {
		return nil
	}
	delete(m.adapters, id)
	m.logger.Info("reading stopped", "device", id)
	return adapter
}

func (m *Manager) closeAdapter(a transport.LineAdapter) {
	if err := a.Close(); err != nil {
		m.logger.Warn("closing scale adapter", "error", err)
	}
}

// dispatch fans one reading out to the device's and the global
// callbacks.
func (m *Manager) dispatch(id string, r Reading) {
	m.mu.Lock()
	cbs := make([]Callback, 0, len(m.persistent[id])+len(m.global))
	for _, cb := range m.persistent[id] {
		cbs = append(cbs, cb)
	}
	for _, cb := range m.global {
		cbs = append(cbs, cb)
	}
	m.mu.Unlock()

	for _, cb := range cbs {
		cb(r)
	}
}
