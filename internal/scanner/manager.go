package scanner

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
	ErrNotScanner  = errors.New("scanner: device is not a scanner")
	ErrNoDefault   = errors.New("scanner: no default scanner connected")
	ErrScanTimeout = errors.New("scanner: timed out waiting for scan")
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

// Callback receives one scanned barcode.
type Callback func(data string)

// DeviceSource is the device-lookup surface the manager needs.
// The reconciler satisfies it.
type DeviceSource interface {
	Device(id string) (*device.Device, error)
	DefaultDevice(t device.Type) (*device.Device, error)
	DevicesByType(t device.Type) []*device.Device
}

// AdapterFactory builds the line transport for one scanner.
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

// Manager owns scanner reading sessions and their callback registries.
// All public methods are safe for concurrent use.
type Manager struct {
	source  DeviceSource
	bus     *eventbus.Bus
	factory AdapterFactory
	logger  Logger

	mu         sync.Mutex
	adapters   map[string]transport.LineAdapter // deviceID -> open adapter
	persistent map[string]map[string]Callback   // deviceID -> handle -> cb
	global     map[string]Callback              // handle -> cb
	pendingDef map[string]Callback              // handle -> cb awaiting a default
	wasDefault map[string]bool                  // deviceID -> last seen default flag
	subs       []*eventbus.Subscription
	started    bool
}

// NewManager creates a scanner manager.
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

// Stop unsubscribes from lifecycle events and closes every open adapter.
// Callback registries are kept: Start picks up where Stop left off.
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
	m.StopAllScanning()
}

// handleConnect reacts to a scanner appearing or being reconfigured.
func (m *Manager) handleConnect(dev device.Device) {
	if dev.Meta.Type != device.TypeScanner {
		return
	}

	m.mu.Lock()

	// A device that lost its default flag gets its session torn down and
	// stays down: no migration or auto-start evaluation on this event.
	// Default-scoped subscribers stop receiving from it immediately.
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

	shouldStart := len(m.persistent[dev.ID]) > 0 || migrated ||
		len(m.global) > 0 || dev.Meta.Default
	m.mu.Unlock()

	if shouldStart {
		if err := m.ensureScanning(&dev); err != nil {
			m.logger.Warn("auto-start failed", "device", dev.ID, "error", err)
		}
	}
}

// handleDisconnect tears down the session but keeps every callback, so a
// replug resumes delivery without re-registration.
func (m *Manager) handleDisconnect(dev device.Device) {
	if dev.Meta.Type != device.TypeScanner {
		return
	}
	m.mu.Lock()
	adapter := m.detachLocked(dev.ID)
	m.mu.Unlock()
	if adapter != nil {
		m.closeAdapter(adapter)
	}
}

// ScanFromDevice registers cb for barcodes from one scanner and starts
// reading from it. Returns the callback handle.
func (m *Manager) ScanFromDevice(id string, cb Callback) (string, error) {
	dev, err := m.source.Device(id)
	if err != nil {
		return "", err
	}
	if dev.Meta.Type != device.TypeScanner {
		return "", fmt.Errorf("%w: %s is %s", ErrNotScanner, id, dev.Meta.Type)
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

	if err := m.ensureScanning(dev); err != nil {
		return handle, err
	}
	return handle, nil
}

// ScanFromDefault registers cb against the default scanner. With no
// default scanner connected the callback parks in the pending-default
// registry and migrates when one appears; the handle stays valid either
// way.
func (m *Manager) ScanFromDefault(cb Callback) (string, error) {
	dev, err := m.source.DefaultDevice(device.TypeScanner)
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
	return m.ScanFromDevice(dev.ID, cb)
}

// OnScanData registers a global callback receiving barcodes from every
// scanner, and starts reading from all connected scanners.
func (m *Manager) OnScanData(cb Callback) string {
	handle := uuid.NewString()
	m.mu.Lock()
	m.global[handle] = cb
	m.mu.Unlock()

	m.startAllConnected()
	return handle
}

// RemoveCallback drops a handle from the per-device and global
// registries. Unknown handles are a no-op.
func (m *Manager) RemoveCallback(handle string) {
	m.mu.Lock()
	delete(m.global, handle)
	for id, subs := range m.persistent {
		delete(subs, handle)
		if len(subs) == 0 {
			delete(m.persistent, id)
		}
	}
	m.mu.Unlock()
}

// RemoveDefaultCallback drops a handle still parked in the
// pending-default registry.
func (m *Manager) RemoveDefaultCallback(handle string) {
	m.mu.Lock()
	delete(m.pendingDef, handle)
	m.mu.Unlock()
}

// GetNextScan waits for a single barcode from the default scanner. The
// temporary callback is removed exactly once, on first barcode, timeout
// or context cancellation, whichever happens first.
func (m *Manager) GetNextScan(ctx context.Context, timeout time.Duration) (string, error) {
	dev, err := m.source.DefaultDevice(device.TypeScanner)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoDefault, err)
	}

	result := make(chan string, 1)
	var once sync.Once

	handle, err := m.ScanFromDevice(dev.ID, func(data string) {
		once.Do(func() { result <- data })
	})
	if handle != "" {
		defer m.RemoveCallback(handle)
	}
	if err != nil {
		return "", err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data := <-result:
		return data, nil
	case <-timer.C:
		return "", ErrScanTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// StopScanning closes the reading session for one scanner. Callbacks are
// kept and the session restarts on the next connect or registration.
func (m *Manager) StopScanning(id string) {
	m.mu.Lock()
	adapter := m.detachLocked(id)
	m.mu.Unlock()
	if adapter != nil {
		m.closeAdapter(adapter)
	}
}

// StopAllScanning closes every reading session.
func (m *Manager) StopAllScanning() {
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

// IsScanning reports whether a reading session is open for the device.
func (m *Manager) IsScanning(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.adapters[id]
	return ok
}

// ActiveScanners lists the devices with open reading sessions.
func (m *Manager) ActiveScanners() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.adapters))
	for id := range m.adapters {
		ids = append(ids, id)
	}
	return ids
}

// ensureScanning opens a reading session for dev if none is open.
func (m *Manager) ensureScanning(dev *device.Device) error {
	m.mu.Lock()
	if _, open := m.adapters[dev.ID]; open {
		m.mu.Unlock()
		return nil
	}

	adapter := m.factory(dev)
	id := dev.ID
	adapter.OnLine(func(line string) {
		m.dispatch(id, line)
		m.bus.EmitDeviceData(id, line)
	})
	adapter.OnError(func(err error) {
		m.logger.Warn("scanner link error", "device", id, "error", err)
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

	m.logger.Info("scanning started", "device", id)
	return nil
}

// startAllConnected opens sessions on every connected scanner. Used when
// a global callback arrives.
func (m *Manager) startAllConnected() {
	for _, dev := range m.source.DevicesByType(device.TypeScanner) {
		if err := m.ensureScanning(dev); err != nil {
			m.logger.Warn("global start failed", "device", dev.ID, "error", err)
		}
	}
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
	m.logger.Info("scanning stopped", "device", id)
	return adapter
}

func (m *Manager) closeAdapter(a transport.LineAdapter) {
	if err := a.Close(); err != nil {
		m.logger.Warn("closing scanner adapter", "error", err)
	}
}

// dispatch fans one barcode out to the device's and the global
// callbacks.
func (m *Manager) dispatch(id, line string) {
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
		cb(line)
	}
}
