package printer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/helixpos/periph-core/internal/device"
	"github.com/helixpos/periph-core/internal/eventbus"
	"github.com/helixpos/periph-core/internal/retry"
	"github.com/helixpos/periph-core/internal/spooler"
	"github.com/helixpos/periph-core/internal/transport"
)

var ErrNotPrinter = errors.New("printer: device is not a printer")

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

// DeviceSource is the device-lookup surface the manager needs.
// The reconciler satisfies it.
type DeviceSource interface {
	Device(id string) (*device.Device, error)
	DefaultDevice(t device.Type) (*device.Device, error)
}

// AdapterFactory builds the print transport for one printer.
type AdapterFactory func(dev *device.Device) (transport.PrintAdapter, error)

// DefaultAdapterFactory prefers the native spooler when the device maps
// to an installed queue; otherwise jobs go straight to the USB bulk
// endpoint. The choice is made once per adapter, not per job.
func DefaultAdapterFactory() AdapterFactory {
	return func(dev *device.Device) (transport.PrintAdapter, error) {
		if runtime.GOOS == "windows" {
			if queue, ok := spoolerQueueFor(dev); ok {
				return transport.NewSpoolerPrinter(queue), nil
			}
		}
		return transport.NewUSBPrinter(dev.VID, dev.PID)
	}
}

// spoolerQueueFor finds the installed queue whose PnP identity matches
// the device.
func spoolerQueueFor(dev *device.Device) (string, bool) {
	printers, err := spooler.Enum()
	if err != nil {
		return "", false
	}
	for _, info := range printers {
		vid, pid, ok := spooler.ParseHardwareID(info.Port)
		if !ok {
			vid, pid, ok = spooler.ParseHardwareID(info.Name)
		}
		if !ok {
			continue
		}
		nvid, err := device.NormalizeVidPid(vid)
		if err != nil {
			continue
		}
		npid, err := device.NormalizeVidPid(pid)
		if err != nil {
			continue
		}
		if nvid == dev.VID && npid == dev.PID {
			return info.Name, true
		}
	}
	return "", false
}

// Manager routes print jobs and caches adapters per device.
// All public methods are safe for concurrent use.
type Manager struct {
	source  DeviceSource
	bus     *eventbus.Bus
	factory AdapterFactory
	logger  Logger
	retry   retry.Options

	mu       sync.Mutex
	adapters map[string]transport.PrintAdapter
	subs     []*eventbus.Subscription
	started  bool
}

// NewManager creates a printer manager. retryOpts shapes the per-job
// retry schedule; the zero value uses the executor defaults.
func NewManager(source DeviceSource, bus *eventbus.Bus, factory AdapterFactory, retryOpts retry.Options) *Manager {
	return &Manager{
		source:   source,
		bus:      bus,
		factory:  factory,
		logger:   noopLogger{},
		retry:    retryOpts,
		adapters: make(map[string]transport.PrintAdapter),
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
		// Reconfiguration and disconnect both invalidate a cached
		// adapter; the next job rebuilds it from the fresh device.
		m.bus.OnDeviceConnect(m.invalidate),
		m.bus.OnDeviceDisconnect(m.invalidate),
	)
}

// Stop unsubscribes from lifecycle events and closes every adapter.
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
	m.CloseAllAdapters()
}

func (m *Manager) invalidate(dev device.Device) {
	if dev.Meta.Type != device.TypePrinter {
		return
	}
	m.CloseAdapter(dev.ID)
}

// PrintToDevice sends one job to the given printer. Transient failures
// retry with backoff, rebuilding the adapter between attempts; a wrong
// device type or unknown id fails immediately.
func (m *Manager) PrintToDevice(ctx context.Context, id string, data []byte, isImage bool) error {
	dev, err := m.source.Device(id)
	if err != nil {
		return err
	}
	if dev.Meta.Type != device.TypePrinter {
		return fmt.Errorf("%w: %s is %s", ErrNotPrinter, id, dev.Meta.Type)
	}

	err = retry.Do(ctx, func() error {
		adapter, err := m.EnsureAdapter(dev)
		if err != nil {
			return err
		}
		if err := adapter.Write(ctx, data, isImage); err != nil {
			// A failed adapter is not trusted for the next attempt.
			m.CloseAdapter(dev.ID)
			return err
		}
		return nil
	}, m.retry)
	if err != nil {
		m.bus.EmitDeviceError(dev.ID, err)
		return err
	}

	m.logger.Info("job printed", "device", dev.ID, "bytes", len(data), "image", isImage)
	return nil
}

// PrintToDefault sends one job to the default printer.
func (m *Manager) PrintToDefault(ctx context.Context, data []byte, isImage bool) error {
	dev, err := m.source.DefaultDevice(device.TypePrinter)
	if err != nil {
		return err
	}
	return m.PrintToDevice(ctx, dev.ID, data, isImage)
}

// EnsureAdapter returns the cached adapter for dev, building one if
// needed.
func (m *Manager) EnsureAdapter(dev *device.Device) (transport.PrintAdapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if adapter, ok := m.adapters[dev.ID]; ok {
		return adapter, nil
	}

	adapter, err := m.factory(dev)
	if err != nil {
		return nil, err
	}
	m.adapters[dev.ID] = adapter
	m.logger.Debug("print adapter built", "device", dev.ID)
	return adapter, nil
}

// CloseAdapter drops and closes the cached adapter for id, if any.
func (m *Manager) CloseAdapter(id string) {
	m.mu.Lock()
	adapter, ok := m.adapters[id]
	delete(m.adapters, id)
	m.mu.Unlock()

	if ok {
		if err := adapter.Close(); err != nil {
			m.logger.Warn("closing print adapter", "device", id, "error", err)
		}
	}
}

// CloseAllAdapters drops and closes every cached adapter.
func (m *Manager) CloseAllAdapters() {
	m.mu.Lock()
	adapters := m.adapters
	m.adapters = make(map[string]transport.PrintAdapter)
	m.mu.Unlock()

	for id, adapter := range adapters {
		if err := adapter.Close(); err != nil {
			m.logger.Warn("closing print adapter", "device", id, "error", err)
		}
	}
}
