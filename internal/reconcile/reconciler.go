package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/helixpos/periph-core/internal/configstore"
	"github.com/helixpos/periph-core/internal/device"
	"github.com/helixpos/periph-core/internal/eventbus"
)

// refreshKey is the singleflight key shared by all full refreshes.
const refreshKey = "full-refresh"

// followUpDelay is how long a coalesced follow-up scan waits before
// running. Short enough that a racing hot-plug event is picked up
// promptly, long enough to absorb a burst of refresh requests.
const followUpDelay = 100 * time.Millisecond

// Logger defines the logging interface used by the Reconciler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ConfigService is the persisted-configuration surface the reconciler
// needs. configstore.Service satisfies it.
type ConfigService interface {
	Get(ctx context.Context, vid, pid string) (*device.Config, error)
	All(ctx context.Context) (map[string]device.Config, error)
	Set(ctx context.Context, vid, pid string, cfg device.Config) error
	Update(ctx context.Context, vid, pid string, cfg device.Config) (*device.Config, error)
	Delete(ctx context.Context, vid, pid string) error
	DeleteAll(ctx context.Context) error
	SetDefault(ctx context.Context, vid, pid string) error
	UnsetDefault(ctx context.Context, vid, pid string) error
	Has(ctx context.Context, vid, pid string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// Watcher delivers hot-plug attach/detach signals.
// The detect package provides a polling implementation.
type Watcher interface {
	// Watch registers the callbacks and starts delivering signals.
	Watch(onAttach func(vid, pid string), onDetach func()) error

	// Stop stops delivering signals. Idempotent.
	Stop()
}

// Reconciler detects devices, merges saved configuration, and diffs the
// result against its device map, emitting connect/disconnect events on
// the bus. All public methods are safe for concurrent use.
type Reconciler struct {
	detector device.Detector
	configs  ConfigService
	bus      *eventbus.Bus
	watcher  Watcher // optional
	logger   Logger

	mu      sync.RWMutex
	devices map[string]*device.Device
	started bool

	scans           singleflight.Group
	followUpPending atomic.Bool
}

// New creates a reconciler over the given detector, config service and bus.
func New(detector device.Detector, configs ConfigService, bus *eventbus.Bus) *Reconciler {
	return &Reconciler{
		detector: detector,
		configs:  configs,
		bus:      bus,
		logger:   noopLogger{},
		devices:  make(map[string]*device.Device),
	}
}

// SetLogger sets the logger for the reconciler.
func (r *Reconciler) SetLogger(logger Logger) {
	r.logger = logger
}

// SetWatcher attaches a hot-plug watcher. Must be called before Start.
func (r *Reconciler) SetWatcher(w Watcher) {
	r.watcher = w
}

// Start performs one full scan and registers hot-plug listeners exactly
// once. Calling Start on a started reconciler is a no-op.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	r.mu.Unlock()

	if err := r.RefreshDevices(ctx); err != nil {
		return err
	}

	if r.watcher != nil {
		err := r.watcher.Watch(
			func(vid, pid string) {
				if err := r.RefreshDeviceByVidPid(context.Background(), vid, pid); err != nil {
					r.logger.Warn("attach refresh failed", "vid", vid, "pid", pid, "error", err)
				}
			},
			func() {
				if err := r.CheckForDisconnectedDevices(context.Background()); err != nil {
					r.logger.Warn("detach refresh failed", "error", err)
				}
			},
		)
		if err != nil {
			return err
		}
	}

	r.logger.Info("reconciler started", "devices", r.DeviceCount())
	return nil
}

// Stop unregisters hot-plug listeners and clears all event subscribers
// and the device map. Calling Stop on a stopped reconciler is a no-op.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	r.devices = make(map[string]*device.Device)
	r.mu.Unlock()

	if r.watcher != nil {
		r.watcher.Stop()
	}
	r.bus.Reset()
	r.logger.Info("reconciler stopped")
}

// RefreshDevices runs a full detection scan and reconciles the device map
// against it. Overlapping calls never run detection concurrently: a
// caller arriving while a scan is in flight shares that scan's result,
// and exactly one coalesced follow-up scan is scheduled after a short
// delay to cover changes that raced the shared scan.
func (r *Reconciler) RefreshDevices(ctx context.Context) error {
	_, err, shared := r.scans.Do(refreshKey, func() (any, error) {
		return nil, r.fullScan(ctx)
	})

	if shared && r.followUpPending.CompareAndSwap(false, true) {
		time.AfterFunc(followUpDelay, func() {
			r.followUpPending.Store(false)
			_, _, _ = r.scans.Do(refreshKey, func() (any, error) {
				return nil, r.fullScan(context.Background())
			})
		})
	}
	return err
}

// fullScan is the body of a full refresh. Only ever one in flight.
func (r *Reconciler) fullScan(ctx context.Context) error {
	detected, err := r.detectMerged(ctx)
	if err != nil {
		return err
	}

	var connects, disconnects []device.Device

	r.mu.Lock()
	for id, fresh := range detected {
		current, known := r.devices[id]
		switch {
		case !known:
			r.devices[id] = fresh
			connects = append(connects, *fresh.Clone())
		case metaChanged(current.Meta, fresh.Meta):
			// Reconfiguration reuses the connect event.
			r.devices[id] = fresh
			connects = append(connects, *fresh.Clone())
		default:
			// Refresh descriptive fields without an event.
			r.devices[id] = fresh
		}
	}
	for id, current := range r.devices {
		if _, present := detected[id]; !present {
			delete(r.devices, id)
			disconnects = append(disconnects, *current.Clone())
		}
	}
	r.mu.Unlock()

	r.emit(connects, disconnects)
	return nil
}

// RefreshDeviceByVidPid re-runs detection but only applies additions and
// updates for the matching vendor/product pair. Triggered by hot-plug
// attach signals to avoid a full diff on every attach.
func (r *Reconciler) RefreshDeviceByVidPid(ctx context.Context, vid, pid string) error {
	id, err := device.DeviceID(vid, pid)
	if err != nil {
		return err
	}

	detected, err := r.detectMerged(ctx)
	if err != nil {
		return err
	}

	fresh, present := detected[id]
	if !present {
		return nil
	}

	var connects []device.Device

	r.mu.Lock()
	current, known := r.devices[id]
	if !known || metaChanged(current.Meta, fresh.Meta) {
		r.devices[id] = fresh
		connects = append(connects, *fresh.Clone())
	} else {
		r.devices[id] = fresh
	}
	r.mu.Unlock()

	r.emit(connects, nil)
	return nil
}

// CheckForDisconnectedDevices re-runs detection and removes only mapped
// devices no longer present. Triggered by hot-plug detach signals.
func (r *Reconciler) CheckForDisconnectedDevices(ctx context.Context) error {
	detected, err := r.detectMerged(ctx)
	if err != nil {
		return err
	}

	var disconnects []device.Device

	r.mu.Lock()
	for id, current := range r.devices {
		if _, present := detected[id]; !present {
			delete(r.devices, id)
			disconnects = append(disconnects, *current.Clone())
		}
	}
	r.mu.Unlock()

	r.emit(nil, disconnects)
	return nil
}

// RefreshDeviceConfig re-detects only the matching device after a
// configuration mutation.
//
// If the merge downgrades a previously typed device to unassigned (its
// config was deleted), the disconnect event is emitted before the map
// entry changes, so capability managers tear down adapters while the
// device is still recognised as their type. A mapped device whose config
// was deleted and which is no longer detected at all is removed with a
// disconnect event.
func (r *Reconciler) RefreshDeviceConfig(ctx context.Context, vid, pid string) error {
	id, err := device.DeviceID(vid, pid)
	if err != nil {
		return err
	}

	detected, err := r.detectMerged(ctx)
	if err != nil {
		return err
	}

	var connects, disconnects []device.Device

	r.mu.Lock()
	current, known := r.devices[id]
	fresh, present := detected[id]
	switch {
	case present && known && current.Meta.Type != device.TypeUnassigned && fresh.Meta.Type == device.TypeUnassigned:
		// Downgrade: disconnect first, then replace without a connect.
		disconnects = append(disconnects, *current.Clone())
		r.devices[id] = fresh
	case present && (!known || metaChanged(current.Meta, fresh.Meta)):
		r.devices[id] = fresh
		connects = append(connects, *fresh.Clone())
	case present:
		r.devices[id] = fresh
	case known:
		delete(r.devices, id)
		disconnects = append(disconnects, *current.Clone())
	}
	r.mu.Unlock()

	r.emit(connects, disconnects)
	return nil
}

// emit dispatches the collected events outside the map lock.
// Disconnects go first: a downgrade's disconnect must not trail any
// connect produced by the same pass.
func (r *Reconciler) emit(connects, disconnects []device.Device) {
	for _, dev := range disconnects {
		r.logger.Info("device disconnected", "id", dev.ID, "type", dev.Meta.Type)
		r.bus.EmitDeviceDisconnect(dev)
	}
	for _, dev := range connects {
		r.logger.Info("device connected", "id", dev.ID, "type", dev.Meta.Type, "default", dev.Meta.Default)
		r.bus.EmitDeviceConnect(dev)
	}
}

// detectMerged runs detection and merges saved configuration into each
// result. Hardware without a saved config gets the capability-derived
// default meta.
func (r *Reconciler) detectMerged(ctx context.Context) (map[string]*device.Device, error) {
	hardware, err := r.detector.Detect(ctx)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]*device.Device, len(hardware))
	configured := make(map[string]bool, len(hardware))
	for _, hw := range hardware {
		id, err := device.DeviceID(hw.VID, hw.PID)
		if err != nil {
			r.logger.Warn("skipping device with malformed ids", "vid", hw.VID, "pid", hw.PID)
			continue
		}

		vid, pid, _ := device.ParseDeviceID(id)
		dev := &device.Device{
			ID:           id,
			VID:          vid,
			PID:          pid,
			Path:         hw.Path,
			Name:         hw.Name,
			Manufacturer: hw.Manufacturer,
			SerialNumber: hw.SerialNumber,
			Capabilities: append([]device.Capability(nil), hw.Capabilities...),
		}

		cfg, err := r.configs.Get(ctx, vid, pid)
		switch {
		case err == nil:
			dev.Meta = *cfg
			configured[id] = true
		case errors.Is(err, configstore.ErrConfigNotFound):
			dev.Meta = device.DefaultMeta(dev.Capabilities)
		default:
			return nil, err
		}

		if existing, dup := merged[id]; dup {
			// Two detection sources saw the same vid:pid (for example a
			// serial port and its USB parent); union the capabilities and
			// rederive the default meta from the combined set.
			existing.Capabilities = unionCapabilities(existing.Capabilities, dev.Capabilities)
			if existing.Path == "" {
				existing.Path = dev.Path
			}
			if !configured[id] {
				existing.Meta = device.DefaultMeta(existing.Capabilities)
			}
			continue
		}
		merged[id] = dev
	}
	return merged, nil
}

// metaChanged reports whether the fields that matter to capability
// managers differ between two configurations.
func metaChanged(old, fresh device.Config) bool {
	return old.Type != fresh.Type ||
		old.Default != fresh.Default ||
		old.Baudrate != fresh.Baudrate
}

func unionCapabilities(a, b []device.Capability) []device.Capability {
	seen := make(map[device.Capability]bool, len(a)+len(b))
	out := make([]device.Capability, 0, len(a)+len(b))
	for _, c := range append(append([]device.Capability(nil), a...), b...) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
