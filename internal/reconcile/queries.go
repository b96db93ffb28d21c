package reconcile

import (
	"context"
	"fmt"

	"github.com/helixpos/periph-core/internal/device"
)

// Devices returns a clone of every mapped device.
func (r *Reconciler) Devices() []*device.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*device.Device, 0, len(r.devices))
	for _, dev := range r.devices {
		out = append(out, dev.Clone())
	}
	return out
}

// Device returns a clone of the mapped device with the given id, or
// device.ErrNotFound.
func (r *Reconciler) Device(id string) (*device.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dev, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", device.ErrNotFound, id)
	}
	return dev.Clone(), nil
}

// DevicesByType returns clones of every mapped device of the given type.
func (r *Reconciler) DevicesByType(t device.Type) []*device.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*device.Device
	for _, dev := range r.devices {
		if dev.Meta.Type == t {
			out = append(out, dev.Clone())
		}
	}
	return out
}

// DefaultDevice returns a clone of the connected default device of the
// given type, or device.ErrNoDefault when none is mapped.
func (r *Reconciler) DefaultDevice(t device.Type) (*device.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, dev := range r.devices {
		if dev.Meta.Type == t && dev.Meta.Default {
			return dev.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", device.ErrNoDefault, t)
}

// DeviceCount returns the number of mapped devices.
func (r *Reconciler) DeviceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// SetDeviceConfig persists a configuration for the vendor/product pair
// and refreshes the matching device.
func (r *Reconciler) SetDeviceConfig(ctx context.Context, vid, pid string, cfg device.Config) error {
	if err := r.configs.Set(ctx, vid, pid, cfg); err != nil {
		return err
	}
	return r.RefreshDeviceConfig(ctx, vid, pid)
}

// UpdateDeviceConfig updates an existing configuration and refreshes the
// matching device. Returns the stored configuration.
func (r *Reconciler) UpdateDeviceConfig(ctx context.Context, vid, pid string, cfg device.Config) (*device.Config, error) {
	updated, err := r.configs.Update(ctx, vid, pid, cfg)
	if err != nil {
		return nil, err
	}
	if err := r.RefreshDeviceConfig(ctx, vid, pid); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteDeviceConfig removes a saved configuration and refreshes the
// matching device. A still-connected device is downgraded to unassigned
// after a disconnect event.
func (r *Reconciler) DeleteDeviceConfig(ctx context.Context, vid, pid string) error {
	if err := r.configs.Delete(ctx, vid, pid); err != nil {
		return err
	}
	return r.RefreshDeviceConfig(ctx, vid, pid)
}

// DeleteAllDeviceConfigs removes every saved configuration and runs a
// full refresh, since any mapped device may be affected.
func (r *Reconciler) DeleteAllDeviceConfigs(ctx context.Context) error {
	if err := r.configs.DeleteAll(ctx); err != nil {
		return err
	}
	return r.RefreshDevices(ctx)
}

// SetDeviceAsDefault marks the device with the given id as the default
// of its configured type and runs a full refresh, since clearing the
// previous default changes a second device's meta.
func (r *Reconciler) SetDeviceAsDefault(ctx context.Context, id string) error {
	vid, pid, err := device.ParseDeviceID(id)
	if err != nil {
		return err
	}
	if err := r.configs.SetDefault(ctx, vid, pid); err != nil {
		return err
	}
	return r.RefreshDevices(ctx)
}

// UnsetDeviceAsDefault clears the default flag on the device with the
// given id and refreshes it.
func (r *Reconciler) UnsetDeviceAsDefault(ctx context.Context, id string) error {
	vid, pid, err := device.ParseDeviceID(id)
	if err != nil {
		return err
	}
	if err := r.configs.UnsetDefault(ctx, vid, pid); err != nil {
		return err
	}
	return r.RefreshDeviceConfig(ctx, vid, pid)
}

// GetDeviceConfig returns the saved configuration for the pair.
func (r *Reconciler) GetDeviceConfig(ctx context.Context, vid, pid string) (*device.Config, error) {
	return r.configs.Get(ctx, vid, pid)
}

// GetAllDeviceConfigs returns every saved configuration keyed by device id.
func (r *Reconciler) GetAllDeviceConfigs(ctx context.Context) (map[string]device.Config, error) {
	return r.configs.All(ctx)
}

// HasDeviceConfig reports whether a configuration is saved for the pair.
func (r *Reconciler) HasDeviceConfig(ctx context.Context, vid, pid string) (bool, error) {
	return r.configs.Has(ctx, vid, pid)
}

// ConfiguredDeviceCount returns the number of saved configurations.
func (r *Reconciler) ConfiguredDeviceCount(ctx context.Context) (int, error) {
	return r.configs.Count(ctx)
}
