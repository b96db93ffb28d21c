package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/helixpos/periph-core/internal/configstore"
	"github.com/helixpos/periph-core/internal/device"
	"github.com/helixpos/periph-core/internal/eventbus"
)

// scriptedDetector serves a mutable hardware list and counts scans.
type scriptedDetector struct {
	mu       sync.Mutex
	hardware []device.Hardware
	err      error
	scans    int
	block    chan struct{} // when set, Detect waits on it
}

func (d *scriptedDetector) Detect(ctx context.Context) ([]device.Hardware, error) {
	d.mu.Lock()
	d.scans++
	block := d.block
	hw := append([]device.Hardware(nil), d.hardware...)
	err := d.err
	d.mu.Unlock()

	if block != nil {
		<-block
	}
	return hw, err
}

func (d *scriptedDetector) set(hw ...device.Hardware) {
	d.mu.Lock()
	d.hardware = hw
	d.mu.Unlock()
}

func (d *scriptedDetector) scanCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scans
}

// memConfigs is an in-memory ConfigService.
type memConfigs struct {
	mu      sync.Mutex
	configs map[string]device.Config // device id -> config
}

func newMemConfigs() *memConfigs {
	return &memConfigs{configs: make(map[string]device.Config)}
}

func (m *memConfigs) Get(_ context.Context, vid, pid string) (*device.Config, error) {
	key, err := device.DeviceID(vid, pid)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", configstore.ErrConfigNotFound, key)
	}
	return &cfg, nil
}

func (m *memConfigs) All(context.Context) (map[string]device.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]device.Config, len(m.configs))
	for k, v := range m.configs {
		out[k] = v
	}
	return out, nil
}

func (m *memConfigs) Set(_ context.Context, vid, pid string, cfg device.Config) error {
	key, err := device.DeviceID(vid, pid)
	if err != nil {
		return err
	}
	if err := device.ValidateConfig(cfg); err != nil {
		return err
	}
	m.mu.Lock()
	m.configs[key] = cfg
	m.mu.Unlock()
	return nil
}

func (m *memConfigs) Update(ctx context.Context, vid, pid string, cfg device.Config) (*device.Config, error) {
	if _, err := m.Get(ctx, vid, pid); err != nil {
		return nil, err
	}
	if err := m.Set(ctx, vid, pid, cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (m *memConfigs) Delete(_ context.Context, vid, pid string) error {
	key, err := device.DeviceID(vid, pid)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.configs, key)
	m.mu.Unlock()
	return nil
}

func (m *memConfigs) DeleteAll(context.Context) error {
	m.mu.Lock()
	m.configs = make(map[string]device.Config)
	m.mu.Unlock()
	return nil
}

func (m *memConfigs) SetDefault(ctx context.Context, vid, pid string) error {
	key, err := device.DeviceID(vid, pid)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.configs[key]
	if !ok {
		return fmt.Errorf("%w: %s", configstore.ErrConfigNotFound, key)
	}
	for k, cfg := range m.configs {
		if k != key && cfg.Type == target.Type && cfg.Default {
			cfg.Default = false
			m.configs[k] = cfg
		}
	}
	target.Default = true
	m.configs[key] = target
	return nil
}

func (m *memConfigs) UnsetDefault(ctx context.Context, vid, pid string) error {
	key, err := device.DeviceID(vid, pid)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[key]
	if !ok {
		return fmt.Errorf("%w: %s", configstore.ErrConfigNotFound, key)
	}
	cfg.Default = false
	m.configs[key] = cfg
	return nil
}

func (m *memConfigs) Has(_ context.Context, vid, pid string) (bool, error) {
	key, err := device.DeviceID(vid, pid)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.configs[key]
	return ok, nil
}

func (m *memConfigs) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.configs), nil
}

// eventRecorder collects bus events in order.
type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) watch(bus *eventbus.Bus) {
	bus.OnDeviceConnect(func(dev device.Device) {
		r.append("connect:" + dev.ID)
	})
	bus.OnDeviceDisconnect(func(dev device.Device) {
		r.append("disconnect:" + dev.ID)
	})
}

func (r *eventRecorder) append(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func serialHardware(vid, pid string) device.Hardware {
	return device.Hardware{
		VID:          vid,
		PID:          pid,
		Path:         "/dev/ttyUSB0",
		Name:         "test device",
		Capabilities: []device.Capability{device.CapabilityRead},
	}
}

func printerHardware(vid, pid string) device.Hardware {
	return device.Hardware{
		VID:          vid,
		PID:          pid,
		Name:         "test printer",
		Capabilities: []device.Capability{device.CapabilityWrite},
	}
}

func newTestReconciler(t *testing.T) (*Reconciler, *scriptedDetector, *memConfigs, *eventRecorder) {
	t.Helper()
	det := &scriptedDetector{}
	cfgs := newMemConfigs()
	bus := eventbus.New()
	rec := &eventRecorder{}
	rec.watch(bus)
	r := New(det, cfgs, bus)
	return r, det, cfgs, rec
}

func TestRefreshDevicesConnectsNewDevices(t *testing.T) {
	r, det, _, rec := newTestReconciler(t)
	det.set(serialHardware("04b8", "0202"))

	if err := r.RefreshDevices(context.Background()); err != nil {
		t.Fatalf("RefreshDevices: %v", err)
	}

	want := []string{"connect:device_0x04b8_0x0202"}
	if got := rec.list(); len(got) != 1 || got[0] != want[0] {
		t.Fatalf("events = %v, want %v", got, want)
	}

	dev, err := r.Device("device_0x04b8_0x0202")
	if err != nil {
		t.Fatalf("Device: %v", err)
	}
	if dev.Meta.Type != device.TypeUnassigned {
		t.Errorf("unconfigured read device type = %q, want unassigned", dev.Meta.Type)
	}
	if dev.Meta.Baudrate != 9600 {
		t.Errorf("unconfigured read device baudrate = %d, want 9600", dev.Meta.Baudrate)
	}
}

func TestRefreshDevicesAppliesSavedConfig(t *testing.T) {
	r, det, cfgs, _ := newTestReconciler(t)
	det.set(serialHardware("0eb8", "f000"))
	cfg := device.Config{Type: device.TypeScale, Brand: "demo", Model: "s-1", Baudrate: 19200, Default: true}
	if err := cfgs.Set(context.Background(), "0eb8", "f000", cfg); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := r.RefreshDevices(context.Background()); err != nil {
		t.Fatalf("RefreshDevices: %v", err)
	}

	dev, err := r.DefaultDevice(device.TypeScale)
	if err != nil {
		t.Fatalf("DefaultDevice: %v", err)
	}
	if dev.Meta != cfg {
		t.Errorf("merged meta = %+v, want %+v", dev.Meta, cfg)
	}
}

func TestRefreshDevicesDisconnectsVanishedDevices(t *testing.T) {
	r, det, _, rec := newTestReconciler(t)
	det.set(serialHardware("04b8", "0202"), printerHardware("1504", "0011"))

	if err := r.RefreshDevices(context.Background()); err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	det.set(printerHardware("1504", "0011"))
	if err := r.RefreshDevices(context.Background()); err != nil {
		t.Fatalf("second refresh: %v", err)
	}

	found := false
	for _, ev := range rec.list() {
		if ev == "disconnect:device_0x04b8_0x0202" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected disconnect for vanished device, events = %v", rec.list())
	}
	if r.DeviceCount() != 1 {
		t.Errorf("DeviceCount = %d, want 1", r.DeviceCount())
	}
}

func TestRefreshDevicesReconnectOnMetaChange(t *testing.T) {
	r, det, cfgs, rec := newTestReconciler(t)
	det.set(serialHardware("0eb8", "f000"))

	if err := r.RefreshDevices(context.Background()); err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	cfg := device.Config{Type: device.TypeScanner, Brand: "demo", Model: "q-2", Baudrate: 9600}
	if err := cfgs.Set(context.Background(), "0eb8", "f000", cfg); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := r.RefreshDevices(context.Background()); err != nil {
		t.Fatalf("second refresh: %v", err)
	}

	connects := 0
	for _, ev := range rec.list() {
		if ev == "connect:device_0x0eb8_0xf000" {
			connects++
		}
	}
	if connects != 2 {
		t.Errorf("connect events = %d, want 2 (initial + reconfiguration)", connects)
	}
}

func TestRefreshDevicesDetectorError(t *testing.T) {
	r, det, _, _ := newTestReconciler(t)
	det.err = errors.New("enumeration failed")

	if err := r.RefreshDevices(context.Background()); err == nil {
		t.Fatal("expected detector error to propagate")
	}
}

func TestRefreshDevicesCoalescesConcurrentScans(t *testing.T) {
	r, det, _, _ := newTestReconciler(t)
	det.set(serialHardware("04b8", "0202"))
	det.block = make(chan struct{})

	const callers = 5
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.RefreshDevices(context.Background())
		}()
	}

	// Give every caller time to join the in-flight scan, then release it.
	time.Sleep(50 * time.Millisecond)
	det.mu.Lock()
	release := det.block
	det.block = nil
	det.mu.Unlock()
	close(release)
	wg.Wait()

	// One shared scan plus at most one coalesced follow-up.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if det.scanCount() >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n := det.scanCount(); n > 2 {
		t.Errorf("scan count = %d, want at most 2 (shared + follow-up)", n)
	}
}

func TestRefreshDeviceByVidPidIgnoresOtherDevices(t *testing.T) {
	r, det, _, rec := newTestReconciler(t)
	det.set(serialHardware("04b8", "0202"))

	if err := r.RefreshDevices(context.Background()); err != nil {
		t.Fatalf("RefreshDevices: %v", err)
	}

	// A second device appears, but the targeted refresh names the first.
	det.set(serialHardware("04b8", "0202"), printerHardware("1504", "0011"))
	if err := r.RefreshDeviceByVidPid(context.Background(), "04b8", "0202"); err != nil {
		t.Fatalf("RefreshDeviceByVidPid: %v", err)
	}

	if r.DeviceCount() != 1 {
		t.Errorf("DeviceCount = %d, want 1 (targeted refresh must not add others)", r.DeviceCount())
	}
	if got := rec.list(); len(got) != 1 {
		t.Errorf("events = %v, want only the initial connect", got)
	}
}

func TestRefreshDeviceByVidPidAddsNamedDevice(t *testing.T) {
	r, det, _, rec := newTestReconciler(t)
	det.set(printerHardware("1504", "0011"))

	if err := r.RefreshDeviceByVidPid(context.Background(), "1504", "0011"); err != nil {
		t.Fatalf("RefreshDeviceByVidPid: %v", err)
	}
	if got := rec.list(); len(got) != 1 || got[0] != "connect:device_0x1504_0x0011" {
		t.Fatalf("events = %v, want single connect", got)
	}
}

func TestCheckForDisconnectedDevicesRemovesOnly(t *testing.T) {
	r, det, _, rec := newTestReconciler(t)
	det.set(serialHardware("04b8", "0202"))

	if err := r.RefreshDevices(context.Background()); err != nil {
		t.Fatalf("RefreshDevices: %v", err)
	}

	// First device gone, a new one present; the detach pass must only remove.
	det.set(printerHardware("1504", "0011"))
	if err := r.CheckForDisconnectedDevices(context.Background()); err != nil {
		t.Fatalf("CheckForDisconnectedDevices: %v", err)
	}

	if r.DeviceCount() != 0 {
		t.Errorf("DeviceCount = %d, want 0", r.DeviceCount())
	}
	got := rec.list()
	if len(got) != 2 || got[1] != "disconnect:device_0x04b8_0x0202" {
		t.Errorf("events = %v, want connect then disconnect", got)
	}
}

func TestRefreshDeviceConfigDowngradeEmitsDisconnectFirst(t *testing.T) {
	r, det, cfgs, rec := newTestReconciler(t)
	det.set(serialHardware("0eb8", "f000"))
	cfg := device.Config{Type: device.TypeScale, Brand: "demo", Model: "s-1", Baudrate: 9600}
	if err := cfgs.Set(context.Background(), "0eb8", "f000", cfg); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := r.RefreshDevices(context.Background()); err != nil {
		t.Fatalf("RefreshDevices: %v", err)
	}

	if err := r.DeleteDeviceConfig(context.Background(), "0eb8", "f000"); err != nil {
		t.Fatalf("DeleteDeviceConfig: %v", err)
	}

	got := rec.list()
	if len(got) != 2 || got[1] != "disconnect:device_0x0eb8_0xf000" {
		t.Fatalf("events = %v, want connect then disconnect", got)
	}

	// The device stays mapped, downgraded to unassigned.
	dev, err := r.Device("device_0x0eb8_0xf000")
	if err != nil {
		t.Fatalf("Device after downgrade: %v", err)
	}
	if dev.Meta.Type != device.TypeUnassigned {
		t.Errorf("type after config delete = %q, want unassigned", dev.Meta.Type)
	}
}

func TestRefreshDeviceConfigRemovesVanishedConfiguredDevice(t *testing.T) {
	r, det, cfgs, rec := newTestReconciler(t)
	det.set(serialHardware("0eb8", "f000"))
	cfg := device.Config{Type: device.TypeScale, Brand: "demo", Model: "s-1", Baudrate: 9600}
	if err := cfgs.Set(context.Background(), "0eb8", "f000", cfg); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := r.RefreshDevices(context.Background()); err != nil {
		t.Fatalf("RefreshDevices: %v", err)
	}

	det.set() // unplugged
	if err := r.DeleteDeviceConfig(context.Background(), "0eb8", "f000"); err != nil {
		t.Fatalf("DeleteDeviceConfig: %v", err)
	}

	if r.DeviceCount() != 0 {
		t.Errorf("DeviceCount = %d, want 0", r.DeviceCount())
	}
	got := rec.list()
	if len(got) != 2 || got[1] != "disconnect:device_0x0eb8_0xf000" {
		t.Errorf("events = %v, want connect then disconnect", got)
	}
}

func TestSetDeviceConfigPersistsAndConnects(t *testing.T) {
	r, det, cfgs, rec := newTestReconciler(t)
	det.set(printerHardware("1504", "0011"))
	if err := r.RefreshDevices(context.Background()); err != nil {
		t.Fatalf("RefreshDevices: %v", err)
	}

	cfg := device.Config{Type: device.TypePrinter, Brand: "epson", Model: "tm-t20", Baudrate: device.BaudNotSupported}
	if err := r.SetDeviceConfig(context.Background(), "1504", "0011", cfg); err != nil {
		t.Fatalf("SetDeviceConfig: %v", err)
	}

	if got, err := cfgs.Get(context.Background(), "1504", "0011"); err != nil || got.Type != device.TypePrinter {
		t.Fatalf("persisted config = %+v, %v", got, err)
	}

	connects := 0
	for _, ev := range rec.list() {
		if ev == "connect:device_0x1504_0x0011" {
			connects++
		}
	}
	if connects != 2 {
		t.Errorf("connect events = %d, want 2", connects)
	}
}

func TestSetDeviceAsDefaultMovesFlag(t *testing.T) {
	r, det, cfgs, _ := newTestReconciler(t)
	det.set(serialHardware("0001", "0001"), serialHardware("0002", "0002"))

	scale := device.Config{Type: device.TypeScale, Brand: "a", Model: "m", Baudrate: 9600, Default: true}
	if err := cfgs.Set(context.Background(), "0001", "0001", scale); err != nil {
		t.Fatalf("Set: %v", err)
	}
	scale.Default = false
	if err := cfgs.Set(context.Background(), "0002", "0002", scale); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := r.RefreshDevices(context.Background()); err != nil {
		t.Fatalf("RefreshDevices: %v", err)
	}

	if err := r.SetDeviceAsDefault(context.Background(), "device_0x0002_0x0002"); err != nil {
		t.Fatalf("SetDeviceAsDefault: %v", err)
	}

	def, err := r.DefaultDevice(device.TypeScale)
	if err != nil {
		t.Fatalf("DefaultDevice: %v", err)
	}
	if def.ID != "device_0x0002_0x0002" {
		t.Errorf("default = %s, want device_0x0002_0x0002", def.ID)
	}

	old, err := r.Device("device_0x0001_0x0001")
	if err != nil {
		t.Fatalf("Device: %v", err)
	}
	if old.Meta.Default {
		t.Error("previous default still flagged after reassignment")
	}
}

func TestDeviceQueriesReturnClones(t *testing.T) {
	r, det, _, _ := newTestReconciler(t)
	det.set(serialHardware("04b8", "0202"))
	if err := r.RefreshDevices(context.Background()); err != nil {
		t.Fatalf("RefreshDevices: %v", err)
	}

	dev, err := r.Device("device_0x04b8_0x0202")
	if err != nil {
		t.Fatalf("Device: %v", err)
	}
	dev.Meta.Type = device.TypePrinter
	dev.Capabilities[0] = device.CapabilityWrite

	again, err := r.Device("device_0x04b8_0x0202")
	if err != nil {
		t.Fatalf("Device: %v", err)
	}
	if again.Meta.Type == device.TypePrinter || again.Capabilities[0] == device.CapabilityWrite {
		t.Error("mutating a returned device leaked into the reconciler map")
	}
}

func TestDeviceNotFound(t *testing.T) {
	r, _, _, _ := newTestReconciler(t)
	if _, err := r.Device("device_0x9999_0x9999"); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := r.DefaultDevice(device.TypePrinter); !errors.Is(err, device.ErrNoDefault) {
		t.Errorf("err = %v, want ErrNoDefault", err)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	r, det, _, _ := newTestReconciler(t)
	det.set(serialHardware("04b8", "0202"))

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	scans := det.scanCount()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if det.scanCount() != scans {
		t.Error("second Start triggered another scan")
	}

	r.Stop()
	if r.DeviceCount() != 0 {
		t.Errorf("DeviceCount after Stop = %d, want 0", r.DeviceCount())
	}
	r.Stop() // must not panic
}

func TestDuplicateVidPidUnionsCapabilities(t *testing.T) {
	r, det, _, _ := newTestReconciler(t)
	serial := serialHardware("0dd4", "0205")
	usb := printerHardware("0dd4", "0205")
	det.set(serial, usb)

	if err := r.RefreshDevices(context.Background()); err != nil {
		t.Fatalf("RefreshDevices: %v", err)
	}

	dev, err := r.Device("device_0x0dd4_0x0205")
	if err != nil {
		t.Fatalf("Device: %v", err)
	}
	if !dev.HasCapability(device.CapabilityRead) || !dev.HasCapability(device.CapabilityWrite) {
		t.Errorf("capabilities = %v, want read and write merged", dev.Capabilities)
	}
	if r.DeviceCount() != 1 {
		t.Errorf("DeviceCount = %d, want 1", r.DeviceCount())
	}
}
