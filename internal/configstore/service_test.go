package configstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/helixpos/periph-core/internal/device"
)

// memStore is an in-memory Store for unit tests.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memStore) Keys(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func TestSetAndGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemStore())

	cfg := device.Config{Type: device.TypeScanner, Brand: "Zebra", Model: "DS2208", Baudrate: 9600}
	if err := svc.Set(ctx, "26f1", "5650", cfg); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := svc.Get(ctx, "0x26F1", "0x5650") // different spelling, same pair
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if *got != cfg {
		t.Errorf("Get() = %+v, want %+v", *got, cfg)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	svc := NewService(newMemStore())
	_, err := svc.Get(context.Background(), "26f1", "5650")
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("Get() error = %v, want ErrConfigNotFound", err)
	}
}

func TestSetRejectsInvalidConfig(t *testing.T) {
	svc := NewService(newMemStore())
	err := svc.Set(context.Background(), "26f1", "5650",
		device.Config{Type: device.TypeScanner, Baudrate: 12345})
	if !errors.Is(err, device.ErrInvalidConfig) {
		t.Fatalf("Set() error = %v, want ErrInvalidConfig", err)
	}
}

func TestUpdateValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemStore())

	seed := device.Config{Type: device.TypeScale, Baudrate: 9600}
	if err := svc.Set(ctx, "0403", "6001", seed); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	tests := []struct {
		name    string
		cfg     device.Config
		wantErr error
	}{
		{
			name: "valid update",
			cfg:  device.Config{Type: device.TypeScale, Brand: "Dibal", Model: "G-310", Baudrate: 19200},
		},
		{
			name:    "empty brand rejected",
			cfg:     device.Config{Type: device.TypeScale, Model: "G-310", Baudrate: 9600},
			wantErr: device.ErrInvalidConfig,
		},
		{
			name:    "bad baud rejected",
			cfg:     device.Config{Type: device.TypeScale, Brand: "Dibal", Model: "G-310", Baudrate: 1},
			wantErr: device.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Update(ctx, "0403", "6001", tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Update() error = %v, want %v", err, tt.wantErr)
				}
				if got != nil {
					t.Error("Update() returned a config on validation failure")
				}
				return
			}
			if err != nil {
				t.Fatalf("Update() error = %v", err)
			}
			if *got != tt.cfg {
				t.Errorf("Update() = %+v, want %+v", *got, tt.cfg)
			}
		})
	}
}

func TestUpdateMissingConfig(t *testing.T) {
	svc := NewService(newMemStore())
	_, err := svc.Update(context.Background(), "26f1", "5650",
		device.Config{Type: device.TypeScanner, Brand: "Zebra", Model: "DS2208", Baudrate: 9600})
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("Update() error = %v, want ErrConfigNotFound", err)
	}
}

// TestAtMostOneDefaultPerType drives a sequence of set/update/default
// operations and checks the invariant after every step.
func TestAtMostOneDefaultPerType(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemStore())

	scanners := [][2]string{{"26f1", "5650"}, {"05e0", "1200"}}
	scales := [][2]string{{"0403", "6001"}}

	for _, s := range scanners {
		if err := svc.Set(ctx, s[0], s[1], device.Config{Type: device.TypeScanner, Baudrate: 9600}); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}
	for _, s := range scales {
		if err := svc.Set(ctx, s[0], s[1], device.Config{Type: device.TypeScale, Baudrate: 9600}); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}

	assertInvariant := func(step string) {
		t.Helper()
		all, err := svc.All(ctx)
		if err != nil {
			t.Fatalf("%s: All() error = %v", step, err)
		}
		defaults := make(map[device.Type]int)
		for _, cfg := range all {
			if cfg.Default {
				defaults[cfg.Type]++
			}
		}
		for typ, n := range defaults {
			if n > 1 {
				t.Fatalf("%s: %d defaults for type %s", step, n, typ)
			}
		}
	}

	steps := []struct {
		name string
		op   func() error
	}{
		{"first scanner default", func() error { return svc.SetDefault(ctx, "26f1", "5650") }},
		{"scale default", func() error { return svc.SetDefault(ctx, "0403", "6001") }},
		{"second scanner takes over", func() error { return svc.SetDefault(ctx, "05e0", "1200") }},
		{"re-set same default", func() error { return svc.SetDefault(ctx, "05e0", "1200") }},
		{"unset scale default", func() error { return svc.UnsetDefault(ctx, "0403", "6001") }},
	}
	for _, step := range steps {
		if err := step.op(); err != nil {
			t.Fatalf("%s: error = %v", step.name, err)
		}
		assertInvariant(step.name)
	}

	// The second scanner must be the surviving default.
	first, err := svc.Get(ctx, "26f1", "5650")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if first.Default {
		t.Error("first scanner still default after takeover")
	}
	second, err := svc.Get(ctx, "05e0", "1200")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !second.Default {
		t.Error("second scanner lost its default flag")
	}
}

func TestAllIgnoresForeignKeys(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.data["app_version"] = []byte(`"1.2.3"`)
	store.data["device_0x26f1_0x5650"] = []byte(`{"deviceType":"scanner","baudrate":9600}`)
	store.data["devices_legacy"] = []byte(`{}`)

	svc := NewService(store)
	all, err := svc.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("All() returned %d entries, want 1", len(all))
	}
	if _, ok := all["device_0x26f1_0x5650"]; !ok {
		t.Error("expected device key missing from All()")
	}

	n, err := svc.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestDeleteAllLeavesForeignKeys(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.data["app_version"] = []byte(`"1.2.3"`)

	svc := NewService(store)
	if err := svc.Set(ctx, "26f1", "5650", device.Config{Type: device.TypeScanner, Baudrate: 9600}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := svc.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}

	if has, _ := svc.Has(ctx, "26f1", "5650"); has {
		t.Error("config survived DeleteAll")
	}
	if _, ok := store.data["app_version"]; !ok {
		t.Error("DeleteAll removed a foreign key")
	}
}
