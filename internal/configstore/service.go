package configstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/helixpos/periph-core/internal/device"
)

// Logger defines the logging interface used by the Service.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// configKeyPattern matches the keys owned by this service. Foreign keys in
// the same store are left alone.
var configKeyPattern = regexp.MustCompile(`^device_0x[0-9a-f]+_0x[0-9a-f]+$`)

// Service provides validated device-configuration CRUD on top of a Store.
//
// All public methods are safe for concurrent use to the extent the
// underlying Store is; the service itself keeps no mutable state.
type Service struct {
	store  Store
	logger Logger
}

// NewService creates a config service on the given store.
func NewService(store Store) *Service {
	return &Service{store: store, logger: noopLogger{}}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// Get returns the saved configuration for a vendor/product pair.
// Returns ErrConfigNotFound if none is saved.
func (s *Service) Get(ctx context.Context, vid, pid string) (*device.Config, error) {
	key, err := device.DeviceID(vid, pid)
	if err != nil {
		return nil, err
	}

	raw, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, key)
	}

	var cfg device.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", key, err)
	}
	return &cfg, nil
}

// All returns every saved configuration keyed by device id.
// Keys in the store that do not belong to this service are skipped.
func (s *Service) All(ctx context.Context) (map[string]device.Config, error) {
	keys, err := s.store.Keys(ctx)
	if err != nil {
		return nil, err
	}

	configs := make(map[string]device.Config)
	for _, key := range keys {
		if !configKeyPattern.MatchString(key) {
			continue
		}
		raw, ok, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var cfg device.Config
		if err := json.Unmarshal(raw, &cfg); err != nil {
			s.logger.Warn("skipping undecodable config entry", "key", key, "error", err)
			continue
		}
		configs[key] = cfg
	}
	return configs, nil
}

// Set saves a configuration for a vendor/product pair, replacing any
// existing entry. The config is validated first.
func (s *Service) Set(ctx context.Context, vid, pid string, cfg device.Config) error {
	if err := device.ValidateConfig(cfg); err != nil {
		return err
	}
	key, err := device.DeviceID(vid, pid)
	if err != nil {
		return err
	}
	if err := s.put(ctx, key, cfg); err != nil {
		return err
	}
	s.logger.Info("device config saved", "key", key, "type", cfg.Type)
	return nil
}

// Update modifies an existing configuration. The stricter update
// validation applies (brand and model required). On validation failure the
// returned config is nil and the error wraps device.ErrInvalidConfig;
// nothing is written.
func (s *Service) Update(ctx context.Context, vid, pid string, cfg device.Config) (*device.Config, error) {
	if err := device.ValidateConfigUpdate(cfg); err != nil {
		return nil, err
	}

	key, err := device.DeviceID(vid, pid)
	if err != nil {
		return nil, err
	}
	if _, ok, err := s.store.Get(ctx, key); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, key)
	}

	if err := s.put(ctx, key, cfg); err != nil {
		return nil, err
	}
	s.logger.Info("device config updated", "key", key, "type", cfg.Type)
	saved := cfg
	return &saved, nil
}

// Delete removes the configuration for a vendor/product pair.
func (s *Service) Delete(ctx context.Context, vid, pid string) error {
	key, err := device.DeviceID(vid, pid)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return err
	}
	s.logger.Info("device config deleted", "key", key)
	return nil
}

// DeleteAll removes every configuration owned by this service.
func (s *Service) DeleteAll(ctx context.Context) error {
	keys, err := s.store.Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if !configKeyPattern.MatchString(key) {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			return err
		}
	}
	s.logger.Info("all device configs deleted")
	return nil
}

// SetDefault marks the configuration for vid:pid as the default device of
// its type. Any existing default of the same type is cleared first, so
// the at-most-one-default-per-type invariant holds afterwards.
func (s *Service) SetDefault(ctx context.Context, vid, pid string) error {
	key, err := device.DeviceID(vid, pid)
	if err != nil {
		return err
	}

	cfg, err := s.Get(ctx, vid, pid)
	if err != nil {
		return err
	}

	// Clear the current default of this type, if it is a different entry.
	all, err := s.All(ctx)
	if err != nil {
		return err
	}
	for otherKey, other := range all {
		if otherKey == key || !other.Default || other.Type != cfg.Type {
			continue
		}
		other.Default = false
		if err := s.put(ctx, otherKey, other); err != nil {
			return fmt.Errorf("clearing previous default %s: %w", otherKey, err)
		}
		s.logger.Info("previous default cleared", "key", otherKey, "type", other.Type)
	}

	cfg.Default = true
	if err := s.put(ctx, key, *cfg); err != nil {
		return err
	}
	s.logger.Info("default device set", "key", key, "type", cfg.Type)
	return nil
}

// UnsetDefault clears the default flag on the configuration for vid:pid.
func (s *Service) UnsetDefault(ctx context.Context, vid, pid string) error {
	cfg, err := s.Get(ctx, vid, pid)
	if err != nil {
		return err
	}
	if !cfg.Default {
		return nil
	}

	cfg.Default = false
	key, err := device.DeviceID(vid, pid)
	if err != nil {
		return err
	}
	return s.put(ctx, key, *cfg)
}

// Has reports whether a configuration is saved for vid:pid.
func (s *Service) Has(ctx context.Context, vid, pid string) (bool, error) {
	key, err := device.DeviceID(vid, pid)
	if err != nil {
		return false, err
	}
	_, ok, err := s.store.Get(ctx, key)
	return ok, err
}

// Count returns the number of saved configurations.
func (s *Service) Count(ctx context.Context) (int, error) {
	all, err := s.All(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

func (s *Service) put(ctx context.Context, key string, cfg device.Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config %s: %w", key, err)
	}
	return s.store.Set(ctx, key, raw)
}
