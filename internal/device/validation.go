package device

import (
	"fmt"
	"strings"
)

// ValidateConfig checks a configuration before it is persisted.
// Brand and model may be empty here; creation seeds configs from detection
// data that often lacks both.
func ValidateConfig(cfg Config) error {
	if !cfg.Type.IsValid() {
		return fmt.Errorf("%w: unknown device type %q", ErrInvalidConfig, cfg.Type)
	}
	if !ValidBaudRate(cfg.Baudrate) {
		return fmt.Errorf("%w: baud rate %d is not a standard rate", ErrInvalidConfig, cfg.Baudrate)
	}
	return nil
}

// ValidateConfigUpdate checks a configuration supplied by a consumer-facing
// update. Updates are stricter than creation: brand and model must be set.
func ValidateConfigUpdate(cfg Config) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Brand) == "" {
		return fmt.Errorf("%w: brand is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	return nil
}
