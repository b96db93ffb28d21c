package detect

import (
	"context"
	"errors"

	"github.com/helixpos/periph-core/internal/device"
)

// Multi fans detection out over several sources and merges the results
// into one list de-duplicated by vid:pid, unioning capabilities when the
// same device is seen by more than one source (a USB printer also shows
// up as a spooler queue, for example).
//
// A failing source is logged and skipped; Detect only errors when every
// source failed, so one broken subsystem does not blind the others.
type Multi struct {
	sources []Source
	logger  Logger
}

// NewMulti creates a merged detector over the given sources.
func NewMulti(sources ...Source) *Multi {
	return &Multi{sources: sources, logger: noopLogger{}}
}

// SetLogger sets the logger for the detector.
func (m *Multi) SetLogger(logger Logger) {
	m.logger = logger
}

// Detect implements device.Detector.
func (m *Multi) Detect(ctx context.Context) ([]device.Hardware, error) {
	merged := make(map[string]*device.Hardware)
	var order []string
	var errs []error

	for _, src := range m.sources {
		hardware, err := src.Detect(ctx)
		if err != nil {
			m.logger.Warn("detection source failed", "source", src.Name(), "error", err)
			errs = append(errs, err)
			continue
		}

		for _, hw := range hardware {
			id, err := device.DeviceID(hw.VID, hw.PID)
			if err != nil {
				m.logger.Debug("skipping hardware with malformed ids",
					"source", src.Name(), "vid", hw.VID, "pid", hw.PID)
				continue
			}

			existing, seen := merged[id]
			if !seen {
				cpy := hw
				cpy.Capabilities = append([]device.Capability(nil), hw.Capabilities...)
				merged[id] = &cpy
				order = append(order, id)
				continue
			}

			for _, c := range hw.Capabilities {
				if !hasCapability(existing.Capabilities, c) {
					existing.Capabilities = append(existing.Capabilities, c)
				}
			}
			// Earlier sources win on descriptive fields; fill gaps only.
			if existing.Path == "" {
				existing.Path = hw.Path
			}
			if existing.Name == "" {
				existing.Name = hw.Name
			}
			if existing.Manufacturer == "" {
				existing.Manufacturer = hw.Manufacturer
			}
			if existing.SerialNumber == "" {
				existing.SerialNumber = hw.SerialNumber
			}
		}
	}

	if len(errs) > 0 && len(errs) == len(m.sources) {
		return nil, errors.Join(errs...)
	}

	out := make([]device.Hardware, 0, len(order))
	for _, id := range order {
		out = append(out, *merged[id])
	}
	return out, nil
}

func hasCapability(caps []device.Capability, c device.Capability) bool {
	for _, have := range caps {
		if have == c {
			return true
		}
	}
	return false
}
