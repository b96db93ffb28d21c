package detect

import (
	"context"
	"fmt"

	"github.com/helixpos/periph-core/internal/device"
	"github.com/helixpos/periph-core/internal/spooler"
)

// SpoolerSource reports installed printer queues whose port or name
// carries a recognisable VID/PID segment. Queues without one cannot be
// given a stable identity and are skipped.
//
// On platforms without a native spooler the source is always empty.
type SpoolerSource struct {
	logger Logger

	// enum is swappable for tests.
	enum func() ([]spooler.PrinterInfo, error)
}

// NewSpoolerSource creates a spooler detection source.
func NewSpoolerSource() *SpoolerSource {
	return &SpoolerSource{logger: noopLogger{}, enum: spooler.Enum}
}

// SetLogger sets the logger for the source.
func (s *SpoolerSource) SetLogger(logger Logger) {
	s.logger = logger
}

// Name implements Source.
func (s *SpoolerSource) Name() string { return "spooler" }

// Detect implements Source.
func (s *SpoolerSource) Detect(ctx context.Context) ([]device.Hardware, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	printers, err := s.enum()
	if err != nil {
		return nil, fmt.Errorf("detect: enumerating spooler queues: %w", err)
	}

	var out []device.Hardware
	for _, info := range printers {
		vid, pid, ok := spooler.ParseHardwareID(info.Port)
		if !ok {
			vid, pid, ok = spooler.ParseHardwareID(info.Name)
		}
		if !ok {
			s.logger.Debug("spooler queue has no usb identity, skipping",
				"printer", info.Name, "port", info.Port)
			continue
		}
		out = append(out, device.Hardware{
			VID:          vid,
			PID:          pid,
			Path:         info.Port,
			Name:         info.Name,
			Capabilities: []device.Capability{device.CapabilityWrite},
		})
	}
	return out, nil
}
