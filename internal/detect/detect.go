package detect

import (
	"context"

	"github.com/helixpos/periph-core/internal/device"
)

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Source is one way of finding attached hardware.
type Source interface {
	// Name identifies the source in logs.
	Name() string

	// Detect enumerates the hardware this source can currently see.
	Detect(ctx context.Context) ([]device.Hardware, error)
}
