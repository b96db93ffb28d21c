package detect

import (
	"context"
	"fmt"

	"go.bug.st/serial/enumerator"

	"github.com/helixpos/periph-core/internal/device"
)

// SerialSource finds USB serial ports. Everything it reports is
// read-capable: scanners and scales present themselves as serial lines.
type SerialSource struct {
	// listPorts is swappable for tests.
	listPorts func() ([]*enumerator.PortDetails, error)
}

// NewSerialSource creates a serial-port detection source.
func NewSerialSource() *SerialSource {
	return &SerialSource{listPorts: enumerator.GetDetailedPortsList}
}

// Name implements Source.
func (s *SerialSource) Name() string { return "serial" }

// Detect implements Source. Non-USB ports (onboard UARTs, virtual ports
// without a vendor id) are skipped: identity needs a vid:pid pair.
func (s *SerialSource) Detect(ctx context.Context) ([]device.Hardware, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports, err := s.listPorts()
	if err != nil {
		return nil, fmt.Errorf("detect: listing serial ports: %w", err)
	}

	var out []device.Hardware
	for _, port := range ports {
		if !port.IsUSB || port.VID == "" || port.PID == "" {
			continue
		}
		out = append(out, device.Hardware{
			VID:          port.VID,
			PID:          port.PID,
			Path:         port.Name,
			Name:         port.Product,
			SerialNumber: port.SerialNumber,
			Capabilities: []device.Capability{device.CapabilityRead},
		})
	}
	return out, nil
}
