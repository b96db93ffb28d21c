package detect

import (
	"context"
	"fmt"

	"github.com/google/gousb"
	"github.com/google/gousb/usbid"

	"github.com/helixpos/periph-core/internal/device"
)

// systemClasses are USB device classes that are never point-of-sale
// peripherals. Devices in these classes are left to the operating system.
var systemClasses = map[gousb.Class]bool{
	gousb.ClassHub:           true,
	gousb.ClassHID:           true,
	gousb.ClassMassStorage:   true,
	gousb.ClassAudio:         true,
	gousb.ClassVideo:         true,
	gousb.ClassWireless:      true,
	gousb.ClassSmartCard:     true,
	gousb.ClassComm:          true, // CDC serial, covered by the serial source
	gousb.ClassImage:         true,
	gousb.ClassAudioVideo:    true,
	gousb.ClassPersonalHealthcare: true,
}

// USBSource walks raw USB descriptors. Printer-class devices are reported
// write-capable; other non-system devices are reported capability-less so
// a saved configuration can still claim them.
type USBSource struct {
	ctx    *gousb.Context
	logger Logger
}

// NewUSBSource creates a USB detection source. The caller owns the
// returned source and must Close it.
func NewUSBSource() *USBSource {
	return &USBSource{ctx: gousb.NewContext(), logger: noopLogger{}}
}

// SetLogger sets the logger for the source.
func (s *USBSource) SetLogger(logger Logger) {
	s.logger = logger
}

// Name implements Source.
func (s *USBSource) Name() string { return "usb" }

// Detect implements Source. Devices are never opened: everything needed
// comes from the descriptors, so detection works without claiming
// interfaces away from their drivers.
func (s *USBSource) Detect(ctx context.Context) ([]device.Hardware, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []device.Hardware
	_, err := s.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		hw, keep := classify(desc)
		if keep {
			out = append(out, hw)
		}
		return false // inspect only, never open
	})
	if err != nil {
		return nil, fmt.Errorf("detect: walking usb descriptors: %w", err)
	}
	return out, nil
}

// Close releases the underlying USB context.
func (s *USBSource) Close() error {
	return s.ctx.Close()
}

func classify(desc *gousb.DeviceDesc) (device.Hardware, bool) {
	if systemClasses[desc.Class] {
		return device.Hardware{}, false
	}

	printer := desc.Class == gousb.ClassPrinter
	system := false
	for _, cfg := range desc.Configs {
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if alt.Class == gousb.ClassPrinter {
					printer = true
				}
				if systemClasses[alt.Class] {
					system = true
				}
			}
		}
	}
	if system && !printer {
		return device.Hardware{}, false
	}

	hw := device.Hardware{
		VID:  desc.Vendor.String(),
		PID:  desc.Product.String(),
		Path: fmt.Sprintf("usb:%03d:%03d", desc.Bus, desc.Address),
		Name: usbid.Describe(desc),
	}
	if printer {
		hw.Capabilities = []device.Capability{device.CapabilityWrite}
	}
	return hw, true
}
