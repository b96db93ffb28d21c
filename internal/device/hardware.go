package device

import "context"

// Hardware is one raw detection result before configuration merge.
// Detection sources (serial enumeration, USB descriptor walks, the native
// spooler binding) produce these; the reconciler turns them into Devices.
type Hardware struct {
	VID          string
	PID          string
	Path         string
	Name         string
	Manufacturer string
	SerialNumber string
	Capabilities []Capability
}

// Detector enumerates currently attached hardware.
//
// Implementations live in the detect package; the reconciler only depends
// on this interface so tests can drive it with scripted detections.
type Detector interface {
	Detect(ctx context.Context) ([]Hardware, error)
}
