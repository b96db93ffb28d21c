package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrNotFound) {
//	    // handle unknown id
//	}
var (
	// ErrNotFound is returned when a device id is not in the current map.
	ErrNotFound = errors.New("device: not found")

	// ErrNoDefault is returned when no device of the requested type is
	// currently designated as default.
	ErrNoDefault = errors.New("device: no default device for type")

	// ErrInvalidVidPid is returned when a vendor or product id is not
	// valid hexadecimal.
	ErrInvalidVidPid = errors.New("device: invalid vendor/product id")

	// ErrInvalidConfig is returned when a configuration fails validation
	// (unknown type, non-standard baud rate, empty brand/model on update).
	ErrInvalidConfig = errors.New("device: invalid config")
)
