package device

import (
	"fmt"
	"strings"
)

// Capability describes what a device can do at the transport level.
type Capability string

const (
	// CapabilityRead marks devices that push data to the host (scanners, scales).
	CapabilityRead Capability = "read"

	// CapabilityWrite marks devices that accept data from the host (printers).
	CapabilityWrite Capability = "write"
)

// Type classifies a device by the capability manager that owns it.
type Type string

const (
	TypePrinter    Type = "printer"
	TypeScanner    Type = "scanner"
	TypeScale      Type = "scale"
	TypeUnassigned Type = "unassigned"
)

// Types lists all valid device types.
func Types() []Type {
	return []Type{TypePrinter, TypeScanner, TypeScale, TypeUnassigned}
}

// IsValid reports whether t is a recognised device type.
func (t Type) IsValid() bool {
	switch t {
	case TypePrinter, TypeScanner, TypeScale, TypeUnassigned:
		return true
	}
	return false
}

// BaudNotSupported is the baud-rate sentinel for non-serial devices
// (spooler- or USB-attached printers have no baud rate).
const BaudNotSupported = 0

// standardBaudRates is the fixed set of accepted serial speeds.
var standardBaudRates = map[int]bool{
	1200:   true,
	2400:   true,
	4800:   true,
	9600:   true,
	19200:  true,
	38400:  true,
	57600:  true,
	115200: true,
}

// ValidBaudRate reports whether rate is a standard serial speed or the
// BaudNotSupported sentinel.
func ValidBaudRate(rate int) bool {
	return rate == BaudNotSupported || standardBaudRates[rate]
}

// Config is the persisted, user-editable configuration for a vid:pid pair.
// It is durable and independent of whether the hardware is attached.
type Config struct {
	Type     Type   `json:"deviceType"`
	Brand    string `json:"brand"`
	Model    string `json:"model"`
	Baudrate int    `json:"baudrate"`
	Default  bool   `json:"setToDefault"`
}

// Device is the ephemeral, merged view of one attached peripheral.
// Instances are rebuilt on every detection scan; do not hold on to them
// across scans.
type Device struct {
	// ID is the deterministic identity key derived from VID and PID.
	ID string `json:"id"`

	// VID and PID are normalised lower-case hex with a 0x prefix.
	VID string `json:"vid"`
	PID string `json:"pid"`

	// Path is the serial device path or printer port name.
	Path string `json:"path"`

	// Best-effort descriptive fields; not part of identity.
	Name         string `json:"name,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`

	Capabilities []Capability `json:"capabilities"`

	// Meta is the merged configuration: the persisted Config for this
	// vid:pid, or a capability-derived default when none is saved.
	Meta Config `json:"meta"`
}

// HasCapability reports whether the device advertises c.
func (d *Device) HasCapability(c Capability) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Clone returns an independent copy of the device.
// The reconciler hands out clones so callers cannot mutate its map.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	if d.Capabilities != nil {
		cpy.Capabilities = make([]Capability, len(d.Capabilities))
		copy(cpy.Capabilities, d.Capabilities)
	}
	return &cpy
}

// DefaultMeta derives the configuration applied to a device with no saved
// config: write-capable hardware is assumed to be a printer with no baud
// rate; read-capable hardware starts unassigned at 9600 baud.
func DefaultMeta(caps []Capability) Config {
	for _, c := range caps {
		if c == CapabilityWrite {
			return Config{Type: TypePrinter, Baudrate: BaudNotSupported}
		}
	}
	for _, c := range caps {
		if c == CapabilityRead {
			return Config{Type: TypeUnassigned, Baudrate: 9600}
		}
	}
	return Config{Type: TypeUnassigned, Baudrate: BaudNotSupported}
}

// NormalizeVidPid canonicalises a vendor or product id to lower-case hex
// with a 0x prefix ("26F1" and "0X26f1" both become "0x26f1").
func NormalizeVidPid(v string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(v))
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return "", fmt.Errorf("%w: empty id", ErrInvalidVidPid)
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", fmt.Errorf("%w: %q", ErrInvalidVidPid, v)
		}
	}
	return "0x" + s, nil
}

// DeviceID builds the identity key for a vendor/product pair.
// The inputs are normalised first; invalid hex yields an error.
func DeviceID(vid, pid string) (string, error) {
	nv, err := NormalizeVidPid(vid)
	if err != nil {
		return "", err
	}
	np, err := NormalizeVidPid(pid)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("device_%s_%s", nv, np), nil
}

// ParseDeviceID splits an identity key back into its normalised vendor and
// product ids.
func ParseDeviceID(id string) (vid, pid string, err error) {
	rest, ok := strings.CutPrefix(id, "device_")
	if !ok {
		return "", "", fmt.Errorf("%w: malformed device id %q", ErrInvalidVidPid, id)
	}
	vid, pid, ok = strings.Cut(rest, "_")
	if !ok {
		return "", "", fmt.Errorf("%w: malformed device id %q", ErrInvalidVidPid, id)
	}
	if vid, err = NormalizeVidPid(vid); err != nil {
		return "", "", err
	}
	if pid, err = NormalizeVidPid(pid); err != nil {
		return "", "", err
	}
	return vid, pid, nil
}
