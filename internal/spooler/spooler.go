package spooler

import (
	"errors"
	"regexp"
)

// ErrUnsupported is returned on platforms without a native spooler binding.
var ErrUnsupported = errors.New("spooler: not supported on this platform")

// PrinterInfo describes one installed printer queue.
type PrinterInfo struct {
	// Name is the queue name jobs are addressed to.
	Name string

	// Port is the port the queue prints through ("USB001", "COM3", ...).
	Port string

	// Driver is the installed driver name, kept for diagnostics.
	Driver string
}

// hardwareIDPattern matches the VID/PID segment of a PnP hardware id,
// e.g. "USB\VID_04B8&PID_0202\...".
var hardwareIDPattern = regexp.MustCompile(`(?i)vid_([0-9a-f]{4}).*?pid_([0-9a-f]{4})`)

// ParseHardwareID extracts the vendor and product ids from a PnP hardware
// id string. Returns ok=false when the string carries no VID/PID segment.
func ParseHardwareID(s string) (vid, pid string, ok bool) {
	m := hardwareIDPattern.FindStringSubmatch(s)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
