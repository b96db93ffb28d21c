// Package scale manages weight scale sessions.
//
// The registry behaviour mirrors the scanner manager with two deliberate
// differences. A scale only auto-starts for global callbacks when it is
// the default device: scales stream continuously and most installations
// want exactly one pollable scale, not every attached one. And removing
// the last callback for a scale stops its session when no global
// callbacks remain, so an idle scale does not hold its serial port open.
package scale
