// Package spooler is a thin binding to the native print-spooler API.
//
// On Windows it talks to winspool.drv directly: enumerating installed
// printer queues and writing RAW jobs (pre-rendered ESC/POS bytes) to a
// queue without any driver-side rendering. On other platforms every
// operation reports ErrUnsupported and enumeration is empty, so the rest
// of the system degrades to serial and USB transports.
package spooler
