package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strconv"
	"strings"

	"github.com/google/gousb"

	"github.com/helixpos/periph-core/internal/escpos"
	"github.com/helixpos/periph-core/internal/spooler"
)

// ErrNoPrinterEndpoint means the USB device exposes no bulk OUT endpoint
// to push a job through.
var ErrNoPrinterEndpoint = errors.New("transport: no bulk out endpoint")

// PrintAdapter is the write-side transport contract. Write delivers one
// complete job; isImage marks data as an encoded PNG or JPEG to be
// rasterised instead of printed as text.
type PrintAdapter interface {
	Write(ctx context.Context, data []byte, isImage bool) error
	Close() error
}

// buildJob wraps payload bytes into a full ESC/POS job ending in a
// partial cut.
func buildJob(data []byte, isImage bool) ([]byte, error) {
	job := escpos.NewJob()
	if isImage {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("transport: decoding image: %w", err)
		}
		if err := job.Raster(img, escpos.DefaultThreshold); err != nil {
			return nil, err
		}
	} else {
		job.Text(string(data))
	}
	job.PartialCut()
	return job.Bytes(), nil
}

// SpoolerPrinter prints through a native spooler queue. Each Write is
// one RAW document: open, spool, close, so a wedged job never holds the
// queue handle.
type SpoolerPrinter struct {
	queue string
}

// NewSpoolerPrinter creates an adapter for the named queue.
func NewSpoolerPrinter(queue string) *SpoolerPrinter {
	return &SpoolerPrinter{queue: queue}
}

// Write implements PrintAdapter.
func (p *SpoolerPrinter) Write(ctx context.Context, data []byte, isImage bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := buildJob(data, isImage)
	if err != nil {
		return err
	}

	printer, err := spooler.Open(p.queue)
	if err != nil {
		return err
	}
	defer printer.Close()

	if err := printer.StartDoc("receipt"); err != nil {
		return err
	}
	if _, err := printer.Write(payload); err != nil {
		printer.EndDoc()
		return err
	}
	return printer.EndDoc()
}

// Close implements PrintAdapter. Spooler handles are per-job, so there
// is nothing to release.
func (p *SpoolerPrinter) Close() error { return nil }

// USBPrinter prints over a raw USB bulk endpoint. The device is opened
// per Write and released immediately after: receipt printers are shared
// with other software and holding the interface claims it exclusively.
type USBPrinter struct {
	vid, pid gousb.ID
	usb      *gousb.Context
}

// NewUSBPrinter creates an adapter for the given vendor/product pair.
// vid and pid are hex strings, with or without a 0x prefix.
func NewUSBPrinter(vid, pid string) (*USBPrinter, error) {
	v, err := parseUSBID(vid)
	if err != nil {
		return nil, err
	}
	p, err := parseUSBID(pid)
	if err != nil {
		return nil, err
	}
	return &USBPrinter{vid: v, pid: p, usb: gousb.NewContext()}, nil
}

// Write implements PrintAdapter.
func (p *USBPrinter) Write(ctx context.Context, data []byte, isImage bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := buildJob(data, isImage)
	if err != nil {
		return err
	}

	dev, err := p.usb.OpenDeviceWithVIDPID(p.vid, p.pid)
	if err != nil {
		return fmt.Errorf("transport: opening usb printer %s:%s: %w", p.vid, p.pid, err)
	}
	if dev == nil {
		return fmt.Errorf("transport: usb printer %s:%s not attached", p.vid, p.pid)
	}
	defer dev.Close()

	// Take the interface back from the kernel printer driver for the
	// duration of the job.
	if err := dev.SetAutoDetach(true); err != nil {
		return fmt.Errorf("transport: detaching kernel driver: %w", err)
	}

	intf, release, err := dev.DefaultInterface()
	if err != nil {
		return fmt.Errorf("transport: claiming printer interface: %w", err)
	}
	defer release()

	out, err := bulkOut(intf)
	if err != nil {
		return err
	}

	if _, err := out.Write(payload); err != nil {
		return fmt.Errorf("transport: writing usb job: %w", err)
	}
	return nil
}

// Close implements PrintAdapter.
func (p *USBPrinter) Close() error {
	return p.usb.Close()
}

func bulkOut(intf *gousb.Interface) (*gousb.OutEndpoint, error) {
	for _, desc := range intf.Setting.Endpoints {
		if desc.Direction == gousb.EndpointDirectionOut && desc.TransferType == gousb.TransferTypeBulk {
			return intf.OutEndpoint(desc.Number)
		}
	}
	return nil, ErrNoPrinterEndpoint
}

func parseUSBID(s string) (gousb.ID, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("transport: bad usb id %q: %w", s, err)
	}
	return gousb.ID(v), nil
}
