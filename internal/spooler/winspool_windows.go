//go:build windows

package spooler

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	winspool = windows.NewLazySystemDLL("winspool.drv")

	procEnumPrintersW    = winspool.NewProc("EnumPrintersW")
	procOpenPrinterW     = winspool.NewProc("OpenPrinterW")
	procClosePrinter     = winspool.NewProc("ClosePrinter")
	procStartDocPrinterW = winspool.NewProc("StartDocPrinterW")
	procEndDocPrinter    = winspool.NewProc("EndDocPrinter")
	procStartPagePrinter = winspool.NewProc("StartPagePrinter")
	procEndPagePrinter   = winspool.NewProc("EndPagePrinter")
	procWritePrinter     = winspool.NewProc("WritePrinter")
)

const (
	printerEnumLocal       = 0x00000002
	printerEnumConnections = 0x00000004
)

// printerInfo2 mirrors PRINTER_INFO_2.
type printerInfo2 struct {
	pServerName         *uint16
	pPrinterName        *uint16
	pShareName          *uint16
	pPortName           *uint16
	pDriverName         *uint16
	pComment            *uint16
	pLocation           *uint16
	pDevMode            uintptr
	pSepFile            *uint16
	pPrintProcessor     *uint16
	pDatatype           *uint16
	pParameters         *uint16
	pSecurityDescriptor uintptr
	attributes          uint32
	priority            uint32
	defaultPriority     uint32
	startTime           uint32
	untilTime           uint32
	status              uint32
	cJobs               uint32
	averagePPM          uint32
}

// docInfo1 mirrors DOC_INFO_1.
type docInfo1 struct {
	pDocName    *uint16
	pOutputFile *uint16
	pDatatype   *uint16
}

// Enum lists the locally installed printer queues.
func Enum() ([]PrinterInfo, error) {
	flags := uintptr(printerEnumLocal | printerEnumConnections)

	var needed, returned uint32
	// First call sizes the buffer; it fails with ERROR_INSUFFICIENT_BUFFER.
	procEnumPrintersW.Call(flags, 0, 2, 0, 0,
		uintptr(unsafe.Pointer(&needed)), uintptr(unsafe.Pointer(&returned)))
	if needed == 0 {
		return nil, nil
	}

	buf := make([]byte, needed)
	r, _, err := procEnumPrintersW.Call(flags, 0, 2,
		uintptr(unsafe.Pointer(&buf[0])), uintptr(needed),
		uintptr(unsafe.Pointer(&needed)), uintptr(unsafe.Pointer(&returned)))
	if r == 0 {
		return nil, fmt.Errorf("spooler: EnumPrinters: %w", err)
	}

	infos := unsafe.Slice((*printerInfo2)(unsafe.Pointer(&buf[0])), returned)
	out := make([]PrinterInfo, 0, returned)
	for _, info := range infos {
		out = append(out, PrinterInfo{
			Name:   windows.UTF16PtrToString(info.pPrinterName),
			Port:   windows.UTF16PtrToString(info.pPortName),
			Driver: windows.UTF16PtrToString(info.pDriverName),
		})
	}
	return out, nil
}

// Printer is an open handle to one printer queue.
type Printer struct {
	handle windows.Handle
}

// Open opens the named printer queue.
func Open(name string) (*Printer, error) {
	namep, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}

	var handle windows.Handle
	r, _, callErr := procOpenPrinterW.Call(
		uintptr(unsafe.Pointer(namep)),
		uintptr(unsafe.Pointer(&handle)), 0)
	if r == 0 {
		return nil, fmt.Errorf("spooler: OpenPrinter %q: %w", name, callErr)
	}
	return &Printer{handle: handle}, nil
}

// StartDoc begins a RAW document. The bytes written afterwards go to the
// device untouched by the driver.
func (p *Printer) StartDoc(docName string) error {
	docp, err := windows.UTF16PtrFromString(docName)
	if err != nil {
		return err
	}
	rawp, err := windows.UTF16PtrFromString("RAW")
	if err != nil {
		return err
	}

	doc := docInfo1{pDocName: docp, pDatatype: rawp}
	r, _, callErr := procStartDocPrinterW.Call(
		uintptr(p.handle), 1, uintptr(unsafe.Pointer(&doc)))
	if r == 0 {
		return fmt.Errorf("spooler: StartDocPrinter: %w", callErr)
	}

	r, _, callErr = procStartPagePrinter.Call(uintptr(p.handle))
	if r == 0 {
		procEndDocPrinter.Call(uintptr(p.handle))
		return fmt.Errorf("spooler: StartPagePrinter: %w", callErr)
	}
	return nil
}

// Write sends bytes into the current document.
func (p *Printer) Write(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	var written uint32
	r, _, callErr := procWritePrinter.Call(
		uintptr(p.handle),
		uintptr(unsafe.Pointer(&data[0])),
		uintptr(len(data)),
		uintptr(unsafe.Pointer(&written)))
	if r == 0 {
		return int(written), fmt.Errorf("spooler: WritePrinter: %w", callErr)
	}
	return int(written), nil
}

// EndDoc finishes the current document and releases it to the queue.
func (p *Printer) EndDoc() error {
	r, _, callErr := procEndPagePrinter.Call(uintptr(p.handle))
	if r == 0 {
		return fmt.Errorf("spooler: EndPagePrinter: %w", callErr)
	}
	r, _, callErr = procEndDocPrinter.Call(uintptr(p.handle))
	if r == 0 {
		return fmt.Errorf("spooler: EndDocPrinter: %w", callErr)
	}
	return nil
}

// Close releases the printer handle.
func (p *Printer) Close() error {
	r, _, callErr := procClosePrinter.Call(uintptr(p.handle))
	if r == 0 {
		return fmt.Errorf("spooler: ClosePrinter: %w", callErr)
	}
	return nil
}
