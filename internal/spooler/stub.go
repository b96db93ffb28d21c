//go:build !windows

package spooler

// Enum lists installed printer queues. There is no spooler to talk to on
// this platform, so the list is always empty.
func Enum() ([]PrinterInfo, error) {
	return nil, nil
}

// Printer is an open handle to one printer queue.
type Printer struct{}

// Open opens the named printer queue.
func Open(string) (*Printer, error) {
	return nil, ErrUnsupported
}

func (p *Printer) StartDoc(string) error      { return ErrUnsupported }
func (p *Printer) Write([]byte) (int, error)  { return 0, ErrUnsupported }
func (p *Printer) EndDoc() error              { return ErrUnsupported }
func (p *Printer) Close() error               { return ErrUnsupported }
