package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/helixpos/periph-core/internal/retry"
)

// enq is the keep-alive probe byte. Scanners and scales ignore it, but a
// failed write surfaces a dead link between real reads.
const enq = 0x05

// readChunk is the per-read buffer size; scan and weight lines are short.
const readChunk = 256

var (
	ErrAdapterOpen   = errors.New("transport: adapter already open")
	ErrAdapterClosed = errors.New("transport: adapter closed")
)

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// LineAdapter is the read-side transport contract: open the link, push
// every received line to OnLine, push link failures to OnError.
type LineAdapter interface {
	Open(ctx context.Context) error
	Close() error
	OnLine(fn func(line string))
	OnError(fn func(err error))
}

// serialPort is the slice of serial.Port the adapter needs. Tests inject
// fakes through it.
type serialPort interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// openPort opens a real serial port with line-discipline defaults.
func openPort(path string, baud int) (serialPort, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	return serial.Open(path, mode)
}

// SerialConfig configures one serial line adapter.
type SerialConfig struct {
	// Path is the serial device path.
	Path string

	// Baud is the line speed.
	Baud int

	// Heartbeat is the ENQ probe interval. Zero disables probing.
	Heartbeat time.Duration

	// Retry shapes the open retry schedule.
	Retry retry.Options
}

// SerialLine is the serial LineAdapter. Opening retries with backoff;
// once open, a reader goroutine splits the byte stream into lines and a
// heartbeat goroutine probes the link. All methods are safe for
// concurrent use.
type SerialLine struct {
	cfg    SerialConfig
	logger Logger

	// open is swappable for tests.
	open func(path string, baud int) (serialPort, error)

	mu      sync.Mutex
	port    serialPort
	cancel  context.CancelFunc
	done    chan struct{}
	onLine  func(line string)
	onError func(err error)
}

// NewSerialLine creates a closed serial line adapter.
func NewSerialLine(cfg SerialConfig) *SerialLine {
	return &SerialLine{cfg: cfg, logger: noopLogger{}, open: openPort}
}

// SetLogger sets the logger for the adapter.
func (s *SerialLine) SetLogger(logger Logger) {
	s.logger = logger
}

// OnLine registers the line callback. Must be set before Open.
func (s *SerialLine) OnLine(fn func(line string)) {
	s.mu.Lock()
	s.onLine = fn
	s.mu.Unlock()
}

// OnError registers the link-failure callback. Must be set before Open.
func (s *SerialLine) OnError(fn func(err error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// Open connects the port, retrying with backoff, and starts the reader
// and heartbeat goroutines. Opening an open adapter is an error.
func (s *SerialLine) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		return ErrAdapterOpen
	}

	var port serialPort
	err := retry.Do(ctx, func() error {
		var openErr error
		port, openErr = s.open(s.cfg.Path, s.cfg.Baud)
		if openErr != nil {
			s.logger.Debug("serial open attempt failed", "path", s.cfg.Path, "error", openErr)
		}
		return openErr
	}, s.cfg.Retry)
	if err != nil {
		return fmt.Errorf("transport: opening %s: %w", s.cfg.Path, err)
	}

	// Short read timeout keeps the reader loop responsive to Close.
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return fmt.Errorf("transport: configuring %s: %w", s.cfg.Path, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.port = port
	s.cancel = cancel
	s.done = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go s.readLoop(runCtx, port, &wg)
	if s.cfg.Heartbeat > 0 {
		wg.Add(1)
		go s.heartbeatLoop(runCtx, port, &wg)
	}
	done := s.done
	go func() {
		wg.Wait()
		close(done)
	}()

	s.logger.Debug("serial adapter open", "path", s.cfg.Path, "baud", s.cfg.Baud)
	return nil
}

// Close stops the heartbeat and reader and releases the port. Closing a
// closed adapter is a no-op.
func (s *SerialLine) Close() error {
	s.mu.Lock()
	port, cancel, done := s.port, s.cancel, s.done
	s.port = nil
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if port == nil {
		return nil
	}

	cancel()
	err := port.Close()
	<-done
	return err
}

func (s *SerialLine) readLoop(ctx context.Context, port serialPort, wg *sync.WaitGroup) {
	defer wg.Done()

	buf := make([]byte, readChunk)
	var pending []byte

	for {
		if ctx.Err() != nil {
			return
		}

		n, err := port.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			pending = s.flushLines(pending)
		}
		if err != nil {
			if ctx.Err() == nil {
				s.emitError(fmt.Errorf("transport: reading %s: %w", s.cfg.Path, err))
			}
			return
		}
	}
}

// flushLines emits every complete line in pending and returns the
// unterminated remainder. Lines are trimmed of CR/LF and surrounding
// whitespace; blank lines are dropped.
func (s *SerialLine) flushLines(pending []byte) []byte {
	for {
		idx := bytes.IndexByte(pending, '\n')
		if idx < 0 {
			return pending
		}
		line := string(bytes.TrimSpace(pending[:idx]))
		pending = pending[idx+1:]
		if line == "" {
			continue
		}
		s.emitLine(line)
	}
}

func (s *SerialLine) heartbeatLoop(ctx context.Context, port serialPort, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(s.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := port.Write([]byte{enq}); err != nil {
			if ctx.Err() == nil {
				s.emitError(fmt.Errorf("transport: heartbeat on %s: %w", s.cfg.Path, err))
			}
			return
		}
	}
}

func (s *SerialLine) emitLine(line string) {
	s.mu.Lock()
	fn := s.onLine
	s.mu.Unlock()
	if fn != nil {
		fn(line)
	}
}

func (s *SerialLine) emitError(err error) {
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
