package serial

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.bug.st/serial"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/constants"
)

// ErrNotOpen is returned by Send when no port is open.
var ErrNotOpen = errors.New("serial port not open")

// Port is the subset of serial.Port the transport uses.
type Port interface {
	io.ReadWriteCloser
	Drain() error
}

// Opener opens a port at 8N1 with the given baud rate.
type Opener func(path string, baud int) (Port, error)

// OpenPort opens a real serial device.
func OpenPort(path string, baud int) (Port, error) {
	p, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(constants.ReadTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return p, nil
}

// Status is reported whenever the link opens or closes.
type Status struct {
	Connected bool
	Path      string
	Baud      int
	Err       error
}

// Transport serialises every port mutation behind one mutex, including the
// scheduled reconnect, so a reopen never runs during a send.
type Transport struct {
	discovery      *Discovery
	open           Opener
	fallback       string
	reconnectDelay time.Duration
	writeWait      time.Duration
	onStatus       func(Status)

	lines    chan string
	wg       sync.WaitGroup
	draining atomic.Bool

	mu          sync.Mutex
	port        Port
	path        string
	baud        int
	reconnect   *time.Timer
	lastAttempt time.Time
	closed      bool
}

// Option configures a Transport.
type Option func(*Transport)

// WithOpener replaces the device opener.
func WithOpener(open Opener) Option {
	return func(t *Transport) { t.open = open }
}

// WithStatus registers a callback for link changes. It runs with the transport
// lock held and must not call back into the transport.
func WithStatus(fn func(Status)) Option {
	return func(t *Transport) { t.onStatus = fn }
}

// NewTransport creates a closed transport.
func NewTransport(cfg *config.SerialConfig, discovery *Discovery, opts ...Option) *Transport {
	t := &Transport{
		discovery:      discovery,
		open:           OpenPort,
		fallback:       cfg.FallbackPort,
		reconnectDelay: cfg.ReconnectDelay,
		writeWait:      cfg.WriteWait,
		baud:           cfg.Baud,
		lines:          make(chan string, constants.LineQueueBuffer),
	}
	if t.reconnectDelay <= 0 {
		t.reconnectDelay = constants.ReconnectDelay
	}
	if t.writeWait <= 0 {
		t.writeWait = constants.WriteWait
	}
	if t.baud <= 0 {
		t.baud = constants.DefaultBaudRate
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Lines returns the inbound line queue, trimmed and without empty lines.
// It is closed by Close.
func (t *Transport) Lines() <-chan string {
	return t.lines
}

// Connected reports whether a port is open and the path in use.
func (t *Transport) Connected() (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil, t.path
}

// Open opens preferred if it exists, otherwise runs discovery, otherwise tries the
// fallback path. Any open port is closed first.
func (t *Transport) Open(preferred string, baud int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrNotOpen
	}
	if baud > 0 {
		t.baud = baud
	}
	t.stopReconnectLocked()
	t.closeLocked(nil)

	var paths []string
	if preferred != "" && t.discovery.Exists != nil && t.discovery.Exists(preferred) {
		paths = append(paths, preferred)
	}
	if found, err := t.discovery.Find(); err == nil && !slices.Contains(paths, found) {
		paths = append(paths, found)
	} else if err != nil {
		slog.Debug("serial: discovery found nothing", "error", err)
	}
	if t.fallback != "" && !slices.Contains(paths, t.fallback) && t.discovery.Exists != nil && t.discovery.Exists(t.fallback) {
		paths = append(paths, t.fallback)
	}
	if len(paths) == 0 {
		return fmt.Errorf("%w: preferred %q missing and discovery found no match", ErrNoPort, preferred)
	}

	var errs []error
	for _, path := range paths {
		err := t.openLocked(path)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Send writes line terminated by a newline and waits briefly for it to drain.
// If no port is open, one rate-limited open attempt is made first. Failed writes are not retried.
func (t *Transport) Send(line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil && !t.closed && time.Since(t.lastAttempt) >= t.reconnectDelay {
		t.lastAttempt = time.Now()
		if path, err := t.discovery.Find(); err == nil {
			if err := t.openLocked(path); err != nil {
				slog.Debug("serial: open on send failed", "path", path, "error", err)
			}
		}
	}
	if t.port == nil {
		return ErrNotOpen
	}

	if _, err := t.port.Write([]byte(strings.TrimRight(line, "\r\n") + "\n")); err != nil {
		if isFault(err) {
			t.faultLocked(err)
		}
		return fmt.Errorf("write %q: %w", line, err)
	}
	t.drainLocked()
	return nil
}

// Close closes the port, cancels a pending reconnect and closes the line queue.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.stopReconnectLocked()
	t.closeLocked(nil)
	t.mu.Unlock()

	t.wg.Wait()
	close(t.lines)
	return nil
}

func (t *Transport) openLocked(path string) error {
	t.lastAttempt = time.Now()
	p, err := t.open(path, t.baud)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	t.port, t.path = p, path
	slog.Info("serial: connected", "path", path, "baud", t.baud)
	t.report(Status{Connected: true, Path: path, Baud: t.baud})

	t.wg.Add(1)
	go t.readLoop(p)
	return nil
}

func (t *Transport) closeLocked(cause error) {
	if t.port == nil {
		return
	}
	p, path := t.port, t.path
	t.port = nil
	if err := p.Close(); err != nil {
		slog.Debug("serial: close failed", "path", path, "error", err)
	}
	t.report(Status{Path: path, Baud: t.baud, Err: cause})
}

// faultLocked closes the port and schedules exactly one reopen via full discovery.
func (t *Transport) faultLocked(err error) {
	slog.Warn("serial: port fault, reconnecting", "path", t.path, "error", err, "delay", t.reconnectDelay)
	t.closeLocked(err)
	if t.closed || t.reconnect != nil {
		return
	}
	t.reconnect = time.AfterFunc(t.reconnectDelay, t.reopen)
}

func (t *Transport) reopen() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.reconnect = nil
	if t.closed || t.port != nil {
		return
	}
	path, err := t.discovery.Find()
	if err != nil {
		slog.Warn("serial: reconnect failed", "error", err)
		t.report(Status{Baud: t.baud, Err: err})
		return
	}
	if err := t.openLocked(path); err != nil {
		slog.Warn("serial: reconnect failed", "error", err)
		t.report(Status{Path: path, Baud: t.baud, Err: err})
	}
}

func (t *Transport) stopReconnectLocked() {
	if t.reconnect != nil {
		t.reconnect.Stop()
		t.reconnect = nil
	}
}

// drainLocked waits up to writeWait for the OS to flush. A drain still blocked from an
// earlier send is not duplicated.
func (t *Transport) drainLocked() {
	if !t.draining.CompareAndSwap(false, true) {
		return
	}
	done := make(chan error, 1)
	p := t.port
	go func() {
		err := p.Drain()
		t.draining.Store(false)
		done <- err
	}()

	timer := time.NewTimer(t.writeWait)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			slog.Debug("serial: drain failed", "error", err)
		}
	case <-timer.C:
	}
}

func (t *Transport) report(s Status) {
	if t.onStatus != nil {
		t.onStatus(s)
	}
}

// readLoop frames bytes from p into lines until p fails or is replaced.
func (t *Transport) readLoop(p Port) {
	defer t.wg.Done()

	buf := make([]byte, 256)
	var pending []byte
	for {
		n, err := p.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				t.deliver(string(pending[:i]))
				pending = pending[i+1:]
			}
		}
		if err == nil {
			continue
		}

		t.mu.Lock()
		current := t.port == p
		if current && isFault(err) {
			t.faultLocked(err)
			current = false
		}
		t.mu.Unlock()
		if !current {
			return
		}
		slog.Debug("serial: read error", "error", err)
		time.Sleep(constants.ReadTimeout)
	}
}

func (t *Transport) deliver(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	select {
	case t.lines <- line:
	default:
		slog.Warn("serial: line queue full, dropping line", "line", line)
	}
}

// portError matches *serial.PortError and anything else carrying a port error code.
type portError interface {
	error
	Code() serial.PortErrorCode
}

// isFault reports resource and permission class errors: the device went away or access was lost.
// Port errors with other codes fall through to the OS error checks on their cause.
func isFault(err error) bool {
	var pe portError
	if errors.As(err, &pe) {
		switch pe.Code() {
		case serial.PortBusy, serial.PortNotFound, serial.PermissionDenied:
			return true
		}
		if c, ok := pe.(interface{ Cause() error }); ok && c.Cause() != nil {
			err = c.Cause()
		}
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.EIO) ||
		errors.Is(err, syscall.ENXIO) ||
		errors.Is(err, syscall.ENODEV) ||
		errors.Is(err, syscall.EACCES) ||
		errors.Is(err, syscall.EPERM)
}
