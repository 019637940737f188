// Package uart implements a POSIX serial transport over
// go.bug.st/serial: 8N1, raw mode, a background read loop that fans
// received bytes out to subscribers. Grounded on the original
// UartLinux interface (open by device path or by USB VID/PID) and on
// the go.bug.st/serial usage pattern in the wider example pack's ECU
// link driver.
package uart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/danmuck/wireframe/internal/protocol"
	"github.com/danmuck/wireframe/internal/transport"
)

// SupportedBaudRates lists the baud rates the original UartLinux
// driver configures; Config.BaudRate is not restricted to this list,
// but values outside it are non-standard for the reference hardware
// this library targets.
var SupportedBaudRates = []int{9600, 19200, 38400, 57600, 115200}

// Config describes how to open a serial port, either by device path
// or by enumerating attached USB devices for a VID/PID match.
type Config struct {
	DevicePath string
	VID, PID   string
	BaudRate   int
	ReadBuffer int // per-read chunk size; defaults to 1000 bytes, matching the original's fixed buffer
}

// Transport is a serial-port-backed transport.Transport.
type Transport struct {
	transport.Broadcaster

	cfg  Config
	port serial.Port

	mu     sync.Mutex
	open   bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns an unopened UART transport for cfg.
func New(cfg Config) *Transport {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.ReadBuffer == 0 {
		cfg.ReadBuffer = 1000
	}
	return &Transport{cfg: cfg}
}

func (t *Transport) resolvePath() (string, error) {
	if t.cfg.DevicePath != "" {
		return t.cfg.DevicePath, nil
	}
	if t.cfg.VID == "" || t.cfg.PID == "" {
		return "", fmt.Errorf("uart: neither device path nor VID/PID configured")
	}
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("uart: enumerate ports: %w", err)
	}
	for _, p := range ports {
		if p.IsUSB && p.VID == t.cfg.VID && p.PID == t.cfg.PID {
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("uart: no port found for VID=%s PID=%s", t.cfg.VID, t.cfg.PID)
}

func (t *Transport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.open {
		return nil
	}
	path, err := t.resolvePath()
	if err != nil {
		return err
	}
	mode := &serial.Mode{
		BaudRate: t.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", protocol.ErrTransportFailure, path, err)
	}
	if err := port.SetReadTimeout(200 * time.Millisecond); err != nil {
		port.Close()
		return fmt.Errorf("%w: set read timeout: %v", protocol.ErrTransportFailure, err)
	}
	t.port = port
	t.open = true

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.wg.Add(1)
	go t.readLoop(ctx)
	return nil
}

func (t *Transport) readLoop(ctx context.Context) {
	defer t.wg.Done()
	buf := make([]byte, t.cfg.ReadBuffer)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := t.port.Read(buf)
		if err != nil {
			return
		}
		if n > 0 {
			t.Deliver(append([]byte(nil), buf[:n]...))
		}
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	port := t.port
	cancel := t.cancel
	t.open = false
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if port != nil {
		err = port.Close()
	}
	t.wg.Wait()
	return err
}

func (t *Transport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *Transport) Write(ctx context.Context, data []byte) (bool, error) {
	t.mu.Lock()
	port := t.port
	open := t.open
	t.mu.Unlock()
	if !open || port == nil {
		return false, protocol.ErrNoTransport
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	n, err := port.Write(data)
	if err != nil {
		return false, fmt.Errorf("%w: %v", protocol.ErrTransportFailure, err)
	}
	return n == len(data), nil
}

func (t *Transport) SubscribeOnReceived(cb transport.ReceiveFunc) *transport.Subscription {
	return t.Subscribe(cb)
}
