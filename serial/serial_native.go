package serial

import (
	"fmt"
	"time"

	"github.com/tarm/serial"
)

// NativePort wraps github.com/tarm/serial for real hardware links.
type NativePort struct {
	port *serial.Port
	cfg  Config
}

// Open opens a native serial port per cfg.
func Open(cfg Config) (*NativePort, error) {
	cfg.normalize()

	parity := serial.ParityNone
	stopBits := serial.Stop1
	if cfg.StopBits == 2 {
		stopBits = serial.Stop2
	}

	scfg := &serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		Parity:      parity,
		StopBits:    stopBits,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	}

	port, err := serial.OpenPort(scfg)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", cfg.Device, err)
	}

	return &NativePort{port: port, cfg: cfg}, nil
}

func (p *NativePort) Read(b []byte) (int, error)  { return p.port.Read(b) }
func (p *NativePort) Write(b []byte) (int, error) { return p.port.Write(b) }
func (p *NativePort) Close() error                { return p.port.Close() }

// Flush is a no-op: tarm/serial's Write is synchronous and doesn't
// buffer beyond the kernel's own tty driver, matching serial_native.go's
// rationale in the teacher repo.
func (p *NativePort) Flush() error { return nil }

var _ Port = (*NativePort)(nil)
