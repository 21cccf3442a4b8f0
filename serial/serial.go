// Package serial provides the host's view of the physical link to the
// NCP: a small Port interface the link engine depends on
// structurally, plus configuration and a native implementation backed
// by github.com/tarm/serial. Grounded on amken3d-gopper/host/serial.
package serial

import "io"

// Port is what the link engine needs from a serial connection. It
// satisfies link.Port structurally (no import of package link here,
// to avoid a cycle): Read should return promptly with whatever bytes
// are currently available rather than blocking for a full buffer.
type Port interface {
	io.Reader
	io.Writer
	Flush() error
	Close() error
}

// FlowControl selects the line's flow-control discipline, mirroring
// the three ASH_HOST_CONFIG_* presets in ash-host.h.
type FlowControl int

const (
	FlowControlNone FlowControl = iota
	FlowControlRTSCTS
	FlowControlXonXoff
)

func (f FlowControl) String() string {
	switch f {
	case FlowControlRTSCTS:
		return "rtscts"
	case FlowControlXonXoff:
		return "xonxoff"
	default:
		return "none"
	}
}

// Config holds every serial-port parameter named in ash-host.h's
// AshHostConfig, minus the link-layer fields that live in package
// link's Config (window size, timers, pool sizes).
type Config struct {
	// Device is the OS device path (e.g. "/dev/ttyUSB0", "COM3").
	Device string

	// Baud is the line rate. The three named profiles use 115200
	// (RTS/CTS), 57600 (XON/XOFF), and 38400 (AVR bootloader XON/XOFF).
	Baud int

	// StopBits is 1 or 2.
	StopBits int

	// Flow selects the flow-control discipline. It records the profile's
	// discipline only: Open does not apply it to the port.
	Flow FlowControl

	// ReadTimeout bounds how long a single Read blocks for the first
	// byte; 0 is host/OS-default blocking behaviour.
	ReadTimeout int // milliseconds

	// InputBlockSize and OutputBlockSize are recorded with the profile
	// (defaulting to 256) but nothing reads them: link.ReceiveExec reads
	// at most 256 bytes per call and SendExec writes one frame at a time.
	InputBlockSize  int
	OutputBlockSize int

	// Randomize enables ASH payload randomization (mirrors
	// link.Config.Randomize; kept alongside the rest of the
	// per-profile serial parameters since ash-host.h groups them).
	Randomize bool
}

func (c *Config) normalize() {
	if c.StopBits == 0 {
		c.StopBits = 1
	}
	if c.InputBlockSize == 0 {
		c.InputBlockSize = 256
	}
	if c.OutputBlockSize == 0 {
		c.OutputBlockSize = 256
	}
}
