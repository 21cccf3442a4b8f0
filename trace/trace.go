// Package trace maps the bitmask trace flags from ash-host.h onto
// structured logging via github.com/charmbracelet/log, so a running
// host can enable frame/event/command tracing without recompiling.
package trace

import "github.com/charmbracelet/log"

// Flags is the traceFlags bitmask from AshHostConfig.
type Flags uint8

const (
	FramesBasic   Flags = 1 << iota // frames sent and received
	FramesVerbose                   // basic frames + internal variables
	Events                          // link-state transitions
	Ezsp                            // upper-layer commands, responses, callbacks
	EzspVerbose                     // additional upper-layer detail
)

// Has reports whether every bit in want is set in f.
func (f Flags) Has(want Flags) bool { return f&want == want }

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	s := ""
	add := func(bit Flags, name string) {
		if f.Has(bit) {
			if s != "" {
				s += "|"
			}
			s += name
		}
	}
	add(FramesBasic, "frames")
	add(FramesVerbose, "frames-verbose")
	add(Events, "events")
	add(Ezsp, "ezsp")
	add(EzspVerbose, "ezsp-verbose")
	return s
}

// Tracer gates structured log calls behind the enabled Flags, so
// callers can write e.g. t.Frames("tx data", "frm", frm) unconditionally
// and pay only a branch when the corresponding trace bit is off.
type Tracer struct {
	flags  Flags
	logger *log.Logger
}

// New builds a Tracer. A nil logger falls back to log.Default().
func New(flags Flags, logger *log.Logger) *Tracer {
	if logger == nil {
		logger = log.Default()
	}
	return &Tracer{flags: flags, logger: logger}
}

// Flags reports the currently enabled bitmask.
func (t *Tracer) Flags() Flags { return t.flags }

// SetFlags replaces the enabled bitmask at runtime.
func (t *Tracer) SetFlags(f Flags) { t.flags = f }

// Frames logs a basic frame-level event if FramesBasic is enabled.
func (t *Tracer) Frames(msg string, kv ...interface{}) {
	if t.flags.Has(FramesBasic) {
		t.logger.Debug(msg, kv...)
	}
}

// FramesVerbose logs internal link-engine state if FramesVerbose is enabled.
func (t *Tracer) FramesVerbose(msg string, kv ...interface{}) {
	if t.flags.Has(FramesVerbose) {
		t.logger.Debug(msg, kv...)
	}
}

// Event logs a link-state transition if Events is enabled.
func (t *Tracer) Event(msg string, kv ...interface{}) {
	if t.flags.Has(Events) {
		t.logger.Info(msg, kv...)
	}
}

// Ezsp logs an upper-layer command/response/callback if Ezsp is enabled.
func (t *Tracer) Ezsp(msg string, kv ...interface{}) {
	if t.flags.Has(Ezsp) {
		t.logger.Debug(msg, kv...)
	}
}

// EzspVerbose logs additional upper-layer detail if EzspVerbose is enabled.
func (t *Tracer) EzspVerbose(msg string, kv ...interface{}) {
	if t.flags.Has(EzspVerbose) {
		t.logger.Debug(msg, kv...)
	}
}
