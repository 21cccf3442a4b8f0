// Package errs defines the sentinel errors shared across ashhost's
// packages, plus the table-driven description helper spec.md §7 asks
// for (mirroring the EzspStatus return codes of ash-host.h, which every
// operation in the original returns instead of a Go error).
package errs

import "errors"

// Per-call conditions. These are not fatal; the caller is expected to
// retry or is simply told "not yet".
var (
	ErrNotConnected  = errors.New("ash: not connected")
	ErrNoTxSpace     = errors.New("ash: no transmit space")
	ErrNoRxData      = errors.New("ash: no receive data")
	ErrNoRxSpace     = errors.New("ash: no receive space")
	ErrInProgress    = errors.New("ash: frame reception in progress")
	ErrFrameTooShort = errors.New("ash: data frame too short")
	ErrFrameTooLong  = errors.New("ash: data frame too long")
)

// Fatal conditions. Once latched, the connection stays in StateFailed
// until ResetPeer is called again (spec.md §4.2).
var (
	ErrHostFatal = errors.New("ash: host fatal error")
	ErrNcpFatal  = errors.New("ash: ncp fatal error")
)

// Session-fatal, local conditions (spec.md §7): the command itself, or
// the host's own queueing, made progress impossible without a reset.
var (
	ErrCommandTooLong = errors.New("ash: command exceeds max data field length")
	ErrQueueFull      = errors.New("ash: retransmit queue full")
)

// HostFatalError wraps ErrHostFatal with the specific condition that
// tripped it (e.g. "serial write failed", "ack timeout limit reached").
type HostFatalError struct {
	Reason string
}

func (e *HostFatalError) Error() string {
	return "ash: host fatal error: " + e.Reason
}

func (e *HostFatalError) Unwrap() error { return ErrHostFatal }

// NcpFatalError wraps ErrNcpFatal with the reset reason the NCP itself
// reported in its RSTACK frame, or the local condition that made the
// link declare the NCP unreachable.
type NcpFatalError struct {
	Reason string
}

func (e *NcpFatalError) Error() string {
	return "ash: ncp fatal error: " + e.Reason
}

func (e *NcpFatalError) Unwrap() error { return ErrNcpFatal }

// descriptions mirrors the informal string table a UI layer would use
// to render one of the sentinels above for a human (trace output,
// CLI diagnostics); see SPEC_FULL.md "Error Handling Design".
var descriptions = map[error]string{
	ErrNotConnected:   "not connected",
	ErrNoTxSpace:      "no transmit space",
	ErrNoRxData:       "no receive data",
	ErrNoRxSpace:      "no receive space",
	ErrInProgress:     "frame reception in progress",
	ErrFrameTooShort:  "data frame too short",
	ErrFrameTooLong:   "data frame too long",
	ErrHostFatal:      "host fatal error",
	ErrNcpFatal:       "ncp fatal error",
	ErrCommandTooLong: "command exceeds max data field length",
	ErrQueueFull:      "retransmit queue full",
}

// Describe returns a short human-readable description of err, walking
// Unwrap until a known sentinel is found. Unknown errors describe as
// their own Error() string.
func Describe(err error) string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if d, ok := descriptions[e]; ok {
			return d
		}
	}
	return err.Error()
}
