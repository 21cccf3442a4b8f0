// Package ashhost is the upward interface of spec.md §6: init, close,
// send a command and block for its response, drain deferred callbacks
// on tick. It wires together package serial (the physical port),
// package link (the ASH state machine), and package transport (the
// one-command-in-flight discipline), the way amken3d-gopper's
// host/gopper.go wires serial + protocol + transport for its own
// upward Client type.
package ashhost

import (
	"fmt"

	"github.com/charmbracelet/log"

	"ashhost/config"
	"ashhost/counters"
	"ashhost/link"
	"ashhost/serial"
	"ashhost/trace"
	"ashhost/transport"
)

// Host is the caller-facing handle: one serial link to one NCP.
type Host struct {
	profile config.Profile
	tracer  *trace.Tracer
	logger  *log.Logger

	port  *serial.NativePort
	conn  *link.Connection
	adapt *transport.Adapter
}

// Options customize Init beyond what a config.Profile carries.
type Options struct {
	// IsCallback classifies a received payload as a deferred callback
	// rather than a command's direct response. Required.
	IsCallback transport.CallbackClassifier

	// OnCallback is invoked, in arrival order, for every deferred
	// callback drained by Tick. Required.
	OnCallback transport.CallbackHandler

	// Validate optionally checks a response payload's framing
	// (direction/truncation/overflow bits); nil accepts anything.
	Validate transport.ResponseValidator

	// Logger receives link/transport/trace diagnostics. Defaults to
	// log.Default() if nil.
	Logger *log.Logger
}

// Init opens the serial port named by profile, performs the ASH
// handshake (making up to 3 reset attempts before giving up), and
// returns a ready Host. Mirrors spec.md §6's
// `init() -> Status`.
func Init(profile config.Profile, opts Options) (*Host, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	tracer := trace.New(profile.Trace, logger)

	port, err := serial.Open(profile.Serial)
	if err != nil {
		return nil, fmt.Errorf("ashhost: init: %w", err)
	}

	conn := link.New(profile.Link, port, link.WithLogger(logger))

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if lastErr = conn.Start(); lastErr == nil {
			break
		}
		tracer.Event("handshake attempt failed", "attempt", attempt, "err", lastErr)
	}
	if lastErr != nil {
		port.Close()
		return nil, fmt.Errorf("ashhost: init: handshake failed after retries: %w", lastErr)
	}

	adapt := transport.NewAdapter(conn, opts.IsCallback, opts.OnCallback,
		transport.WithValidator(opts.Validate),
		transport.WithMaxTimeouts(profile.Link.MaxTimeouts),
		transport.WithLogger(logger),
	)

	return &Host{profile: profile, tracer: tracer, logger: logger, port: port, conn: conn, adapt: adapt}, nil
}

// Close flushes and closes the serial port. The Host must not be used
// afterward; a fresh Init is required to reconnect (spec.md §6 `close()`).
func (h *Host) Close() error {
	if err := h.port.Flush(); err != nil {
		h.logger.Warn("flush on close failed", "err", err)
	}
	err := h.port.Close()
	h.conn.Close()
	return err
}

// IsCallbackPending reports whether the peer has a deferred
// notification queued for the next Tick (spec.md §6
// `is_callback_pending() -> bool`).
func (h *Host) IsCallbackPending() bool {
	return h.adapt.IsCallbackPending()
}

// SendCommand blocks (in the cooperative, caller-thread sense of
// spec.md §5) until cmd's response arrives or the response timeout
// elapses (spec.md §6 `send_command(frame_bytes) -> Status`); the
// timeout itself is a multiple of the link's current adaptive ack
// period (spec.md §5 "Response timeout"), not a caller-supplied value.
func (h *Host) SendCommand(cmd []byte) ([]byte, error) {
	h.tracer.Ezsp("send command", "len", len(cmd))
	resp, err := h.adapt.SendCommand(cmd)
	if err != nil {
		h.tracer.Event("command failed", "err", err)
		return nil, err
	}
	h.tracer.Ezsp("command response", "len", len(resp))
	return resp, nil
}

// Tick drains pending callbacks and advances the link's send/receive
// steps (spec.md §6 `tick()`). Call it on every pass of the caller's
// main loop, whether or not a command is outstanding.
func (h *Host) Tick() error {
	return h.adapt.Tick()
}

// RequestSleep records a sleep request on the transport adapter; the
// request does not change the command frames that are sent.
func (h *Host) RequestSleep(sleep bool) { h.adapt.RequestSleep(sleep) }

// Awake reports whether the link currently believes the NCP is awake.
func (h *Host) Awake() bool { return h.adapt.Awake() }

// State reports the link engine's current connection state.
func (h *Host) State() link.State { return h.conn.State() }

// Counters exposes the link's live counter store, e.g. for wiring a
// counters.PrometheusCollector.
func (h *Host) Counters() *counters.Store { return h.conn.Counters() }

// SetTraceFlags changes the trace bitmask at runtime.
func (h *Host) SetTraceFlags(f trace.Flags) { h.tracer.SetFlags(f) }
