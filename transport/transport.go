// Package transport bridges the upper command/response protocol to
// the link engine: it serializes one outstanding command at a time,
// demultiplexes spontaneous peer-initiated frames ("callbacks") from
// the direct response, and enforces the "no callback between a
// command and its response" invariant the upper layer expects
// (spec.md §4.4). Modeled on amken3d-gopper/protocol/transport_host.go's
// HostTransport.SendCommandWithTimeout/processMessages shape, generalized
// from Klipper's ACK-then-response split to ASH's single response-or-
// callback receive-queue stream.
package transport

import (
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"ashhost/errs"
	"ashhost/link"
)

// Sentinels for the adapter's own call discipline (spec.md §4.4).
var (
	ErrCommandInFlight = errors.New("transport: command already in flight")
	ErrNoResponse      = errors.New("transport: no response before timeout")
)

// FramingReason identifies which upper-framing check failed (spec.md
// §7 "Upper-framing" group: WrongDirection/Truncated/Overflow/
// InvalidFrameID). Grounded on ezsp.c's responseFrameControl checks
// (EZSP_FRAME_CONTROL_DIRECTION_MASK/_TRUNCATED_MASK/_OVERFLOW_MASK
// and the frame-ID echoed in the command's second byte); the header
// defining those masks' exact bit numbers wasn't present in the
// retrieved Ember sources, so frameControl* below is this package's
// own documented convention rather than a literal port.
type FramingReason int

const (
	FramingWrongDirection FramingReason = iota
	FramingTruncated
	FramingOverflow
	FramingInvalidFrameID
)

func (r FramingReason) String() string {
	switch r {
	case FramingWrongDirection:
		return "wrong direction"
	case FramingTruncated:
		return "truncated"
	case FramingOverflow:
		return "overflow"
	case FramingInvalidFrameID:
		return "invalid frame id"
	default:
		return "unknown framing reason"
	}
}

// FramingError reports a bad upper-protocol framing byte on an
// otherwise well-formed link payload. Per spec.md §7, these never
// tear down the link; SendCommand returns the payload alongside the
// error and clears awaitingResponse so the next command may proceed.
type FramingError struct {
	Reason FramingReason
}

func (e *FramingError) Error() string { return "transport: framing error: " + e.Reason.String() }

const (
	frameControlDirectionBit = 0x80 // set on a response/callback from the NCP
	frameControlTruncatedBit = 0x02
	frameControlOverflowBit  = 0x04
)

// DefaultValidator checks the direction/truncated/overflow bits of a
// response's frame-control byte (payload[0]). It does not check frame
// ID; pair it with a FrameIDTracker (see WithFrameIDTracking) for that.
func DefaultValidator(payload []byte) error {
	if len(payload) == 0 {
		return &FramingError{Reason: FramingTruncated}
	}
	control := payload[0]
	if control&frameControlDirectionBit == 0 {
		return &FramingError{Reason: FramingWrongDirection}
	}
	if control&frameControlTruncatedBit != 0 {
		return &FramingError{Reason: FramingTruncated}
	}
	if control&frameControlOverflowBit != 0 {
		return &FramingError{Reason: FramingOverflow}
	}
	return nil
}

// FrameIDTracker pairs an outgoing command's frame ID (stamped into
// cmd[1], mirroring EZSP's convention) with the ID it expects echoed
// back in the response's own second byte.
type FrameIDTracker struct {
	next uint8
	want uint8
}

// assign picks and remembers the frame ID for the command about to be
// sent, wrapping at 256 commands.
func (f *FrameIDTracker) assign() uint8 {
	f.want = f.next
	f.next++
	return f.want
}

// Validate reports FramingInvalidFrameID if payload doesn't echo the
// frame ID most recently handed out by assign.
func (f *FrameIDTracker) Validate(payload []byte) error {
	if len(payload) < 2 {
		return &FramingError{Reason: FramingTruncated}
	}
	if payload[1] != f.want {
		return &FramingError{Reason: FramingInvalidFrameID}
	}
	return nil
}

// CallbackClassifier reports whether a received payload is a
// spontaneous peer-initiated callback rather than the direct response
// to an outstanding command. The upper-protocol framing byte that
// makes this decision is out of this package's scope (spec.md §1); the
// caller supplies the classifier grounded in its own command set.
type CallbackClassifier func(payload []byte) bool

// ResponseValidator checks a response payload's upper-framing and
// returns a *FramingError (or nil). A nil validator accepts every
// response unconditionally; DefaultValidator and FrameIDTracker.Validate
// are ready-made implementations.
type ResponseValidator func(payload []byte) error

// CallbackHandler receives a deferred callback payload, dispatched in
// arrival order once the in-flight command's response clears
// awaitingResponse (spec.md §8 property 8).
type CallbackHandler func(payload []byte)

// Adapter wraps a *link.Connection with the one-in-flight-command
// discipline of spec.md §4.4.
type Adapter struct {
	conn *link.Connection

	isCallback CallbackClassifier
	validate   ResponseValidator
	frameIDs   *FrameIDTracker
	onCallback CallbackHandler

	awaitingResponse bool
	sleepRequested   bool
	awake            bool

	maxTimeouts      int
	pollInterval     time.Duration
	droppedCallbacks uint64

	log *log.Logger
}

// Option customizes an Adapter at construction time.
type Option func(*Adapter)

// WithValidator installs a ResponseValidator.
func WithValidator(v ResponseValidator) Option {
	return func(a *Adapter) { a.validate = v }
}

// WithPollInterval overrides the spin interval used while waiting for
// a response (default 1ms; tests may want it smaller or larger).
func WithPollInterval(d time.Duration) Option {
	return func(a *Adapter) { a.pollInterval = d }
}

// WithMaxTimeouts overrides the response-timeout multiple applied to
// the connection's current adaptive ack period (default matches
// link.Config.MaxTimeouts convention: 6, per ASH_MAX_TIMEOUTS).
func WithMaxTimeouts(n int) Option {
	return func(a *Adapter) { a.maxTimeouts = n }
}

// WithLogger attaches a structured logger for dropped callbacks and
// command timeouts.
func WithLogger(logger *log.Logger) Option {
	return func(a *Adapter) { a.log = logger }
}

// WithFrameIDTracking stamps every outgoing command's second byte
// with an auto-incrementing frame ID and rejects a response that
// doesn't echo it back (FramingInvalidFrameID), per the EZSP-style
// convention ezsp.c's callers rely on. Commands shorter than 2 bytes
// are padded to make room for the stamp.
func WithFrameIDTracking() Option {
	return func(a *Adapter) { a.frameIDs = &FrameIDTracker{} }
}

// NewAdapter constructs an Adapter. isCallback classifies a received
// payload as a deferred callback; onCallback is invoked for each
// deferred callback once the in-flight command resolves.
func NewAdapter(conn *link.Connection, isCallback CallbackClassifier, onCallback CallbackHandler, opts ...Option) *Adapter {
	a := &Adapter{
		conn:         conn,
		isCallback:   isCallback,
		onCallback:   onCallback,
		awake:        true,
		maxTimeouts:  6,
		pollInterval: time.Millisecond,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RequestSleep records the caller's sleep request. The recorded value is
// not read anywhere: command frames are sent unchanged and the link's
// awake state is unaffected.
func (a *Adapter) RequestSleep(sleep bool) {
	a.sleepRequested = sleep
}

// Awake reports whether the link is currently believed awake. It starts
// true and SendCommand sets it true on every poll; nothing sets it false.
func (a *Adapter) Awake() bool { return a.awake }

// SendCommand sends cmd and blocks, in the cooperative sense described
// by spec.md §5, until the response arrives, the response timeout
// expires, or a fatal link error is reported. The timeout is not a
// parameter (matching spec.md §6's send_command(frame_bytes) -> Status):
// it is computed as maxTimeouts multiplied by the link's current
// adaptive ack period, per spec.md §5 "Response timeout". Calling
// SendCommand while a command is already in flight is a programming
// error.
func (a *Adapter) SendCommand(cmd []byte) ([]byte, error) {
	if a.awaitingResponse {
		return nil, ErrCommandInFlight
	}
	if a.frameIDs != nil {
		cmd = stampFrameID(cmd, a.frameIDs.assign())
	}
	if err := a.conn.Send(cmd); err != nil {
		switch {
		case errors.Is(err, errs.ErrFrameTooLong):
			return nil, errs.ErrCommandTooLong
		case errors.Is(err, errs.ErrNoTxSpace):
			return nil, errs.ErrQueueFull
		}
		return nil, err
	}
	a.awaitingResponse = true
	defer func() { a.awaitingResponse = false }()

	period := time.Duration(a.maxTimeouts) * a.conn.AckPeriod()
	deadline := time.Now().Add(period)
	for {
		if err := a.conn.SendExec(); err != nil {
			return nil, err
		}
		_ = a.conn.ReceiveExec()
		a.awake = true

		if a.conn.RxFreeCount() == 0 && a.conn.RxQueueLen() > 0 && a.isCallback != nil {
			if _, ok := a.conn.ReceiveMatching(a.isCallback); ok {
				a.droppedCallbacks++
				if a.log != nil {
					a.log.Warn("dropped queued callback to make room", "total_dropped", a.droppedCallbacks)
				}
			}
		}

		if payload, ok := a.conn.ReceiveMatching(a.isResponse); ok {
			if err := a.checkFraming(payload); err != nil {
				return payload, err
			}
			return payload, nil
		}

		if a.conn.State() == link.StateFailed {
			if a.conn.PeerError() != nil {
				return nil, a.conn.PeerError()
			}
			return nil, a.conn.LastError()
		}

		if time.Now().After(deadline) {
			if a.log != nil {
				a.log.Error("command timed out", "max_timeouts", a.maxTimeouts, "ack_period", a.conn.AckPeriod())
			}
			return nil, ErrNoResponse
		}
		time.Sleep(a.pollInterval)
	}
}

// checkFraming composes the frame-ID check (if tracking is enabled)
// with the caller-supplied validator; either may produce a *FramingError.
func (a *Adapter) checkFraming(payload []byte) error {
	if a.frameIDs != nil {
		if err := a.frameIDs.Validate(payload); err != nil {
			return err
		}
	}
	if a.validate != nil {
		return a.validate(payload)
	}
	return nil
}

// stampFrameID returns a copy of cmd with its second byte set to id,
// padding with zero bytes if cmd is shorter than 2 bytes.
func stampFrameID(cmd []byte, id uint8) []byte {
	out := make([]byte, len(cmd))
	copy(out, cmd)
	if len(out) < 2 {
		out = append(out, make([]byte, 2-len(out))...)
	}
	out[1] = id
	return out
}

func (a *Adapter) isResponse(payload []byte) bool {
	return a.isCallback == nil || !a.isCallback(payload)
}

// Tick drains any callbacks deferred while a command was in flight,
// dispatching them to onCallback in their original arrival order, and
// advances the link's own send/receive steps. While a command is in
// flight it only advances the link and dispatches no callbacks (spec.md
// §4.4 "Callback suppression").
func (a *Adapter) Tick() error {
	if err := a.conn.SendExec(); err != nil {
		return err
	}
	_ = a.conn.ReceiveExec()

	if a.awaitingResponse {
		return nil
	}
	for {
		payload, err := a.conn.Receive()
		if err != nil {
			return nil
		}
		if a.onCallback != nil {
			a.onCallback(payload)
		}
	}
}

// DroppedCallbacks reports how many deferred callbacks were discarded
// because the rx free list ran out while a command was in flight.
func (a *Adapter) DroppedCallbacks() uint64 { return a.droppedCallbacks }

// IsCallbackPending reports whether at least one frame is queued that
// will be dispatched as a callback on the next Tick (spec.md §6
// "is_callback_pending").
func (a *Adapter) IsCallbackPending() bool {
	return !a.awaitingResponse && a.conn.RxQueueLen() > 0
}
