// Package link implements the ASH connection-oriented state machine:
// handshake, the sliding-window ACK/NAK protocol, remote-Not-Ready
// flow control, and the adaptive retransmit timer. It is the largest
// component of the core (spec.md §2, ≈45%).
package link

import (
	"time"

	"github.com/charmbracelet/log"

	"ashhost/bufpool"
	"ashhost/counters"
	"ashhost/errs"
	"ashhost/frame"
)

// Connection is an owned link-layer connection constructed from a
// Config and a Port. Per spec.md §9 ("Global mutable state"), the
// upper layer holds exactly one live Connection at a time; there is no
// package-level singleton state.
type Connection struct {
	cfg  Config
	port Port
	now  func() time.Time

	state State

	frmTx, frmRx, frmReTx uint8
	ackRx                 uint8

	peerReady     bool
	localNotReady bool

	ackOwed bool
	nakOwed bool
	nakNum  uint8

	hasLastAccepted bool
	lastAcceptedFrm uint8

	enc *frame.Encoder
	dec *frame.Decoder

	txPool, rxPool             *bufpool.Pool
	txQueue, reTxQueue, rxQueue *bufpool.Queue

	ackT *ackTimer
	nrT  *nrTimer

	rstDeadline time.Time

	lastError       error
	peerError       error
	peerResetReason ResetReason

	counters counters.Store

	log *log.Logger
}

// Option customizes a Connection at construction time.
type Option func(*Connection)

// WithClock overrides the time source, for deterministic tests of the
// adaptive timer and Not-Ready refresh logic.
func WithClock(clock func() time.Time) Option {
	return func(c *Connection) { c.now = clock }
}

// WithLogger attaches a structured logger for state transitions,
// retransmits, and fatal errors. A nil Connection.log (the default)
// means these events are simply not logged.
func WithLogger(logger *log.Logger) Option {
	return func(c *Connection) { c.log = logger }
}

// New constructs a Connection in StateDisconnected with empty pools and
// queues, ready for ResetPeer.
func New(cfg Config, port Port, opts ...Option) *Connection {
	cfg.normalize()
	c := &Connection{
		cfg:    cfg,
		port:   port,
		now:    time.Now,
		enc:    &frame.Encoder{},
		dec:    frame.NewDecoder(cfg.Randomize),
		txPool: bufpool.NewPool(cfg.TxPoolSize),
		rxPool: bufpool.NewPool(cfg.RxPoolSize),
	}
	c.txQueue = bufpool.NewQueue(c.txPool)
	c.reTxQueue = bufpool.NewQueue(c.txPool)
	c.rxQueue = bufpool.NewQueue(c.rxPool)
	c.ackT = newAckTimer(cfg.AckTimeInit, cfg.AckTimeMin, cfg.AckTimeMax)
	c.nrT = newNrTimer(cfg.NrTime)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsConnected reports the last-known connection status with no active
// probing, per spec.md §4.2.
func (c *Connection) IsConnected() bool {
	return c.state == StateConnected
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	return c.state
}

// LastError returns the latched local-fatal condition, if any.
func (c *Connection) LastError() error { return c.lastError }

// PeerError returns the latched peer-fatal condition, if any.
func (c *Connection) PeerError() error { return c.peerError }

// PeerResetReason returns the reason code the peer reported in its
// last RSTACK or ERROR frame.
func (c *Connection) PeerResetReason() ResetReason { return c.peerResetReason }

// Counters exposes a reset-on-read snapshot of the link's counters.
func (c *Connection) Counters() *counters.Store { return &c.counters }

// AckPeriod returns the adaptive retransmit timer's current period,
// for callers (the transport adapter) that derive a response-timeout
// deadline as a multiple of it, per spec.md §5 "Response timeout".
func (c *Connection) AckPeriod() time.Duration { return c.ackT.period }

// Close tears the connection down: it transitions to Disconnected and
// re-initializes pools, queues, and sequence state, per spec.md §3
// "Lifecycle" ("destroyed by explicit close... pools and queues are
// re-initialized before the next open") and the state table's
// Connected --close--> Disconnected edge. It does not touch the
// underlying Port; the caller (package ashhost) owns closing that.
func (c *Connection) Close() {
	c.reinit()
	c.state = StateDisconnected
}

func seqDistance(from, to uint8) uint8 {
	return (to - from) & 0x07
}

func (c *Connection) windowUsed() uint8 {
	return seqDistance(c.frmReTx, c.frmTx)
}

// reinit clears pools, queues, and sequence state. Called on entry to
// ResetPeer and from Close; entering Failed does not call it.
func (c *Connection) reinit() {
	c.txPool.Reset()
	c.rxPool.Reset()
	c.txQueue.Reset()
	c.reTxQueue.Reset()
	c.rxQueue.Reset()

	c.frmTx, c.frmRx, c.frmReTx = 0, 0, 0
	c.ackRx = 0
	c.peerReady = true
	c.localNotReady = false
	c.ackOwed = false
	c.nakOwed = false
	c.hasLastAccepted = false

	c.ackT = newAckTimer(c.cfg.AckTimeInit, c.cfg.AckTimeMin, c.cfg.AckTimeMax)
	c.nrT = newNrTimer(c.cfg.NrTime)

	c.lastError = nil
	c.peerError = nil
	c.peerResetReason = ResetUnknown
}

// fail transitions to StateFailed, latching err as either the local or
// peer fatal condition.
func (c *Connection) fail(local bool, err error) {
	c.state = StateFailed
	if local {
		c.lastError = err
	} else {
		c.peerError = err
	}
	if c.log != nil {
		c.log.Error("link failed", "local", local, "err", err)
	}
}

func (c *Connection) writeFrame(body []byte) error {
	c.enc.Begin(c.cfg.Randomize)
	wire := make([]byte, 0, len(body)*2+3)
	for _, b := range body {
		wire = append(wire, c.enc.Step(b)...)
	}
	wire = append(wire, c.enc.Finish()...)
	if _, err := c.port.Write(wire); err != nil {
		return err
	}
	return c.port.Flush()
}

func (c *Connection) sendRst() error {
	return c.writeFrame([]byte{frame.RstControl()})
}

// ResetPeer opens/re-opens the link: it clears local state, signals
// the NCP to reset (DTR pulse, RST frame, or a custom hook, per
// Config.ResetMethod), and arms the AwaitingRstAck deadline. It does
// not wait for RSTACK; call ReceiveExec (or Start) to drive the
// handshake to completion.
func (c *Connection) ResetPeer() error {
	c.reinit()
	c.state = StateDisconnected

	switch c.cfg.ResetMethod {
	case ResetMethodDTR:
		setter, ok := c.port.(dtrPort)
		if !ok {
			return &errs.HostFatalError{Reason: "DTR reset requested but port does not support SetDTR"}
		}
		if err := setter.SetDTR(true); err != nil {
			return &errs.HostFatalError{Reason: "SetDTR(true): " + err.Error()}
		}
		time.Sleep(c.cfg.DTRPulseWidth)
		if err := setter.SetDTR(false); err != nil {
			return &errs.HostFatalError{Reason: "SetDTR(false): " + err.Error()}
		}
	case ResetMethodCustom:
		if c.cfg.CustomReset == nil {
			return &errs.HostFatalError{Reason: "custom reset method configured with no hook"}
		}
		if err := c.cfg.CustomReset(); err != nil {
			return &errs.HostFatalError{Reason: "custom reset: " + err.Error()}
		}
	case ResetMethodNone:
		// Testing hook: assume the peer is already reset.
	default:
		if err := c.sendRst(); err != nil {
			return &errs.HostFatalError{Reason: "write RST: " + err.Error()}
		}
		c.counters.Raw().TxAllFrames++
	}

	c.state = StateAwaitingRstAck
	c.rstDeadline = c.now().Add(c.cfg.TimeRst)
	if c.log != nil {
		c.log.Debug("reset peer", "method", c.cfg.ResetMethod)
	}
	return nil
}

// Start performs the handshake, polling ReceiveExec until Connected or
// a fatal error, per spec.md §4.2/§5. It is the one place the core
// waits in a loop, still on the caller's goroutine, still driven by
// non-blocking reads.
func (c *Connection) Start() error {
	if err := c.ResetPeer(); err != nil {
		return err
	}
	for {
		err := c.ReceiveExec()
		switch {
		case c.state == StateConnected:
			return nil
		case c.state == StateFailed:
			if c.peerError != nil {
				return c.peerError
			}
			return c.lastError
		case err != nil && err != errs.ErrNoRxData && err != errs.ErrInProgress:
			return err
		}
		if c.now().After(c.rstDeadline) {
			c.fail(true, &errs.HostFatalError{Reason: "timed out waiting for RSTACK"})
			return c.lastError
		}
		time.Sleep(time.Millisecond)
	}
}

// Send enqueues a DATA payload for transmission. It fails without side
// effects if the connection isn't up, the payload is out of bounds, or
// the tx pool is exhausted.
func (c *Connection) Send(payload []byte) error {
	if c.state != StateConnected {
		return errs.ErrNotConnected
	}
	if len(payload) == 0 {
		return errs.ErrFrameTooShort
	}
	if len(payload) > bufpool.MaxPayload {
		return errs.ErrFrameTooLong
	}
	idx, ok := c.txPool.Alloc()
	if !ok {
		return errs.ErrNoTxSpace
	}
	buf := c.txPool.At(idx)
	copy(buf.Data[:], payload)
	buf.Len = len(payload)
	c.txQueue.PushTail(idx)
	return nil
}

// SendExec performs one step of outgoing work: sending an owed NAK or
// ACK, sending the next queued DATA frame, or retransmitting the
// oldest unacknowledged one, per spec.md §4.2 "Send algorithm".
func (c *Connection) SendExec() error {
	if c.state != StateConnected && c.state != StateAwaitingRstAck {
		return nil
	}

	if c.nakOwed {
		c.nakOwed = false
		if err := c.writeFrame([]byte{frame.AckControl(c.frmRx, true, c.localNotReady)}); err != nil {
			return err
		}
		c.counters.Raw().TxNakFrames++
		c.counters.Raw().TxAllFrames++
		c.bumpNFrame(c.localNotReady, true)
		return nil
	}
	if c.ackOwed {
		c.ackOwed = false
		if err := c.writeFrame([]byte{frame.AckControl(c.frmRx, false, c.localNotReady)}); err != nil {
			return err
		}
		c.counters.Raw().TxAckFrames++
		c.counters.Raw().TxAllFrames++
		c.bumpNFrame(c.localNotReady, true)
		return nil
	}

	now := c.now()

	if c.peerReady && c.windowUsed() < c.cfg.WindowSize && !c.txQueue.IsEmpty() {
		idx, _ := c.txQueue.PopHead()
		buf := c.txPool.At(idx)
		frm := c.frmTx
		c.frmTx = (c.frmTx + 1) & 0x07
		c.reTxQueue.PushTail(idx)

		body := append([]byte{frame.DataControl(frm, c.frmRx, false)}, buf.Data[:buf.Len]...)
		if err := c.writeFrame(body); err != nil {
			return err
		}
		c.counters.Raw().TxDataFrames++
		c.counters.Raw().TxAllFrames++
		c.counters.Raw().TxData += uint64(buf.Len)
		if !c.ackT.running {
			c.ackT.start(now)
		}
		return nil
	}

	if c.ackT.expired(now) && !c.reTxQueue.IsEmpty() {
		if exceeded := c.ackT.timedOut(now, c.cfg.MaxTimeouts); exceeded {
			c.counters.Raw().RxAckTimeouts++
			c.fail(true, &errs.HostFatalError{Reason: "retransmit retry limit exceeded"})
			return c.lastError
		}
		idx, _ := c.reTxQueue.PeekHead()
		buf := c.txPool.At(idx)
		body := append([]byte{frame.DataControl(c.frmReTx, c.frmRx, true)}, buf.Data[:buf.Len]...)
		if err := c.writeFrame(body); err != nil {
			return err
		}
		c.counters.Raw().TxReDataFrames++
		c.counters.Raw().TxAllFrames++
		if c.log != nil {
			c.log.Warn("retransmitting frame", "frm", c.frmReTx, "period", c.ackT.period, "retries", c.ackT.retries)
		}
		return nil
	}

	if c.localNotReady && c.nrT.expired(now) {
		c.nrT.start(now)
		if err := c.writeFrame([]byte{frame.AckControl(c.frmRx, false, true)}); err != nil {
			return err
		}
		c.counters.Raw().TxAckFrames++
		c.counters.Raw().TxAllFrames++
		c.bumpNFrame(true, true)
	}

	return nil
}

func (c *Connection) bumpNFrame(notReady, tx bool) {
	if tx {
		if notReady {
			c.counters.Raw().TxN1Frames++
		} else {
			c.counters.Raw().TxN0Frames++
		}
		return
	}
	if notReady {
		c.counters.Raw().RxN1Frames++
	} else {
		c.counters.Raw().RxN0Frames++
	}
}

// Receive pops the head of the receive queue into a caller-owned
// slice. It returns errs.ErrNoRxData if the queue is empty.
func (c *Connection) Receive() ([]byte, error) {
	if c.state != StateConnected {
		return nil, errs.ErrNotConnected
	}
	idx, ok := c.rxQueue.PopHead()
	if !ok {
		return nil, errs.ErrNoRxData
	}
	buf := c.rxPool.At(idx)
	out := make([]byte, buf.Len)
	copy(out, buf.Data[:buf.Len])
	c.rxPool.Free(idx)
	c.refreshNotReady()
	return out, nil
}

// ReceiveMatching scans the receive queue from its oldest entry toward
// the newest, removing and returning the first payload for which match
// returns true; entries it skips over are left in the queue, in their
// original order, for a later Receive/ReceiveMatching call. This is
// what lets the transport adapter demultiplex a command's response
// out of a stream that may also hold deferred callbacks (spec.md §4.4).
func (c *Connection) ReceiveMatching(match func([]byte) bool) ([]byte, bool) {
	if c.state != StateConnected {
		return nil, false
	}
	n := c.rxQueue.Len()
	for i := n; i >= 1; i-- {
		idx, ok := c.rxQueue.NthFromTail(i)
		if !ok {
			continue
		}
		buf := c.rxPool.At(idx)
		if match(buf.Data[:buf.Len]) {
			c.rxQueue.RemoveEntry(idx)
			out := make([]byte, buf.Len)
			copy(out, buf.Data[:buf.Len])
			c.rxPool.Free(idx)
			c.refreshNotReady()
			return out, true
		}
	}
	return nil, false
}

// RxFreeCount reports how many receive buffers remain unused.
func (c *Connection) RxFreeCount() int { return c.rxPool.FreeCount() }

// RxQueueLen reports how many frames are currently queued for
// delivery, used by the transport adapter to notice and count a
// dropped deferred callback when the rx pool is exhausted.
func (c *Connection) RxQueueLen() int { return c.rxQueue.Len() }

// DropOldestQueued discards the oldest queued receive-side payload,
// freeing its buffer.
func (c *Connection) DropOldestQueued() bool {
	idx, ok := c.rxQueue.PopHead()
	if !ok {
		return false
	}
	c.rxPool.Free(idx)
	c.refreshNotReady()
	return true
}

// refreshNotReady re-evaluates the local Not-Ready flag against the
// configured water marks and, on a low-to-high crossing, schedules an
// immediate bare ACK to refresh the peer's view (spec.md §4.2 step 9).
func (c *Connection) refreshNotReady() {
	free := c.rxPool.FreeCount()
	if c.localNotReady && free >= c.cfg.NrHighWaterMark {
		c.localNotReady = false
		c.nrT.stop()
		c.ackOwed = true
	} else if !c.localNotReady && free <= c.cfg.NrLowWaterMark {
		c.localNotReady = true
		c.nrT.start(c.now())
	}
}

// ReceiveExec drains available incoming bytes, decodes frames, and
// acts on them, per spec.md §4.2 "Receive algorithm".
func (c *Connection) ReceiveExec() error {
	if c.state == StateDisconnected || c.state == StateFailed {
		return errs.ErrNotConnected
	}

	var buf [256]byte
	n, err := c.port.Read(buf[:])
	if err != nil && n == 0 {
		return errs.ErrNoRxData
	}
	if n == 0 {
		return errs.ErrNoRxData
	}
	c.counters.Raw().RxBytes += uint64(n)

	// A single read can carry more than one complete frame (a chatty
	// NCP queuing several ACKs or DATA+callback frames back to back);
	// decode and dispatch every frame the buffer holds rather than
	// stopping at the first one and losing the rest.
	consumed := false
	var lastErr error
	for i := 0; i < n; i++ {
		body, status := c.dec.Step(buf[i])
		if status == frame.StatusInProgress {
			continue
		}
		consumed = true
		lastErr = c.handleFrame(body, status)
	}
	if !consumed {
		return errs.ErrInProgress
	}
	return lastErr
}

func (c *Connection) handleFrame(body []byte, status frame.Status) error {
	switch status {
	case frame.StatusBadCRC:
		c.counters.Raw().RxCrcErrors++
		c.nakFrmRx()
		return nil
	case frame.StatusCommError:
		c.counters.Raw().RxCommErrors++
		c.nakFrmRx()
		return nil
	case frame.StatusCancelled:
		c.counters.Raw().RxCancelled++
		return nil
	case frame.StatusTooShort:
		c.counters.Raw().RxTooShort++
		return nil
	case frame.StatusTooLong:
		c.counters.Raw().RxTooLong++
		return nil
	}

	c.counters.Raw().RxAllFrames++
	c.counters.Raw().RxBlocks++
	control := body[0]
	kind := frame.ClassifyControl(control)

	switch kind {
	case frame.KindData:
		return c.handleData(control, body[1:])
	case frame.KindAck:
		return c.handleAck(control)
	case frame.KindNak:
		return c.handleNak(control)
	case frame.KindRstAck:
		return c.handleRstAck(body[1:])
	case frame.KindRst:
		c.counters.Raw().RxBadControl++
		return nil
	case frame.KindError:
		return c.handleError(body[1:])
	default:
		c.counters.Raw().RxBadControl++
		return nil
	}
}

func (c *Connection) nakFrmRx() {
	if c.state != StateConnected {
		return
	}
	c.nakOwed = true
	c.nakNum = c.frmRx
}

func (c *Connection) handleData(control byte, payload []byte) error {
	if c.state != StateConnected {
		return nil
	}
	frm, ack, retransmit := frame.DataFields(control)
	c.counters.Raw().RxDataFrames++
	c.counters.Raw().RxData += uint64(len(payload))
	if retransmit {
		c.counters.Raw().RxReDataFrames++
	}
	// DATA control bytes have no spare bit for Not-Ready (format + FRM +
	// retransmit + ACK already fill all 8 bits); peer readiness is only
	// ever updated from ACK/NAK frames.
	c.consumeAck(ack)

	if frm == c.frmRx {
		idx, ok := c.rxPool.Alloc()
		if !ok {
			c.counters.Raw().RxNoBuffer++
			c.nakOwed = true
			c.nakNum = c.frmRx
			return nil
		}
		rbuf := c.rxPool.At(idx)
		copy(rbuf.Data[:], payload)
		rbuf.Len = len(payload)
		c.rxQueue.PushTail(idx)

		c.hasLastAccepted = true
		c.lastAcceptedFrm = frm
		c.frmRx = (c.frmRx + 1) & 0x07
		c.ackOwed = true
		c.refreshNotReady()
		return nil
	}

	if c.hasLastAccepted && frm == c.lastAcceptedFrm {
		c.counters.Raw().RxDuplicates++
		c.ackOwed = true
		return nil
	}

	c.counters.Raw().RxOutOfSequence++
	c.nakOwed = true
	c.nakNum = c.frmRx
	return nil
}

// consumeAck frees retransmit-queue entries confirmed by a piggybacked
// or standalone ACK number, restarting or stopping the retransmit
// timer and feeding the adaptive estimator (spec.md §4.2 step 5).
func (c *Connection) consumeAck(ack uint8) {
	outstanding := c.windowUsed()
	n := seqDistance(c.frmReTx, ack)
	if n > outstanding {
		c.counters.Raw().RxBadAckNumber++
		return
	}
	if n == 0 {
		return
	}
	now := c.now()
	for i := uint8(0); i < n; i++ {
		idx, ok := c.reTxQueue.PopHead()
		if !ok {
			break
		}
		c.txPool.Free(idx)
	}
	c.frmReTx = ack
	c.ackRx = ack
	c.ackT.ackReceived(now)
	if !c.reTxQueue.IsEmpty() {
		c.ackT.start(now)
	}
}

func (c *Connection) handleAck(control byte) error {
	if c.state != StateConnected {
		return nil
	}
	ack, notReady := frame.AckFields(control)
	c.counters.Raw().RxAckFrames++
	c.bumpNFrame(notReady, false)
	c.peerReady = !notReady
	c.consumeAck(ack)
	return nil
}

func (c *Connection) handleNak(control byte) error {
	if c.state != StateConnected {
		return nil
	}
	nakNum, notReady := frame.AckFields(control)
	c.counters.Raw().RxNakFrames++
	c.bumpNFrame(notReady, false)
	c.peerReady = !notReady

	outstanding := c.windowUsed()
	n := seqDistance(c.frmReTx, nakNum)
	if n > outstanding {
		c.counters.Raw().RxBadAckNumber++
		return nil
	}
	for i := uint8(0); i < n; i++ {
		idx, ok := c.reTxQueue.PopHead()
		if !ok {
			break
		}
		c.txPool.Free(idx)
	}
	c.frmReTx = nakNum
	if !c.reTxQueue.IsEmpty() {
		c.ackT.forceExpire(c.now())
	}
	return nil
}

func (c *Connection) handleRstAck(payload []byte) error {
	reason := ResetUnknown
	if len(payload) >= 2 {
		reason = ResetReason(payload[1])
	}

	if c.state == StateConnected {
		c.peerResetReason = reason
		c.fail(false, &errs.NcpFatalError{Reason: reason.String()})
		return c.peerError
	}

	if c.state == StateAwaitingRstAck {
		c.peerResetReason = reason
		c.frmTx, c.frmRx, c.frmReTx = 0, 0, 0
		c.peerReady = true
		c.state = StateConnected
		if c.log != nil {
			c.log.Debug("handshake complete", "reset_reason", reason)
		}
		return nil
	}

	return nil
}

func (c *Connection) handleError(payload []byte) error {
	reason := ResetUnknown
	if len(payload) >= 2 {
		reason = ResetReason(payload[1])
	}
	c.peerResetReason = reason
	c.fail(false, &errs.NcpFatalError{Reason: reason.String()})
	return c.peerError
}
