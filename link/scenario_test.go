package link

import (
	"bytes"
	"testing"
	"time"

	"ashhost/frame"
)

func unsolicitedRstAck(reason ResetReason) []byte {
	return frame.Encode([]byte{frame.RstAckControl(), 0x02, byte(reason)}, false)
}

func testConfig() Config {
	return Config{
		WindowSize:  3,
		AckTimeInit: 20 * time.Millisecond,
		AckTimeMin:  5 * time.Millisecond,
		AckTimeMax:  200 * time.Millisecond,
		TimeRst:     500 * time.Millisecond,
		MaxTimeouts: 6,
		RxPoolSize:  8,
		ResetMethod: ResetMethodRST,
	}
}

// pump drives one connection's send/receive steps until stop reports
// done or the iteration budget is exhausted.
func pump(t *testing.T, c *Connection, iters int, stop func() bool) {
	t.Helper()
	for i := 0; i < iters; i++ {
		c.SendExec()
		c.ReceiveExec()
		if stop != nil && stop() {
			return
		}
	}
}

func connectedFixture(t *testing.T) (*Connection, *ncpPort, *fakeNCP) {
	t.Helper()
	ncp := newFakeNCP()
	port := newNCPPort(ncp)
	c := New(testConfig(), port)

	if err := c.ResetPeer(); err != nil {
		t.Fatalf("ResetPeer: %v", err)
	}
	pump(t, c, 100, func() bool { return c.IsConnected() })
	if !c.IsConnected() {
		t.Fatalf("handshake did not complete: state=%v", c.State())
	}
	return c, port, ncp
}

// S1: handshake.
func TestScenarioHandshake(t *testing.T) {
	c, _, _ := connectedFixture(t)

	if c.Counters().Raw().TxAllFrames == 0 {
		t.Error("expected at least one frame transmitted during handshake")
	}
	if c.Counters().Raw().RxAllFrames == 0 {
		t.Error("expected at least one frame received during handshake")
	}
}

// S2: echo — a payload sent by the host is observed by the peer and the
// host's retransmit queue drains once the ACK comes back.
func TestScenarioEcho(t *testing.T) {
	c, _, ncp := connectedFixture(t)

	payload := []byte{0xAA, 0xBB}
	if err := c.Send(payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	pump(t, c, 200, func() bool { return c.reTxQueue.IsEmpty() })

	if !c.reTxQueue.IsEmpty() {
		t.Fatal("retransmit queue never drained; ACK round trip did not complete")
	}
	if len(ncp.received) != 1 || !bytes.Equal(ncp.received[0], payload) {
		t.Fatalf("peer received %v, want [%x]", ncp.received, payload)
	}
}

// S4: a bit flip in transit forces a CRC error and NAK, with eventual
// correct delivery once the host retransmits.
func TestScenarioBitFlipRecovery(t *testing.T) {
	c, port, ncp := connectedFixture(t)

	payload := []byte{0x01, 0x02, 0x03}
	if err := c.Send(payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Queue the DATA frame's wire bytes without delivering them yet,
	// then corrupt a body byte before the peer ever decodes it.
	c.SendExec()
	if len(port.toNCP) > 2 {
		port.toNCP[1] ^= 0xFF
	} else {
		t.Fatal("expected at least one frame queued for delivery")
	}

	pump(t, c, 300, func() bool { return len(ncp.received) > 0 })

	if len(ncp.received) != 1 || !bytes.Equal(ncp.received[0], payload) {
		t.Fatalf("peer received %v, want [%x] after corrupted first attempt", ncp.received, payload)
	}
	if ncp.crcErrors != 1 {
		t.Errorf("peer CRC errors = %d, want 1 for the corrupted attempt", ncp.crcErrors)
	}
}

// S5: the peer unilaterally reboots mid-session and sends an
// unsolicited RSTACK, which the connected host must treat as fatal.
func TestScenarioPeerResetMidSession(t *testing.T) {
	c, port, ncp := connectedFixture(t)

	for i := 0; i < 5; i++ {
		if err := c.Send([]byte{byte(i)}); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
		pump(t, c, 50, func() bool { return len(ncp.received) == i+1 })
	}

	// Simulate a watchdog reset on the peer: it starts replying to any
	// further bytes as if resuming from scratch, and immediately raises
	// an unsolicited RSTACK the way a real NCP does after rebooting.
	ncp.resetReason = ResetWatchdog
	ncp.frmRxExpected = 0
	port.outbox = append(port.outbox, unsolicitedRstAck(ResetWatchdog)...)

	pump(t, c, 100, func() bool { return c.State() == StateFailed })

	if c.State() != StateFailed {
		t.Fatalf("State() = %v, want Failed after unilateral peer reset", c.State())
	}
	if c.PeerError() == nil {
		t.Error("expected PeerError to be set after unilateral peer reset")
	}
	if c.PeerResetReason() != ResetWatchdog {
		t.Errorf("PeerResetReason() = %v, want ResetWatchdog", c.PeerResetReason())
	}
}

// S6 lives in frame/codec_test.go (TestMaxStuffEcho), since it is a
// pure codec-level property; no link-level behavior is exercised
// beyond what the frame package already proves.

// Close must drop the connection to Disconnected and re-initialize
// pools/queues/sequence state, per spec.md §3 "Lifecycle" and the
// Connected --close--> Disconnected state-table edge.
func TestConnectionClose(t *testing.T) {
	c, _, _ := connectedFixture(t)

	if err := c.Send([]byte{0x01}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	c.SendExec()

	c.Close()

	if c.State() != StateDisconnected {
		t.Fatalf("State() = %v, want Disconnected", c.State())
	}
	if c.frmTx != 0 || c.frmRx != 0 || c.frmReTx != 0 {
		t.Errorf("sequence counters not reset: frmTx=%d frmRx=%d frmReTx=%d", c.frmTx, c.frmRx, c.frmReTx)
	}
	if !c.reTxQueue.IsEmpty() {
		t.Error("retransmit queue not cleared by Close")
	}
}
