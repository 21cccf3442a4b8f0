package ashhost

import (
	"testing"
	"time"

	"ashhost/frame"
	"ashhost/link"
	"ashhost/transport"
)

// echoPort answers every RST with RSTACK and every DATA frame with an
// ACK, just enough for Host's plumbing (not the handshake retry path)
// to be exercised without a real serial device.
type echoPort struct {
	dec    *frame.Decoder
	frmRx  uint8
	toNCP  []byte
	outbox []byte
}

func newEchoPort() *echoPort {
	return &echoPort{dec: frame.NewDecoder(false)}
}

func (p *echoPort) Write(b []byte) (int, error) {
	p.toNCP = append(p.toNCP, b...)
	return len(b), nil
}

func (p *echoPort) Flush() error { return nil }

func (p *echoPort) deliver() {
	for _, c := range p.toNCP {
		body, status := p.dec.Step(c)
		if status != frame.StatusOK {
			continue
		}
		control := body[0]
		var reply []byte
		switch frame.ClassifyControl(control) {
		case frame.KindRst:
			reply = []byte{frame.RstAckControl(), 0x02, byte(link.ResetPowerOn)}
		case frame.KindData:
			frm, _, _ := frame.DataFields(control)
			if frm == p.frmRx {
				p.frmRx = (p.frmRx + 1) & 0x07
			}
			reply = []byte{frame.AckControl(p.frmRx, false, false)}
		}
		if reply != nil {
			p.outbox = append(p.outbox, frame.Encode(reply, false)...)
		}
	}
	p.toNCP = p.toNCP[:0]
}

func (p *echoPort) Read(b []byte) (int, error) {
	p.deliver()
	if len(p.outbox) == 0 {
		return 0, nil
	}
	n := copy(b, p.outbox)
	p.outbox = p.outbox[n:]
	return n, nil
}

var _ link.Port = (*echoPort)(nil)

func newTestHost(t *testing.T, onCallback func([]byte)) *Host {
	t.Helper()
	conn := link.New(link.Config{WindowSize: 3, AckTimeInit: 5 * time.Millisecond}, newEchoPort())
	if err := conn.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	isCallback := func(payload []byte) bool { return len(payload) > 0 && payload[0] == 0xFF }
	h := &Host{conn: conn}
	h.adapt = transport.NewAdapter(conn, isCallback, onCallback)
	return h
}

func TestHostStateAfterHandshake(t *testing.T) {
	h := newTestHost(t, func([]byte) {})
	if h.State() != link.StateConnected {
		t.Fatalf("State() = %v, want Connected", h.State())
	}
}

func TestHostCountersNonNil(t *testing.T) {
	h := newTestHost(t, func([]byte) {})
	if h.Counters() == nil {
		t.Fatal("Counters() returned nil")
	}
}
