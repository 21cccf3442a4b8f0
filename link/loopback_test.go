package link

import "ashhost/frame"

// fakeNCP is a minimal peer simulator for tests: the real NCP is an
// external collaborator out of this repository's scope (spec.md §1),
// so tests drive the Connection under test against this stand-in
// rather than a second full Connection (which only implements the
// host side of the handshake and would never answer RST with RSTACK).
type fakeNCP struct {
	dec           *frame.Decoder
	frmRxExpected uint8
	received      [][]byte
	resetReason   ResetReason
	crcErrors     int
}

func newFakeNCP() *fakeNCP {
	return &fakeNCP{dec: frame.NewDecoder(false), resetReason: ResetPowerOn}
}

// feed processes one incoming wire byte and returns a reply body
// (control byte + payload), or nil if no reply is due yet.
func (n *fakeNCP) feed(b byte) []byte {
	body, status := n.dec.Step(b)
	switch status {
	case frame.StatusInProgress:
		return nil
	case frame.StatusBadCRC:
		n.crcErrors++
		return []byte{frame.AckControl(n.frmRxExpected, true, false)}
	case frame.StatusCommError:
		return []byte{frame.AckControl(n.frmRxExpected, true, false)}
	case frame.StatusOK:
		// fall through
	default:
		return nil
	}

	control := body[0]
	switch frame.ClassifyControl(control) {
	case frame.KindRst:
		return []byte{frame.RstAckControl(), 0x02, byte(n.resetReason)}
	case frame.KindData:
		frm, _, _ := frame.DataFields(control)
		if frm == n.frmRxExpected {
			n.received = append(n.received, append([]byte(nil), body[1:]...))
			n.frmRxExpected = (n.frmRxExpected + 1) & 0x07
		}
		return []byte{frame.AckControl(n.frmRxExpected, false, false)}
	default:
		return nil
	}
}

// ncpPort implements Port against a fakeNCP. Writes are buffered
// undelivered until the next Read, which gives tests a window to
// corrupt wire bytes in transit (TestScenarioBitFlipRecovery) before
// the NCP ever sees them.
type ncpPort struct {
	ncp    *fakeNCP
	toNCP  []byte
	outbox []byte
}

func newNCPPort(ncp *fakeNCP) *ncpPort {
	return &ncpPort{ncp: ncp}
}

func (p *ncpPort) Write(b []byte) (int, error) {
	p.toNCP = append(p.toNCP, b...)
	return len(b), nil
}

func (p *ncpPort) Flush() error { return nil }

func (p *ncpPort) deliver() {
	for _, c := range p.toNCP {
		if reply := p.ncp.feed(c); reply != nil {
			p.outbox = append(p.outbox, frame.Encode(reply, false)...)
		}
	}
	p.toNCP = p.toNCP[:0]
}

func (p *ncpPort) Read(b []byte) (int, error) {
	p.deliver()
	if len(p.outbox) == 0 {
		return 0, nil
	}
	n := copy(b, p.outbox)
	p.outbox = p.outbox[n:]
	return n, nil
}

var _ Port = (*ncpPort)(nil)

// dataFrame wire-encodes a standalone DATA frame for tests that need
// to hand-construct or replay one without going through a Connection.
func dataFrame(frm, ack uint8, retransmit bool, payload []byte) []byte {
	body := append([]byte{frame.DataControl(frm, ack, retransmit)}, payload...)
	return frame.Encode(body, false)
}
