package frame

const (
	minBodyTotal = 3   // control byte + 2 CRC bytes
	maxBodyTotal = 131 // control byte + 128 payload bytes + 2 CRC bytes
)

// Decoder recovers frame bodies from a wire byte stream one byte at a
// time. Like Encoder, it remembers only the position within the frame
// currently in progress (spec.md §4.1): the accumulated body bytes and
// whether an escape byte was just seen.
type Decoder struct {
	buf           []byte
	escapePending bool
	randomize     bool
}

// NewDecoder creates a Decoder. randomize must match the Encoder setting
// used by the peer.
func NewDecoder(randomize bool) *Decoder {
	return &Decoder{randomize: randomize}
}

func (d *Decoder) reset() {
	d.buf = d.buf[:0]
	d.escapePending = false
}

// Step feeds one wire byte. It returns the decoded body (control byte +
// payload, CRC and Flag stripped) with StatusOK once a complete, valid
// frame has been seen; any other status indicates the frame was
// discarded (and, for reserved line-control bytes, that decoding has
// been reset to start the next frame fresh).
func (d *Decoder) Step(b byte) ([]byte, Status) {
	if d.escapePending {
		d.escapePending = false
		return d.appendByte(b ^ escapeMask)
	}

	switch b {
	case Flag:
		return d.finish()
	case Escape:
		d.escapePending = true
		return nil, StatusInProgress
	case Cancel:
		d.reset()
		return nil, StatusCancelled
	case Substitute:
		d.reset()
		return nil, StatusCommError
	case XON, XOFF:
		// Flow-control bytes are never part of the frame body.
		return nil, StatusInProgress
	default:
		return d.appendByte(b)
	}
}

func (d *Decoder) appendByte(b byte) ([]byte, Status) {
	if len(d.buf) >= maxBodyTotal {
		d.reset()
		return nil, StatusTooLong
	}
	d.buf = append(d.buf, b)
	return nil, StatusInProgress
}

func (d *Decoder) finish() ([]byte, Status) {
	n := len(d.buf)
	if n < minBodyTotal {
		d.reset()
		return nil, StatusTooShort
	}

	body := make([]byte, n-2)
	copy(body, d.buf[:n-2])
	receivedCRC := uint16(d.buf[n-2])<<8 | uint16(d.buf[n-1])
	d.reset()

	if CRC16(body) != receivedCRC {
		return nil, StatusBadCRC
	}

	if d.randomize && len(body) > 1 {
		Randomize(0, body[1:])
	}

	return body, StatusOK
}

// InProgress reports whether a frame is currently being accumulated
// (i.e. at least one body byte has been seen since the last Flag,
// Cancel, or Substitute).
func (d *Decoder) InProgress() bool {
	return len(d.buf) > 0 || d.escapePending
}
