package frame

// crcUpdate folds one byte into a running CCITT-16 accumulator.
func crcUpdate(crc uint16, b byte) uint16 {
	crc ^= uint16(b) << 8
	for i := 0; i < 8; i++ {
		if crc&0x8000 != 0 {
			crc = crc<<1 ^ 0x1021
		} else {
			crc <<= 1
		}
	}
	return crc
}

func nextRandState(state byte) byte {
	if state&0x01 != 0 {
		return (state >> 1) ^ 0xB8
	}
	return state >> 1
}

// Encoder turns a logical frame body (control byte + payload) into wire
// bytes: byte-stuffed, optionally randomized, CRC-terminated, ending in
// Flag. It holds only the position within the frame currently being
// built, per spec.md §4.1 — call Begin for each new frame.
type Encoder struct {
	pos       int
	crc       uint16
	randState byte
	randomize bool
}

// Begin starts encoding a new frame. randomize enables payload XOR
// masking (the control byte, at position 0, is never masked).
func (e *Encoder) Begin(randomize bool) {
	e.pos = 0
	e.crc = 0xFFFF
	e.randState = 0x42
	e.randomize = randomize
}

// Step feeds the next logical body byte and returns the wire bytes it
// produces: the byte itself (possibly randomized, possibly escaped).
func (e *Encoder) Step(b byte) []byte {
	wire := b
	if e.randomize && e.pos > 0 {
		wire = b ^ e.randState
		e.randState = nextRandState(e.randState)
	}
	e.pos++
	e.crc = crcUpdate(e.crc, wire)
	return stuff(wire)
}

// Finish closes the frame: appends the CRC (high byte first, byte-stuffed
// as needed) and the terminating Flag.
func (e *Encoder) Finish() []byte {
	high := byte(e.crc >> 8)
	low := byte(e.crc)
	out := make([]byte, 0, 6)
	out = append(out, stuff(high)...)
	out = append(out, stuff(low)...)
	out = append(out, Flag)
	return out
}

// Encode is a convenience wrapper around Begin/Step/Finish for callers
// that already have the whole body (control byte + payload) in hand.
func Encode(body []byte, randomize bool) []byte {
	var e Encoder
	e.Begin(randomize)
	out := make([]byte, 0, len(body)*2+3)
	for _, b := range body {
		out = append(out, e.Step(b)...)
	}
	out = append(out, e.Finish()...)
	return out
}

func stuff(b byte) []byte {
	if IsReserved(b) {
		return []byte{Escape, b ^ escapeMask}
	}
	return []byte{b}
}
