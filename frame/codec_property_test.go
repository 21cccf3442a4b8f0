package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// TestRoundTripProperty implements spec.md §8 property 1: for every body
// with 1 <= len <= max, decode(encode(body)) == body exactly, regardless
// of which reserved bytes it contains.
func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		control := rapid.Byte().Draw(t, "control")
		payload := rapid.SliceOfN(rapid.Byte(), 0, 128).Draw(t, "payload")
		randomize := rapid.Bool().Draw(t, "randomize")

		body := append([]byte{control}, payload...)
		wire := Encode(body, randomize)

		d := NewDecoder(randomize)
		var got []byte
		var status Status
		for _, b := range wire {
			got, status = d.Step(b)
			if status != StatusInProgress {
				break
			}
		}

		assert.Equal(t, StatusOK, status, "decode status for body %x", body)
		assert.Equal(t, body, got, "round trip mismatch")
	})
}

// TestSingleBitFlipProperty implements spec.md §8 property 2: flipping
// any single bit of an encoded frame (outside the end-of-frame byte)
// never lets the decoder accept the original body: it reports BadCRC or
// CommError, or Cancelled/TooShort/TooLong when the flip lands on a
// framing byte, or decodes a body that differs from the original.
func TestSingleBitFlipProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		control := rapid.Byte().Draw(t, "control")
		payload := rapid.SliceOfN(rapid.Byte(), 1, 32).Draw(t, "payload")
		body := append([]byte{control}, payload...)
		wire := Encode(body, false)

		flipIdx := rapid.IntRange(0, len(wire)-2).Draw(t, "flipIdx") // exclude trailing Flag
		flipBit := rapid.IntRange(0, 7).Draw(t, "flipBit")

		corrupted := append([]byte(nil), wire...)
		corrupted[flipIdx] ^= 1 << uint(flipBit)

		d := NewDecoder(false)
		var got []byte
		var status Status
		for _, b := range corrupted {
			got, status = d.Step(b)
			if status != StatusInProgress {
				break
			}
		}

		if status == StatusOK {
			assert.NotEqual(t, body, got, "corrupted frame decoded to original body undetected")
		} else {
			assert.Contains(t, []Status{StatusBadCRC, StatusCommError, StatusCancelled, StatusTooShort, StatusTooLong}, status)
		}
	})
}
