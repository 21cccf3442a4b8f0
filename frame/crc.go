package frame

// CRC16 computes the CCITT-16 frame check (polynomial 0x1021, initial
// value 0xFFFF) used over the control byte and payload of every ASH
// frame. The accumulator loop mirrors the single-pass style of
// amken3d-gopper/protocol/crc16.go, driven by the CCITT-16 polynomial
// rather than Klipper's.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc = crcUpdate(crc, b)
	}
	return crc
}
