package protocol

// CRC16 calculates the checksum carried in every message trailer. CCITT
// polynomial, bit-reversed byte-at-a-time form, seeded with 0xFFFF; both
// ends of the link must agree on it exactly.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b = b ^ uint8(crc&0xFF)
		b = b ^ (b << 4)
		b16 := uint16(b)
		crc = (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
	}
	return crc
}
