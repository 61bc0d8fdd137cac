package protocol

import "testing"

func TestCRC16KnownValues(t *testing.T) {
	testCases := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "empty",
			data:     []byte{},
			expected: 0xFFFF, // seed value, nothing mixed in
		},
		{
			name:     "zero byte",
			data:     []byte{0x00},
			expected: 0x0F87,
		},
		{
			name:     "all ones byte",
			data:     []byte{0xFF},
			expected: 0x00FF,
		},
		{
			name:     "ack frame header",
			data:     []byte{MessageLengthMin, MessageDest},
			expected: 0x9E81,
		},
		{
			name:     "check string",
			data:     []byte("123456789"),
			expected: 0x6F91,
		},
	}

	for _, tc := range testCases {
		result := CRC16(tc.data)
		if result != tc.expected {
			t.Errorf("%s: CRC16(%v) = 0x%04X, want 0x%04X", tc.name, tc.data, result, tc.expected)
		}
	}
}

func TestCRC16Consistency(t *testing.T) {
	// Test that same input produces same output
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}

	crc1 := CRC16(data)
	crc2 := CRC16(data)

	if crc1 != crc2 {
		t.Errorf("CRC16 not consistent: first=%04X, second=%04X", crc1, crc2)
	}
}

func TestCRC16Different(t *testing.T) {
	// Test that different inputs produce different outputs
	data1 := []byte{0x01, 0x02, 0x03}
	data2 := []byte{0x01, 0x02, 0x04}

	crc1 := CRC16(data1)
	crc2 := CRC16(data2)

	if crc1 == crc2 {
		t.Errorf("CRC16 collision: both inputs produced %04X", crc1)
	}
}
