package tinycompress

import (
	"bytes"
	"testing"
)

func TestWriterDecompressRoundTrip(t *testing.T) {
	payload := []byte(`{"version":"test","commands":{"get_clock":3}}`)

	var buf bytes.Buffer
	w := NewWriter(&buf)
	if _, err := w.Write(payload[:10]); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := w.Write(payload[10:]); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	stream := buf.Bytes()
	if stream[0] != 0x78 || stream[1] != 0x9C {
		t.Errorf("Stream header = %#x %#x, want 0x78 0x9c", stream[0], stream[1])
	}
	// 2 header + 1 block header + 4 len/nlen + payload + 4 checksum
	if want := 11 + len(payload); len(stream) != want {
		t.Errorf("Stream length = %d, want %d", len(stream), want)
	}

	z := NewZlib(256)
	out, err := z.Decompress(stream)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Errorf("Round trip = %q, want %q", out, payload)
	}
}

func TestDecompressRejectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Write([]byte("scheduler dictionary data"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	good := buf.Bytes()

	z := NewZlib(256)

	if _, err := z.Decompress(good[:8]); err != ErrTruncated {
		t.Errorf("Truncated stream error = %v, want %v", err, ErrTruncated)
	}

	bad := append([]byte(nil), good...)
	bad[0] = 0x1F
	if _, err := z.Decompress(bad); err != ErrBadHeader {
		t.Errorf("Bad header error = %v, want %v", err, ErrBadHeader)
	}

	// Flipped payload byte breaks the checksum
	bad = append([]byte(nil), good...)
	bad[9] ^= 0xFF
	if _, err := z.Decompress(bad); err != ErrBadChecksum {
		t.Errorf("Corrupt payload error = %v, want %v", err, ErrBadChecksum)
	}

	// Mangled NLEN no longer complements the length
	bad = append([]byte(nil), good...)
	bad[5] ^= 0xFF
	if _, err := z.Decompress(bad); err != ErrBadLength {
		t.Errorf("Bad NLEN error = %v, want %v", err, ErrBadLength)
	}

	if _, err := NewZlib(4).Decompress(good); err != ErrTooLarge {
		t.Errorf("Undersized buffer error = %v, want %v", err, ErrTooLarge)
	}
}
