package tinycompress

import (
	"errors"
	"hash/adler32"
	"io"
)

var (
	ErrBadHeader   = errors.New("not a zlib stream")
	ErrTruncated   = errors.New("zlib stream truncated")
	ErrBlockType   = errors.New("unsupported DEFLATE block type")
	ErrBadLength   = errors.New("stored block length check failed")
	ErrBadChecksum = errors.New("adler32 checksum mismatch")
	ErrTooLarge    = errors.New("data exceeds decode buffer")
)

// ZlibEncoder inflates zlib streams built from stored DEFLATE blocks into
// a fixed buffer, so decode paths never allocate
type ZlibEncoder struct {
	buf []byte
}

// NewZlib creates a decoder with a fixed output buffer
func NewZlib(bufferSize int) *ZlibEncoder {
	return &ZlibEncoder{
		buf: make([]byte, bufferSize),
	}
}

// Decompress inflates a single-block zlib stream as produced by Writer
func (z *ZlibEncoder) Decompress(compressed []byte) ([]byte, error) {
	// Header (2) + block header (1) + len/nlen (4) + adler32 (4)
	if len(compressed) < 11 {
		return nil, ErrTruncated
	}

	if compressed[0] != 0x78 {
		return nil, ErrBadHeader
	}

	// Block header: final bit set, type 00 (stored)
	if compressed[2]&0x01 == 0 || (compressed[2]>>1)&0x03 != 0 {
		return nil, ErrBlockType
	}

	length := int(compressed[3]) | int(compressed[4])<<8
	nlength := int(compressed[5]) | int(compressed[6])<<8
	if length != (^nlength & 0xFFFF) {
		return nil, ErrBadLength
	}

	dataStart := 7
	if dataStart+length+4 > len(compressed) {
		return nil, ErrTruncated
	}
	if length > len(z.buf) {
		return nil, ErrTooLarge
	}

	copy(z.buf, compressed[dataStart:dataStart+length])

	// Adler-32 trails the data, big-endian
	checksumStart := dataStart + length
	expected := uint32(compressed[checksumStart])<<24 |
		uint32(compressed[checksumStart+1])<<16 |
		uint32(compressed[checksumStart+2])<<8 |
		uint32(compressed[checksumStart+3])

	if adler32.Checksum(z.buf[:length]) != expected {
		return nil, ErrBadChecksum
	}

	return z.buf[:length], nil
}

// Writer accumulates bytes and emits them on Close as one zlib stream
// holding a single stored DEFLATE block. Stored blocks keep the encoder
// tiny and let any standard inflater read the result.
type Writer struct {
	output   io.Writer
	inputBuf []byte
}

// NewWriter creates a zlib Writer compatible with io.WriteCloser.
// The buffer is sized upfront: the command dictionary lands around 2KB
// with every command registered, and growth during Write would allocate
// in the MCU init path.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		output:   w,
		inputBuf: make([]byte, 0, 8192),
	}
}

// Write implements io.Writer
func (w *Writer) Write(p []byte) (n int, err error) {
	// Grow in one step when the preallocation is exceeded, so a single
	// oversized dictionary costs one copy instead of repeated doubling
	if cap(w.inputBuf) < len(w.inputBuf)+len(p) {
		newBuf := make([]byte, len(w.inputBuf), len(w.inputBuf)+len(p))
		copy(newBuf, w.inputBuf)
		w.inputBuf = newBuf
	}

	w.inputBuf = append(w.inputBuf, p...)
	return len(p), nil
}

// Close implements io.Closer and writes the complete zlib stream
func (w *Writer) Close() error {
	// Zlib header
	if _, err := w.output.Write([]byte{0x78, 0x9C}); err != nil {
		return err
	}

	// DEFLATE block header (final block, no compression)
	if _, err := w.output.Write([]byte{0x01}); err != nil {
		return err
	}

	// Length of data (16-bit little endian)
	length := uint16(len(w.inputBuf))
	if _, err := w.output.Write([]byte{byte(length), byte(length >> 8)}); err != nil {
		return err
	}

	// NLEN (one's complement of length)
	nlength := ^length
	if _, err := w.output.Write([]byte{byte(nlength), byte(nlength >> 8)}); err != nil {
		return err
	}

	// Raw data
	if _, err := w.output.Write(w.inputBuf); err != nil {
		return err
	}

	// Adler-32 checksum (big-endian)
	checksum := adler32.Checksum(w.inputBuf)
	checksumBytes := []byte{
		byte(checksum >> 24),
		byte(checksum >> 16),
		byte(checksum >> 8),
		byte(checksum),
	}
	if _, err := w.output.Write(checksumBytes); err != nil {
		return err
	}

	return nil
}
