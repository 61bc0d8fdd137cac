// Package protocol implements the framed serial link between the firmware
// and its host: length/sequence header, VLQ-encoded payload, CRC16 and a
// trailing sync byte, with ACK-based retransmission driven by the host.
package protocol

// Version represents the firmware protocol version
const Version = "0.1.0"

const (
	// MessageMax sizes the output scratch buffer; it holds several frames
	// between flushes
	MessageMax = 512

	// MessageSeqMask extracts the rolling 4-bit sequence number from the
	// sequence byte. The high nibble carries MessageDest.
	MessageSeqMask = 0x0F
)
