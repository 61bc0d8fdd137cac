package protocol

import "testing"

// buildHostFrame assembles a complete wire frame the way the host does:
// length, sequence, payload, CRC16 big-endian, sync byte.
func buildHostFrame(seq uint8, payload []byte) []byte {
	msgLen := MessageHeaderSize + len(payload) + MessageTrailerSize
	frame := make([]byte, 0, msgLen)
	frame = append(frame, uint8(msgLen), seq)
	frame = append(frame, payload...)
	crc := CRC16(frame)
	frame = append(frame, uint8(crc>>8), uint8(crc&0xFF), MessageValueSync)
	return frame
}

// checkAck verifies a 5-byte ACK/NAK frame carrying the given sequence.
func checkAck(t *testing.T, got []byte, seq uint8) {
	t.Helper()
	if len(got) != MessageLengthMin {
		t.Fatalf("Expected %d-byte ack, got %d bytes: %v", MessageLengthMin, len(got), got)
	}
	if got[MessagePositionLen] != MessageLengthMin {
		t.Errorf("Ack length byte = %d, want %d", got[0], MessageLengthMin)
	}
	if got[MessagePositionSeq] != seq {
		t.Errorf("Ack sequence = 0x%02X, want 0x%02X", got[1], seq)
	}
	crc := CRC16(got[:MessageHeaderSize])
	if got[2] != uint8(crc>>8) || got[3] != uint8(crc&0xFF) {
		t.Errorf("Ack CRC = %02X%02X, want %04X", got[2], got[3], crc)
	}
	if got[4] != MessageValueSync {
		t.Errorf("Ack sync byte = 0x%02X, want 0x%02X", got[4], MessageValueSync)
	}
}

func TestReceiveValidFrame(t *testing.T) {
	output := NewScratchOutput()

	var gotCmd uint16
	var gotArg uint32
	calls := 0
	handler := func(cmdID uint16, data *[]byte) error {
		calls++
		gotCmd = cmdID
		arg, err := DecodeVLQUint(data)
		if err != nil {
			t.Fatalf("Failed to decode argument: %v", err)
		}
		gotArg = arg
		return nil
	}

	tr := NewTransport(output, handler)

	payload := NewScratchOutput()
	EncodeVLQUint(payload, 7)
	EncodeVLQUint(payload, 42)
	frame := buildHostFrame(MessageDest, payload.Result())

	input := NewSliceInputBuffer(frame)
	tr.Receive(input)

	if calls != 1 {
		t.Fatalf("Expected 1 handler call, got %d", calls)
	}
	if gotCmd != 7 {
		t.Errorf("Command ID = %d, want 7", gotCmd)
	}
	if gotArg != 42 {
		t.Errorf("Argument = %d, want 42", gotArg)
	}
	if input.Available() != 0 {
		t.Errorf("Expected input fully consumed, %d bytes remain", input.Available())
	}

	// Sequence advances past the received frame and the ack carries it
	checkAck(t, output.Result(), MessageDest+1)
}

func TestReceiveSequenceMismatchNaks(t *testing.T) {
	output := NewScratchOutput()
	calls := 0
	tr := NewTransport(output, func(cmdID uint16, data *[]byte) error {
		calls++
		*data = (*data)[:0]
		return nil
	})

	// Transport expects 0x10 but the frame carries 0x12
	frame := buildHostFrame(MessageDest|2, []byte{0x09})
	tr.Receive(NewSliceInputBuffer(frame))

	if calls != 0 {
		t.Errorf("Mismatched sequence must not reach the handler, got %d calls", calls)
	}
	// The nak carries the sequence we still expect, prompting a retransmit
	checkAck(t, output.Result(), MessageDest)
}

func TestReceiveCorruptFrameThenRetransmit(t *testing.T) {
	output := NewScratchOutput()
	calls := 0
	tr := NewTransport(output, func(cmdID uint16, data *[]byte) error {
		calls++
		return nil
	})

	frame := buildHostFrame(MessageDest, []byte{0x09})
	corrupt := make([]byte, len(frame))
	copy(corrupt, frame)
	corrupt[len(corrupt)-2] ^= 0xFF

	tr.Receive(NewSliceInputBuffer(corrupt))
	if calls != 0 {
		t.Fatalf("Corrupt frame must not reach the handler, got %d calls", calls)
	}
	// Resync on the trailing sync byte produces a nak with the unchanged
	// expected sequence
	checkAck(t, output.Result()[:MessageLengthMin], MessageDest)

	// Host retransmits the intact frame
	output.Reset()
	tr.Receive(NewSliceInputBuffer(frame))

	if calls != 1 {
		t.Fatalf("Expected retransmitted frame to be processed, got %d calls", calls)
	}
	checkAck(t, output.Result(), MessageDest+1)
}

func TestReceivePartialFrame(t *testing.T) {
	output := NewScratchOutput()
	calls := 0
	tr := NewTransport(output, func(cmdID uint16, data *[]byte) error {
		calls++
		if _, err := DecodeVLQUint(data); err != nil {
			t.Fatalf("Failed to decode argument: %v", err)
		}
		return nil
	})

	payload := NewScratchOutput()
	EncodeVLQUint(payload, 7)
	EncodeVLQUint(payload, 42)
	frame := buildHostFrame(MessageDest, payload.Result())

	fifo := NewFifoBuffer(128)
	fifo.Write(frame[:4])
	tr.Receive(fifo)

	if calls != 0 {
		t.Fatalf("Partial frame must not be dispatched, got %d calls", calls)
	}
	if fifo.Available() != 4 {
		t.Errorf("Partial frame bytes must stay buffered, %d available", fifo.Available())
	}
	if output.CurPosition() != 0 {
		t.Errorf("No ack expected for a partial frame, output has %d bytes", output.CurPosition())
	}

	fifo.Write(frame[4:])
	tr.Receive(fifo)

	if calls != 1 {
		t.Fatalf("Expected completed frame to be processed, got %d calls", calls)
	}
	if !fifo.IsEmpty() {
		t.Errorf("Expected input fully consumed, %d bytes remain", fifo.Available())
	}
	checkAck(t, output.Result(), MessageDest+1)
}

func TestReceiveGarbageThenSync(t *testing.T) {
	output := NewScratchOutput()
	calls := 0
	tr := NewTransport(output, func(cmdID uint16, data *[]byte) error {
		calls++
		return nil
	})

	// Invalid length byte forces a desync and the garbage holds no sync
	// byte, so everything is discarded silently
	tr.Receive(NewSliceInputBuffer([]byte{0x02, 0x99, 0x99, 0x99, 0x99}))
	if output.CurPosition() != 0 {
		t.Errorf("No ack expected while desynchronized, output has %d bytes", output.CurPosition())
	}

	// A lone sync byte resynchronizes and naks so the host resends
	tr.Receive(NewSliceInputBuffer([]byte{MessageValueSync}))
	checkAck(t, output.Result(), MessageDest)

	output.Reset()
	tr.Receive(NewSliceInputBuffer(buildHostFrame(MessageDest, []byte{0x09})))
	if calls != 1 {
		t.Fatalf("Expected frame after resync to be processed, got %d calls", calls)
	}
	checkAck(t, output.Result(), MessageDest+1)
}

func TestHostResetRewindsSequence(t *testing.T) {
	output := NewScratchOutput()
	calls := 0
	tr := NewTransport(output, func(cmdID uint16, data *[]byte) error {
		calls++
		return nil
	})
	resets := 0
	tr.SetResetCallback(func() { resets++ })

	tr.Receive(NewSliceInputBuffer(buildHostFrame(MessageDest, []byte{0x09})))
	tr.Receive(NewSliceInputBuffer(buildHostFrame(MessageDest+1, []byte{0x09})))
	if calls != 2 || resets != 0 {
		t.Fatalf("Setup failed: calls=%d resets=%d", calls, resets)
	}

	// Sequence 0x10 out of order means the host restarted
	output.Reset()
	tr.Receive(NewSliceInputBuffer(buildHostFrame(MessageDest, []byte{0x09})))

	if resets != 1 {
		t.Errorf("Expected 1 reset callback, got %d", resets)
	}
	if calls != 3 {
		t.Errorf("Expected frame after reset to be processed, got %d calls", calls)
	}
	checkAck(t, output.Result(), MessageDest+1)
}

func TestSendCommandLoopback(t *testing.T) {
	senderOut := NewScratchOutput()
	sender := NewTransport(senderOut, nil)

	sender.SendCommand(3, func(output OutputBuffer) {
		EncodeVLQUint(output, 0xDEAD)
	})

	frame := senderOut.Result()
	if len(frame) == 0 {
		t.Fatal("SendCommand produced no output")
	}
	if int(frame[MessagePositionLen]) != len(frame) {
		t.Errorf("Frame length byte = %d, want %d", frame[0], len(frame))
	}
	if frame[MessagePositionSeq] != MessageDest {
		t.Errorf("Frame sequence = 0x%02X, want 0x%02X", frame[1], MessageDest)
	}
	if frame[len(frame)-1] != MessageValueSync {
		t.Errorf("Frame sync byte = 0x%02X, want 0x%02X", frame[len(frame)-1], MessageValueSync)
	}
	crc := CRC16(frame[:len(frame)-MessageTrailerSize])
	gotCRC := uint16(frame[len(frame)-MessageTrailerCRC])<<8 |
		uint16(frame[len(frame)-MessageTrailerCRC+1])
	if gotCRC != crc {
		t.Errorf("Frame CRC = 0x%04X, want 0x%04X", gotCRC, crc)
	}

	// A fresh receiver accepts the frame as-is
	receiverOut := NewScratchOutput()
	var gotCmd uint16
	var gotArg uint32
	calls := 0
	receiver := NewTransport(receiverOut, func(cmdID uint16, data *[]byte) error {
		calls++
		gotCmd = cmdID
		arg, err := DecodeVLQUint(data)
		if err != nil {
			t.Fatalf("Failed to decode argument: %v", err)
		}
		gotArg = arg
		return nil
	})
	receiver.Receive(NewSliceInputBuffer(frame))

	if calls != 1 {
		t.Fatalf("Expected 1 handler call, got %d", calls)
	}
	if gotCmd != 3 {
		t.Errorf("Command ID = %d, want 3", gotCmd)
	}
	if gotArg != 0xDEAD {
		t.Errorf("Argument = 0x%X, want 0xDEAD", gotArg)
	}
}
