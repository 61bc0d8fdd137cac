package protocol

import (
	"io"
	"sync"
	"testing"
	"time"
)

// mcuPort is an in-memory serial port backed by a firmware-side Transport.
// Host writes are processed synchronously and anything the firmware emits
// (acks, responses) is pushed through a pipe for the host read loop.
type mcuPort struct {
	mu   sync.Mutex
	mcu  *Transport
	fifo *FifoBuffer
	out  *ScratchOutput
	pr   *io.PipeReader
	pw   *io.PipeWriter
}

func newMCUPort(handler CommandHandler) *mcuPort {
	p := &mcuPort{
		fifo: NewFifoBuffer(512),
		out:  NewScratchOutput(),
	}
	p.pr, p.pw = io.Pipe()
	p.mcu = NewTransport(p.out, handler)
	return p
}

func (p *mcuPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	p.fifo.Write(data)
	p.mcu.Receive(p.fifo)
	pending := p.out.Result()
	resp := make([]byte, len(pending))
	copy(resp, pending)
	p.out.Reset()
	p.mu.Unlock()

	if len(resp) > 0 {
		if _, err := p.pw.Write(resp); err != nil {
			return 0, err
		}
	}
	return len(data), nil
}

func (p *mcuPort) Read(data []byte) (int, error) {
	return p.pr.Read(data)
}

func (p *mcuPort) Close() error {
	p.pw.Close()
	return p.pr.Close()
}

func TestHostTransportRoundTrip(t *testing.T) {
	const (
		echoCmd  = 5
		echoResp = 6
	)

	// Firmware side echoes the argument incremented by one
	var port *mcuPort
	handler := func(cmdID uint16, data *[]byte) error {
		if cmdID != echoCmd {
			t.Errorf("Firmware received command %d, want %d", cmdID, echoCmd)
		}
		arg, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		port.mcu.SendCommand(echoResp, func(output OutputBuffer) {
			EncodeVLQUint(output, arg+1)
		})
		return nil
	}
	port = newMCUPort(handler)

	host := NewHostTransport(port)
	defer func() {
		// EOF on the pipe lets the read loop exit before Close waits on it
		port.pw.Close()
		host.Close()
	}()

	if err := host.SendCommand(echoCmd, func(output OutputBuffer) {
		EncodeVLQUint(output, 41)
	}); err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}

	// Ack moves the host to the next sequence
	if seq := host.GetCurrentSequence(); seq != MessageDest+1 {
		t.Errorf("Sequence after ack = 0x%02X, want 0x%02X", seq, MessageDest+1)
	}

	resp, err := host.ReceiveResponse(time.Second)
	if err != nil {
		t.Fatalf("ReceiveResponse failed: %v", err)
	}

	payload := resp.Payload
	cmdID, err := DecodeVLQUint(&payload)
	if err != nil {
		t.Fatalf("Failed to decode response ID: %v", err)
	}
	if cmdID != echoResp {
		t.Errorf("Response ID = %d, want %d", cmdID, echoResp)
	}
	value, err := DecodeVLQUint(&payload)
	if err != nil {
		t.Fatalf("Failed to decode response value: %v", err)
	}
	if value != 42 {
		t.Errorf("Response value = %d, want 42", value)
	}

	// A second command goes out under the advanced sequence
	if err := host.SendCommand(echoCmd, func(output OutputBuffer) {
		EncodeVLQUint(output, 100)
	}); err != nil {
		t.Fatalf("Second SendCommand failed: %v", err)
	}
	if seq := host.GetCurrentSequence(); seq != MessageDest+2 {
		t.Errorf("Sequence after second ack = 0x%02X, want 0x%02X", seq, MessageDest+2)
	}

	resp, err = host.ReceiveResponse(time.Second)
	if err != nil {
		t.Fatalf("Second ReceiveResponse failed: %v", err)
	}
	payload = resp.Payload
	if _, err := DecodeVLQUint(&payload); err != nil {
		t.Fatalf("Failed to decode second response ID: %v", err)
	}
	value, err = DecodeVLQUint(&payload)
	if err != nil {
		t.Fatalf("Failed to decode second response value: %v", err)
	}
	if value != 101 {
		t.Errorf("Second response value = %d, want 101", value)
	}
}
