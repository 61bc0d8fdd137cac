package core

import (
	"bytes"
	"compress/zlib"
	"io"
	"strings"
	"testing"
)

func TestDictionaryGenerate(t *testing.T) {
	dict := NewDictionary(NewCommandRegistry())

	dict.AddConstant("CLOCK_FREQ", uint32(1000000))
	dict.AddConstant("MCU", "rp2040")
	dict.AddEnumeration("alarm_pins", []string{"ALARM0", "ALARM1"})

	dict.commandReg.Register("schedule_event", "oid=%c clock=%u", func(data *[]byte) error {
		return nil
	})
	dict.commandReg.Register("event_fired", "oid=%c clock=%u", nil)

	output := string(dict.Generate())

	if !strings.Contains(output, `"version":"tickmux-0.1.0"`) {
		t.Error("Dictionary missing version")
	}
	if !strings.Contains(output, `"CLOCK_FREQ":"1000000"`) {
		t.Error("Dictionary missing CLOCK_FREQ")
	}
	if !strings.Contains(output, `"MCU":"rp2040"`) {
		t.Error("Dictionary missing MCU")
	}
	if !strings.Contains(output, `"ALARM0":0`) || !strings.Contains(output, `"ALARM1":1`) {
		t.Error("Dictionary missing alarm_pins values")
	}

	// Commands and responses land in separate objects.
	cmdPart := output[strings.Index(output, `"commands"`):strings.Index(output, `"responses"`)]
	if !strings.Contains(cmdPart, `"schedule_event oid=%c clock=%u"`) {
		t.Error("Commands object missing schedule_event")
	}
	respPart := output[strings.Index(output, `"responses"`):]
	if !strings.Contains(respPart, `"event_fired oid=%c clock=%u"`) {
		t.Error("Responses object missing event_fired")
	}
}

func TestDictionaryChunks(t *testing.T) {
	dict := NewDictionary(NewCommandRegistry())
	dict.AddConstant("TEST", uint32(123))

	data := dict.Generate()
	if len(data) == 0 {
		t.Fatal("Expected non-empty dictionary")
	}

	// Reassembling chunk by chunk reproduces the dictionary.
	var assembled []byte
	offset := uint32(0)
	for {
		chunk := dict.GetChunk(offset, 16)
		if len(chunk) == 0 {
			break
		}
		assembled = append(assembled, chunk...)
		offset += uint32(len(chunk))
	}
	if !bytes.Equal(assembled, data) {
		t.Errorf("Reassembled %d bytes, expected %d", len(assembled), len(data))
	}

	// Reads past the end are empty, not an error.
	if chunk := dict.GetChunk(uint32(len(data))+100, 16); len(chunk) != 0 {
		t.Errorf("Expected empty chunk past the end, got %d bytes", len(chunk))
	}

	// A chunk spanning the end is truncated.
	tail := dict.GetChunk(uint32(len(data))-5, 16)
	if len(tail) != 5 {
		t.Errorf("Expected 5-byte tail chunk, got %d", len(tail))
	}
}

func TestDictionaryCompressedCache(t *testing.T) {
	dict := NewDictionary(NewCommandRegistry())
	dict.AddConstant("MAX_EVENT_SLOTS", uint32(16))
	dict.commandReg.Register("get_clock", "", func(data *[]byte) error { return nil })

	plain := make([]byte, len(dict.Generate()))
	copy(plain, dict.Generate())

	dict.BuildDictionary()
	compressed := dict.Generate()
	if bytes.Equal(compressed, plain) {
		t.Fatal("Expected Generate to return the compressed cache")
	}

	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("Cache is not a zlib stream: %v", err)
	}
	defer r.Close()
	inflated, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("Inflate failed: %v", err)
	}
	if !bytes.Equal(inflated, plain) {
		t.Errorf("Inflated dictionary does not match the plain build")
	}
}
