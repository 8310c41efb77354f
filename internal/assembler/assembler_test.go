package assembler

import (
	"encoding/binary"
	"testing"
)

func makeWAV(pcm []byte) []byte {
	header := make([]byte, riffHeaderSize)
	copy(header[0:4], []byte("RIFF"))
	binary.LittleEndian.PutUint32(header[4:8], uint32(riffHeaderSize-8+len(pcm)))
	copy(header[8:12], []byte("WAVE"))
	copy(header[12:16], []byte("fmt "))
	copy(header[36:40], []byte("data"))
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))
	return append(header, pcm...)
}

func TestAssemble_SingleClipReturnedUnchanged(t *testing.T) {
	clip := makeWAV([]byte{1, 2, 3, 4})
	out, err := Assemble([][]byte{clip})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != string(clip) {
		t.Fatalf("expected single clip returned unchanged")
	}
}

func TestAssemble_ConcatenatesPCMAcrossClips(t *testing.T) {
	clip1 := makeWAV([]byte{1, 2, 3})
	clip2 := makeWAV([]byte{4, 5})
	clip3 := makeWAV([]byte{6})

	out, err := Assemble([][]byte{clip1, clip2, clip3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pcm := out[riffHeaderSize:]
	want := []byte{1, 2, 3, 4, 5, 6}
	if len(pcm) != len(want) {
		t.Fatalf("expected %d bytes of pcm, got %d", len(want), len(pcm))
	}
	for i := range want {
		if pcm[i] != want[i] {
			t.Fatalf("pcm mismatch at %d: got %d want %d", i, pcm[i], want[i])
		}
	}

	dataSize := binary.LittleEndian.Uint32(out[40:44])
	if int(dataSize) != len(want) {
		t.Fatalf("data chunk size header mismatch: got %d want %d", dataSize, len(want))
	}
}

func TestAssemble_EmptyInputErrors(t *testing.T) {
	if _, err := Assemble(nil); err == nil {
		t.Fatal("expected error for empty clip list")
	}
}

func TestAssemble_TooShortClipErrors(t *testing.T) {
	if _, err := Assemble([][]byte{{1, 2, 3}, makeWAV([]byte{4})}); err == nil {
		t.Fatal("expected error for undersized clip")
	}
}
