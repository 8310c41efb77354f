// Package assembler stitches the per-chunk audio clips an AudioJobRunner
// collects from voice-svc back into a single playable file, entirely in
// memory: a conversation's worth of chunks is small enough that spilling to
// a temp file would only add failure modes without saving any memory.
package assembler

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// riffHeaderSize is the size of a canonical WAV file header up to (and
// including) the "data" chunk ID and its 4-byte length field.
const riffHeaderSize = 44

// Assemble concatenates a sequence of WAV clips, all assumed to share the
// same format (sample rate, bit depth, channel count) because they came
// from the same voice-svc synthesis call, into one WAV file.
func Assemble(clips [][]byte) ([]byte, error) {
	if len(clips) == 0 {
		return nil, fmt.Errorf("no audio clips to assemble")
	}
	if len(clips) == 1 {
		return clips[0], nil
	}

	first := clips[0]
	if len(first) < riffHeaderSize {
		return nil, fmt.Errorf("first audio clip is too short to contain a WAV header")
	}
	header := make([]byte, riffHeaderSize)
	copy(header, first[:riffHeaderSize])

	var pcm bytes.Buffer
	for i, clip := range clips {
		if len(clip) < riffHeaderSize {
			return nil, fmt.Errorf("audio clip %d is too short to contain a WAV header", i)
		}
		pcm.Write(clip[riffHeaderSize:])
	}

	dataSize := uint32(pcm.Len())
	riffSize := uint32(riffHeaderSize-8) + dataSize

	binary.LittleEndian.PutUint32(header[4:8], riffSize)
	binary.LittleEndian.PutUint32(header[40:44], dataSize)

	var out bytes.Buffer
	out.Write(header)
	out.Write(pcm.Bytes())
	return out.Bytes(), nil
}
