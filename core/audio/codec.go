package audio

import (
	"encoding/binary"
	"fmt"
)

// DecodeError reports malformed audio input. Callers are expected to drop the
// offending unit of data and continue.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("audio decode error: %s", e.Reason)
}

const (
	mulawBias = 0x84
	mulawClip = 32635
)

var mulawToPCM = func() [256]int16 {
	var table [256]int16
	for i := range table {
		u := ^byte(i)
		exponent := (u >> 4) & 0x07
		mantissa := u & 0x0F
		magnitude := ((int32(mantissa) << 3) + mulawBias) << exponent
		magnitude -= mulawBias
		if u&0x80 != 0 {
			magnitude = -magnitude
		}
		table[i] = int16(magnitude)
	}
	return table
}()

// PCM16FromMulaw expands 8-bit mu-law samples to 16-bit signed little-endian
// linear PCM.
func PCM16FromMulaw(in []byte) []byte {
	out := make([]byte, len(in)*2)
	for i, b := range in {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(mulawToPCM[b]))
	}
	return out
}

// MulawFromPCM16 compresses 16-bit signed little-endian linear PCM to 8-bit
// mu-law. The compression is lossy. A trailing odd byte is ignored.
func MulawFromPCM16(in []byte) []byte {
	out := make([]byte, len(in)/2)
	for i := range out {
		sample := int32(int16(binary.LittleEndian.Uint16(in[i*2:])))

		var sign byte
		if sample < 0 {
			sign = 0x80
			sample = -sample
		}
		if sample > mulawClip {
			sample = mulawClip
		}
		sample += mulawBias

		exponent := byte(7)
		for mask := int32(0x4000); exponent > 0 && sample&mask == 0; mask >>= 1 {
			exponent--
		}
		mantissa := byte(sample>>(exponent+3)) & 0x0F

		out[i] = ^(sign | exponent<<4 | mantissa)
	}
	return out
}

const wavHeaderSize = 44

// WAVWrap wraps raw 16-bit mono linear PCM in a minimal RIFF/WAVE container.
func WAVWrap(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	out := make([]byte, wavHeaderSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], channels)
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[wavHeaderSize:], pcm)
	return out
}

// IsWAV reports whether the buffer starts with a RIFF magic.
func IsWAV(b []byte) bool {
	return len(b) >= 4 && string(b[0:4]) == "RIFF"
}

// PCMFromWAV strips the container from a WAVE buffer and returns the raw
// frames of its data chunk.
func PCMFromWAV(b []byte) ([]byte, error) {
	if !IsWAV(b) {
		return nil, &DecodeError{Reason: "missing RIFF magic"}
	}
	if len(b) < 12 || string(b[8:12]) != "WAVE" {
		return nil, &DecodeError{Reason: "missing WAVE identifier"}
	}

	// Walk the chunk list until the data chunk.
	offset := 12
	for {
		if offset+8 > len(b) {
			return nil, &DecodeError{Reason: "no data chunk"}
		}
		chunkID := string(b[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(b[offset+4 : offset+8]))
		if chunkSize < 0 || offset+8+chunkSize > len(b) {
			return nil, &DecodeError{Reason: fmt.Sprintf("truncated %q chunk", chunkID)}
		}
		if chunkID == "data" {
			return b[offset+8 : offset+8+chunkSize], nil
		}
		offset += 8 + chunkSize
		// Chunks are word aligned.
		if chunkSize%2 == 1 {
			offset++
		}
	}
}
