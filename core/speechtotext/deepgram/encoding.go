package deepgram

import (
	"fmt"

	"github.com/callwise/bridge-core/core/audio"
)

// convertEncoding validates a session encoding against what the listen
// endpoint accepts. The companded formats are only specified at 8 kHz.
func convertEncoding(encoding audio.EncodingInfo) (audio.EncodingInfo, error) {
	switch encoding.SampleRate {
	case 8000, 16000, 24000, 32000, 48000:
	default:
		return audio.EncodingInfo{}, fmt.Errorf("unsupported sample rate %d", encoding.SampleRate)
	}

	switch encoding.Format {
	case audio.EncodingLinear16:
	case audio.EncodingALaw, audio.EncodingMulaw:
		if encoding.SampleRate != 8000 {
			return audio.EncodingInfo{}, fmt.Errorf("%s encoding requires an 8000 sample rate", encoding.Format.Name())
		}
	default:
		return audio.EncodingInfo{}, fmt.Errorf("unsupported encoding %q", encoding.Format.Name())
	}

	return encoding, nil
}
