package texttospeech

import "github.com/callwise/bridge-core/core/audio"

// VoiceConfig is the one-time synthesis configuration echoed to the upstream
// immediately after connecting.
type VoiceConfig struct {
	TargetLanguageCode string
	Speaker            string
	EncodingInfo       audio.EncodingInfo
}

type VoiceOption func(*VoiceConfig)

func WithTargetLanguageCode(code string) VoiceOption {
	return func(c *VoiceConfig) { c.TargetLanguageCode = code }
}

func WithSpeaker(speaker string) VoiceOption {
	return func(c *VoiceConfig) { c.Speaker = speaker }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) VoiceOption {
	return func(c *VoiceConfig) {
		if encodingInfo.IsZero() {
			return
		}
		c.EncodingInfo = encodingInfo
	}
}

// SpeechStream is the lazy, finite audio sequence produced by one synthesis
// turn. Chunks arrive in generation order; the sequence terminates when the
// upstream signals completion or an error.
type SpeechStream interface {
	// Audio yields decoded audio chunks as they arrive. It is usable as a
	// range-over-function iterator and returns once the turn completes,
	// fails, or the yield function returns false.
	Audio(yield func(audio []byte) bool)
	// Err reports how the sequence terminated. It is only meaningful after
	// Audio has returned and is nil for a clean completion.
	Err() error
}
