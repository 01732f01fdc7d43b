package bridge

import (
	"time"

	"github.com/callwise/bridge-core/core/audio"
	"github.com/callwise/bridge-core/core/dialogue"
	"github.com/callwise/bridge-core/core/events"
)

const (
	defaultFrameDuration = 100 * time.Millisecond

	// Inbound audio waiting for the transcription forwarder. Roughly three
	// seconds of audio at the default frame duration before frames drop.
	audioQueueCapacity = 32
	// Finalised transcripts waiting for the dialogue step.
	transcriptQueueCapacity = 4
	// Reply turns waiting for the playback worker.
	turnQueueCapacity = 4
)

type SessionOption func(*CallSession)

// WithSpeechToText sets the transcription upstream. Without one the session
// runs playback-only: the greeting is spoken, caller audio is discarded.
func WithSpeechToText(client SpeechToText) SessionOption {
	return func(s *CallSession) { s.stt = client }
}

// WithTextToSpeech sets the synthesis upstream. Without one the session can
// still transcribe, but nothing is spoken back.
func WithTextToSpeech(client TextToSpeech) SessionOption {
	return func(s *CallSession) { s.tts = client }
}

// WithDialogueStep sets the reply selector invoked on each final transcript.
func WithDialogueStep(step dialogue.Step) SessionOption {
	return func(s *CallSession) { s.step = step }
}

// WithGreeting sets the text spoken as soon as the media stream starts.
func WithGreeting(text string) SessionOption {
	return func(s *CallSession) { s.greeting = text }
}

// WithFrameDuration sets the playback duration of each outbound media frame.
func WithFrameDuration(d time.Duration) SessionOption {
	return func(s *CallSession) { s.frameDuration = d }
}

// WithInputEncoding declares the caller-side audio encoding. The start
// event's sample rate, when present, overrides the rate set here.
func WithInputEncoding(info audio.EncodingInfo) SessionOption {
	return func(s *CallSession) { s.inputEncoding = info }
}

// WithEventEmitter registers a callback observing the session's typed events.
func WithEventEmitter(emit func(events.Event)) SessionOption {
	return func(s *CallSession) { s.emit = emit }
}
