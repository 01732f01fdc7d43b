package speechtotext

import "github.com/callwise/bridge-core/core/audio"

type TranscriptionOptions struct {
	// PartialTranscriptionCallback is called with the latest partial
	// transcript snapshot. Each call replaces the previous snapshot.
	PartialTranscriptionCallback func(transcript string)
	// TranscriptionCallback is called exactly once per utterance boundary
	// with the finalised transcript. It is never called with an empty string.
	TranscriptionCallback func(transcript string)

	SpeechEndedCallback func()
	// ErrorCallback is called when the connection to the transcription
	// service is lost or the service reports a protocol error. The receive
	// loop has terminated by the time it is called.
	ErrorCallback func(err error)

	EncodingInfo audio.EncodingInfo
}

type TranscriptionOption func(*TranscriptionOptions)

func WithTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.TranscriptionCallback = callback
	}
}

func WithPartialTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.PartialTranscriptionCallback = callback
	}
}

func WithSpeechEndedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SpeechEndedCallback = callback
	}
}

func WithErrorCallback(callback func(err error)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.ErrorCallback = callback
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EncodingInfo = encodingInfo
	}
}
