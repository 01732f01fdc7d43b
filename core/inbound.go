package bridge

import (
	"github.com/callwise/bridge-core/core/audio"
	"github.com/callwise/bridge-core/core/telephony"
)

// handleMedia normalizes one inbound frame and hands it to the transcription
// forwarder. A malformed frame is dropped and logged, never fatal, and a full
// queue sheds the frame rather than stalling the transport read loop.
func (s *CallSession) handleMedia(event telephony.Media) {
	switch s.State() {
	case StateConnecting, StateClosing, StateClosed:
		return
	}
	if !s.sttReady.Load() {
		return
	}

	pcm, err := s.normalizeInbound(event.Payload)
	if err != nil {
		logger.Warn("dropping undecodable media frame", "chunk", event.Chunk, "error", err)
		return
	}

	select {
	case s.audioQueue <- pcm:
	default:
		s.droppedFrames.Add(1)
		logger.Warn("dropping media frame, transcription queue full", "chunk", event.Chunk)
	}
}

// normalizeInbound converts whatever the telephony peer sent into the linear
// PCM the transcription upstream was configured for. Frames arrive either as
// raw samples in the session's input encoding or as complete WAV files.
func (s *CallSession) normalizeInbound(payload []byte) ([]byte, error) {
	if audio.IsWAV(payload) {
		return audio.PCMFromWAV(payload)
	}
	if s.inputEncoding.Format == audio.EncodingMulaw {
		return audio.PCM16FromMulaw(payload), nil
	}
	return payload, nil
}

// runTranscriptionForwarder drains the inbound audio queue into the
// transcription upstream, keeping websocket writes off the transport read
// loop.
func (s *CallSession) runTranscriptionForwarder() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case pcm := <-s.audioQueue:
			if err := s.stt.SendAudio(pcm); err != nil {
				logger.Warn("failed to forward audio to transcription upstream", "error", err)
			}
		}
	}
}
