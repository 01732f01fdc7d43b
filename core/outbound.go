package bridge

import (
	"time"

	"github.com/callwise/bridge-core/core/events"
	"github.com/callwise/bridge-core/core/telephony"
)

// runPlayback synthesizes queued turns and paces their audio onto the
// telephony socket one fixed-duration frame at a time.
func (s *CallSession) runPlayback() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case turn := <-s.turns:
			s.speak(turn)
		}
	}
}

func (s *CallSession) speak(turn playbackTurn) {
	ctx, span := tracer.Start(s.ctx, "speak turn")
	defer span.End()

	s.setState(turn.state)

	stream, err := s.tts.Synthesize(ctx, turn.text)
	if err != nil {
		logger.Error("failed to start synthesis turn", "error", err)
		s.setState(StateListening)
		return
	}

	encoding := s.tts.EncodingInfo()
	frameBytes := encoding.BytesForDuration(s.frameDuration)
	sent := false

	// Synthesis chunk sizes are the upstream's business; playback re-slices
	// them into frames of exactly frameBytes.
	var buffered []byte
	for chunk := range stream.Audio {
		buffered = append(buffered, chunk...)
		for len(buffered) >= frameBytes {
			if !s.sendFrame(buffered[:frameBytes:frameBytes]) {
				return
			}
			buffered = buffered[frameBytes:]
			sent = true
			if !s.pace() {
				return
			}
		}
	}
	if err := stream.Err(); err != nil {
		// The turn is aborted: the trailing fragment is dropped and no mark
		// is sent, so the peer never sees an incomplete turn as finished.
		logger.Error("synthesis turn terminated abnormally, aborting turn", "error", err)
		s.setState(StateListening)
		return
	}

	if len(buffered) > 0 {
		frame := make([]byte, frameBytes)
		n := copy(frame, buffered)
		silence := encoding.SilenceValue()
		for i := n; i < frameBytes; i++ {
			frame[i] = silence
		}
		if !s.sendFrame(frame) {
			return
		}
		sent = true
	}

	if sent {
		s.sendMark(turn.mark)
	}
	s.setState(StateListening)
}

func (s *CallSession) sendFrame(frame []byte) bool {
	s.sequence++
	s.chunk++
	msg := telephony.NewMediaEvent(s.sequence, s.streamSID, s.chunk, time.Now(), frame)

	s.senderMu.Lock()
	err := s.sender.WriteJSON(msg)
	s.senderMu.Unlock()
	if err != nil {
		logger.Error("telephony socket write failed, ending playback", "error", err)
		s.cancel()
		return false
	}

	s.emit(events.NewAssistantPlaybackFrame(frame))
	return true
}

func (s *CallSession) sendMark(name string) {
	s.stateMu.Lock()
	s.pendingMark = name
	s.stateMu.Unlock()

	s.sequence++
	msg := telephony.NewMarkEvent(s.sequence, s.streamSID, name)

	s.senderMu.Lock()
	err := s.sender.WriteJSON(msg)
	s.senderMu.Unlock()
	if err != nil {
		logger.Error("telephony socket write failed, ending playback", "error", err)
		s.cancel()
	}
}

// pace holds playback for one frame duration so the peer's jitter buffer is
// fed in real time instead of being flooded.
func (s *CallSession) pace() bool {
	select {
	case <-s.ctx.Done():
		return false
	case <-time.After(s.frameDuration):
		return true
	}
}
