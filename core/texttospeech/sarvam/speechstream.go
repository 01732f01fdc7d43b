package sarvam

import "sync"

// speechStream buffers one turn's synthesized audio between the websocket
// read loop and the consumer draining it.
type speechStream struct {
	mu sync.Mutex

	chunks   [][]byte
	playhead int

	done bool
	err  error

	updateSignal chan struct{}
}

func newSpeechStream() *speechStream {
	return &speechStream{updateSignal: make(chan struct{}, 1)}
}

func (s *speechStream) addAudio(audio []byte) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.chunks = append(s.chunks, audio)
	s.mu.Unlock()
	s.signalUpdate()
}

func (s *speechStream) finish(err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.err = err
	s.mu.Unlock()
	s.signalUpdate()
}

// Audio yields buffered chunks in arrival order and blocks until the turn
// terminates.
func (s *speechStream) Audio(yield func(audio []byte) bool) {
	for {
		s.mu.Lock()
		if s.playhead < len(s.chunks) {
			chunk := s.chunks[s.playhead]
			s.playhead++
			s.mu.Unlock()
			if !yield(chunk) {
				return
			}
			continue
		}
		done := s.done
		s.mu.Unlock()

		if done {
			return
		}
		<-s.updateSignal
	}
}

func (s *speechStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *speechStream) signalUpdate() {
	select {
	case s.updateSignal <- struct{}{}:
	default:
	}
}
