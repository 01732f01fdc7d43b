// Package bridge runs one phone call's real-time loop: caller audio from the
// telephony media stream is forwarded to a transcription upstream, finalised
// transcripts pass through a dialogue step, and the selected reply is
// synthesized and paced back out over the same stream.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/callwise/bridge-core/core/audio"
	"github.com/callwise/bridge-core/core/dialogue"
	"github.com/callwise/bridge-core/core/events"
	"github.com/callwise/bridge-core/core/speechtotext"
	"github.com/callwise/bridge-core/core/telephony"
	"github.com/callwise/bridge-core/core/texttospeech"
)

// SpeechToText is the transcription upstream contract the session drives.
type SpeechToText interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(pcm []byte) error
	Close(ctx context.Context) error
}

// TextToSpeech is the synthesis upstream contract the session drives.
type TextToSpeech interface {
	Connect(ctx context.Context, opts ...texttospeech.VoiceOption) error
	EncodingInfo() audio.EncodingInfo
	Synthesize(ctx context.Context, text string) (texttospeech.SpeechStream, error)
	Close(ctx context.Context) error
}

// TelephonySender is the outbound half of the telephony socket. A
// *websocket.Conn satisfies it directly.
type TelephonySender interface {
	WriteJSON(v any) error
	Close() error
}

// State is the session lifecycle phase. Transitions are driven by telephony
// events on one side and playback progress on the other.
type State string

const (
	StateConnecting State = "CONNECTING"
	StateGreeting   State = "GREETING"
	StateListening  State = "LISTENING"
	StateProcessing State = "PROCESSING"
	StateSpeaking   State = "SPEAKING"
	StateClosing    State = "CLOSING"
	StateClosed     State = "CLOSED"
)

// playbackTurn is one utterance queued for synthesis and paced playback.
type playbackTurn struct {
	text string
	mark string
	// state is held while the turn plays, GREETING for the opening turn and
	// SPEAKING for dialogue replies.
	state State
}

// CallSession bridges one call. Feed it decoded telephony events through
// [CallSession.HandleEvent] from the transport read loop; everything else
// runs on the session's own workers.
type CallSession struct {
	sender   TelephonySender
	senderMu sync.Mutex

	stt  SpeechToText
	tts  TextToSpeech
	step dialogue.Step

	greeting      string
	frameDuration time.Duration
	inputEncoding audio.EncodingInfo
	emit          func(events.Event)

	stateMu     sync.Mutex
	state       State
	pendingMark string

	streamSID string

	sttReady atomic.Bool
	ttsReady atomic.Bool

	audioQueue  chan []byte
	transcripts chan string
	turns       chan playbackTurn

	droppedFrames atomic.Int64

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error

	// turnCount is touched only by the dialogue worker, sequence and chunk
	// only by the playback worker.
	turnCount int
	sequence  int
	chunk     int
}

func NewCallSession(sender TelephonySender, opts ...SessionOption) *CallSession {
	session := &CallSession{
		sender:        sender,
		frameDuration: defaultFrameDuration,
		inputEncoding: audio.GetDefaultEncodingInfo(),
		emit:          func(events.Event) {},
		state:         StateConnecting,
		audioQueue:    make(chan []byte, audioQueueCapacity),
		transcripts:   make(chan string, transcriptQueueCapacity),
		turns:         make(chan playbackTurn, turnQueueCapacity),
	}
	for _, opt := range opts {
		opt(session)
	}
	return session
}

// HandleEvent dispatches one inbound telephony event. It is meant to be
// called from a single transport read loop; it is not safe for concurrent
// callers.
func (s *CallSession) HandleEvent(ctx context.Context, event telephony.Event) error {
	switch event := event.(type) {
	case telephony.Connected:
		logger.Debug("telephony transport connected")
	case telephony.Start:
		return s.handleStart(ctx, event)
	case telephony.Media:
		s.handleMedia(event)
	case telephony.Mark:
		s.handleMark(event)
	case telephony.Stop:
		logger.Info("telephony stream stopped", "stream_sid", s.streamSID)
		s.emit(events.NewCallEnded(s.streamSID))
		return s.Close(ctx)
	case telephony.Unknown:
		logger.Debug("ignoring unknown telephony event", "type", event.Type)
	}
	return nil
}

func (s *CallSession) handleStart(ctx context.Context, event telephony.Start) error {
	if s.State() != StateConnecting {
		return fmt.Errorf("unexpected start event in state %s", s.State())
	}

	s.streamSID = event.StreamSID
	if s.streamSID == "" {
		// Some applets omit the stream id; playback still needs one.
		s.streamSID = uuid.NewString()
	}
	if event.SampleRate > 0 {
		s.inputEncoding.SampleRate = event.SampleRate
	}

	// The session outlives the read loop's per-message context.
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	logger.Info("call started", "stream_sid", s.streamSID,
		"sample_rate", s.inputEncoding.SampleRate, "encoding", s.inputEncoding.Format.Name())
	s.emit(events.NewCallStarted(s.streamSID))

	s.connectUpstreams()

	s.wg.Add(3)
	go s.runTranscriptionForwarder()
	go s.runDialogue()
	go s.runPlayback()

	if s.ttsReady.Load() && s.greeting != "" {
		s.setState(StateGreeting)
		s.enqueueTurn(playbackTurn{text: s.greeting, mark: "greeting_end", state: StateGreeting})
	} else {
		s.setState(StateListening)
	}
	return nil
}

// connectUpstreams opens both providers. A failed upstream degrades the
// session instead of ending the call: without transcription the greeting is
// still spoken, without synthesis the call is listen-only.
func (s *CallSession) connectUpstreams() {
	if s.stt != nil {
		// Inbound frames are normalized to linear PCM before forwarding, so
		// the upstream must be configured for what it actually receives, not
		// for the caller-side wire encoding.
		err := s.stt.Transcribe(s.ctx,
			speechtotext.WithEncodingInfo(audio.EncodingInfo{
				SampleRate: s.inputEncoding.SampleRate,
				Format:     audio.EncodingLinear16,
			}),
			speechtotext.WithPartialTranscriptionCallback(s.onPartialTranscript),
			speechtotext.WithTranscriptionCallback(s.onFinalTranscript),
			speechtotext.WithErrorCallback(s.onTranscriptionError),
		)
		if err != nil {
			logger.Error("transcription upstream unavailable, continuing without it", "error", err)
		}
		s.sttReady.Store(err == nil)
	}

	if s.tts != nil {
		err := s.tts.Connect(s.ctx)
		if err != nil {
			logger.Error("synthesis upstream unavailable, continuing without it", "error", err)
		}
		s.ttsReady.Store(err == nil)
	}
}

func (s *CallSession) handleMark(event telephony.Mark) {
	s.stateMu.Lock()
	expected := s.pendingMark
	if event.Name == expected && expected != "" {
		s.pendingMark = ""
	}
	s.stateMu.Unlock()

	if event.Name != expected || expected == "" {
		logger.Debug("ignoring unexpected mark", "name", event.Name)
		return
	}

	// The peer's mark is an informational playback ack; the session moved on
	// when the mark was sent.
	logger.Debug("peer acknowledged playback", "mark", event.Name)
	s.emit(events.NewAssistantPlaybackEnded(event.Name))
}

func (s *CallSession) onPartialTranscript(transcript string) {
	s.emit(events.NewUserTranscriptPartialUpdated(transcript))
}

func (s *CallSession) onFinalTranscript(transcript string) {
	logger.Info("final transcript", "transcript", transcript)
	s.emit(events.NewUserTranscriptFinal(transcript))

	if s.State() == StateListening {
		s.setState(StateProcessing)
	}

	select {
	case s.transcripts <- transcript:
	default:
		logger.Warn("dropping final transcript, dialogue queue full", "transcript", transcript)
	}
}

func (s *CallSession) onTranscriptionError(err error) {
	logger.Error("transcription upstream lost, continuing without it", "error", err)
	s.sttReady.Store(false)
}

// runDialogue turns each finalised transcript into a queued playback turn.
func (s *CallSession) runDialogue() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case transcript := <-s.transcripts:
			s.respond(transcript)
		}
	}
}

func (s *CallSession) respond(transcript string) {
	ctx, span := tracer.Start(s.ctx, "respond to transcript")
	defer span.End()

	if s.step == nil {
		s.setState(StateListening)
		return
	}

	reply, err := s.step.Respond(ctx, transcript)
	if err != nil {
		logger.Error("dialogue step failed, skipping turn", "error", err)
		s.setState(StateListening)
		return
	}
	s.emit(events.NewAssistantResponseFinal(reply))

	if reply == "" || !s.ttsReady.Load() {
		s.setState(StateListening)
		return
	}

	s.turnCount++
	s.enqueueTurn(playbackTurn{
		text:  reply,
		mark:  fmt.Sprintf("turn_%d_end", s.turnCount),
		state: StateSpeaking,
	})
}

func (s *CallSession) enqueueTurn(turn playbackTurn) {
	select {
	case s.turns <- turn:
	case <-s.ctx.Done():
	}
}

// Close tears the session down: workers are cancelled, both upstreams and
// the telephony socket are closed. Safe to call more than once.
func (s *CallSession) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.setState(StateClosing)
		if s.cancel != nil {
			s.cancel()
		}

		var errs []error
		if s.stt != nil {
			errs = append(errs, s.stt.Close(ctx))
		}
		if s.tts != nil {
			errs = append(errs, s.tts.Close(ctx))
		}
		errs = append(errs, s.sender.Close())
		s.wg.Wait()

		if dropped := s.droppedFrames.Load(); dropped > 0 {
			logger.Warn("session dropped inbound audio frames", "count", dropped)
		}

		s.closeErr = errors.Join(errs...)
		s.setState(StateClosed)
	})
	return s.closeErr
}

func (s *CallSession) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *CallSession) setState(to State) {
	s.stateMu.Lock()
	from := s.state
	// Teardown is one-way.
	if from == to || from == StateClosed || (from == StateClosing && to != StateClosed) {
		s.stateMu.Unlock()
		return
	}
	s.state = to
	s.stateMu.Unlock()

	logger.Debug("session state changed", "from", string(from), "to", string(to))
	s.emit(events.NewCallStateChanged(string(from), string(to)))
}
