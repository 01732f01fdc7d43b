package sarvam

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/callwise/bridge-core/core/speechtotext"
	"github.com/gorilla/websocket"
)

// transcriptionServer is a loopback stand-in for the Sarvam websocket.
type transcriptionServer struct {
	t *testing.T

	mu       sync.Mutex
	conn     *websocket.Conn
	received []map[string]any
	query    map[string]string
	apiKey   string
}

func newTranscriptionServer(t *testing.T) (*transcriptionServer, *httptest.Server) {
	server := &transcriptionServer{t: t}
	upgrader := websocket.Upgrader{}

	httpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		server.mu.Lock()
		server.apiKey = r.Header.Get("api-subscription-key")
		server.query = map[string]string{}
		for key, values := range r.URL.Query() {
			server.query[key] = values[0]
		}
		server.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("failed to upgrade test connection: %v", err)
			return
		}
		server.mu.Lock()
		server.conn = conn
		server.mu.Unlock()

		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			server.mu.Lock()
			server.received = append(server.received, msg)
			server.mu.Unlock()
		}
	}))
	t.Cleanup(httpServer.Close)

	return server, httpServer
}

func (s *transcriptionServer) send(t *testing.T, msg string) {
	deadline := time.Now().Add(time.Second)
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				t.Fatalf("failed to write test message: %v", err)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("test server never accepted a connection")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (s *transcriptionServer) waitFor(t *testing.T, match func(map[string]any) bool) map[string]any {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		for _, msg := range s.received {
			if match(msg) {
				s.mu.Unlock()
				return msg
			}
		}
		s.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("test server never received the expected message")
	return nil
}

func wsURL(httpServer *httptest.Server) string {
	return "ws" + strings.TrimPrefix(httpServer.URL, "http")
}

func TestTranscribeConnectsWithProtocolParameters(t *testing.T) {
	server, httpServer := newTranscriptionServer(t)

	client := NewTranscriptionClient(
		WithAPIKey("test-key"),
		WithBaseURL(wsURL(httpServer)),
		WithLanguage("hi-IN"),
		WithModel("saarika:v2.5"),
	)
	if err := client.Transcribe(context.Background()); err != nil {
		t.Fatalf("expected transcribe to succeed, got %v", err)
	}
	defer client.Close(context.Background())

	if err := client.SendAudio([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("expected send audio to succeed, got %v", err)
	}
	server.waitFor(t, func(msg map[string]any) bool {
		_, ok := msg["audio"]
		return ok
	})

	server.mu.Lock()
	defer server.mu.Unlock()
	if server.apiKey != "test-key" {
		t.Fatalf("expected subscription key header, got %q", server.apiKey)
	}
	if server.query["language-code"] != "hi-IN" {
		t.Fatalf("expected language query parameter, got %q", server.query["language-code"])
	}
	if server.query["sample_rate"] != "8000" {
		t.Fatalf("expected default sample rate 8000, got %q", server.query["sample_rate"])
	}
	if server.query["input_audio_codec"] != "linear16" {
		t.Fatalf("expected default codec linear16, got %q", server.query["input_audio_codec"])
	}
	if server.query["vad_signals"] != "true" {
		t.Fatalf("expected vad signals enabled, got %q", server.query["vad_signals"])
	}

	audioMsg := server.received[len(server.received)-1]["audio"].(map[string]any)
	if audioMsg["encoding"] != "linear16" || audioMsg["sample_rate"] != float64(8000) {
		t.Fatalf("unexpected audio envelope: %v", audioMsg)
	}
}

func TestTranscribeConnectFailureIsTyped(t *testing.T) {
	client := NewTranscriptionClient(WithAPIKey("key"), WithBaseURL("ws://127.0.0.1:1"))
	err := client.Transcribe(context.Background())
	if err == nil {
		t.Fatalf("expected a connect error")
	}
	var connectErr *speechtotext.ConnectError
	if !errors.As(err, &connectErr) {
		t.Fatalf("expected *speechtotext.ConnectError, got %T", err)
	}
}

func TestPartialsPromoteToSingleFinalOnEndSpeech(t *testing.T) {
	server, httpServer := newTranscriptionServer(t)

	partials := []string{}
	finals := []string{}
	ended := 0
	var mu sync.Mutex

	client := NewTranscriptionClient(WithAPIKey("key"), WithBaseURL(wsURL(httpServer)))
	err := client.Transcribe(context.Background(),
		speechtotext.WithPartialTranscriptionCallback(func(transcript string) {
			mu.Lock()
			partials = append(partials, transcript)
			mu.Unlock()
		}),
		speechtotext.WithTranscriptionCallback(func(transcript string) {
			mu.Lock()
			finals = append(finals, transcript)
			mu.Unlock()
		}),
		speechtotext.WithSpeechEndedCallback(func() {
			mu.Lock()
			ended++
			mu.Unlock()
		}),
	)
	if err != nil {
		t.Fatalf("expected transcribe to succeed, got %v", err)
	}
	defer client.Close(context.Background())

	if err := client.SendAudio([]byte{0x00}); err != nil {
		t.Fatalf("expected send audio to succeed, got %v", err)
	}
	server.send(t, `{"type":"data","data":{"transcript":"hel"}}`)
	server.send(t, `{"type":"data","data":{"transcript":"hello"}}`)
	server.send(t, `{"type":"events","data":{"signal_type":"END_SPEECH"}}`)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		done := ended > 0
		mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("speech-ended callback never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(partials) != 2 || partials[0] != "hel" || partials[1] != "hello" {
		t.Fatalf("expected partials [hel hello], got %v", partials)
	}
	if len(finals) != 1 || finals[0] != "hello" {
		t.Fatalf("expected exactly one final transcript \"hello\", got %v", finals)
	}
}

func TestEndSpeechWithEmptyBufferProducesNoFinal(t *testing.T) {
	server, httpServer := newTranscriptionServer(t)

	finals := []string{}
	ended := make(chan struct{}, 1)
	var mu sync.Mutex

	client := NewTranscriptionClient(WithAPIKey("key"), WithBaseURL(wsURL(httpServer)))
	err := client.Transcribe(context.Background(),
		speechtotext.WithTranscriptionCallback(func(transcript string) {
			mu.Lock()
			finals = append(finals, transcript)
			mu.Unlock()
		}),
		speechtotext.WithSpeechEndedCallback(func() {
			select {
			case ended <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		t.Fatalf("expected transcribe to succeed, got %v", err)
	}
	defer client.Close(context.Background())

	if err := client.SendAudio([]byte{0x00}); err != nil {
		t.Fatalf("expected send audio to succeed, got %v", err)
	}
	server.send(t, `{"type":"events","data":{"signal_type":"END_SPEECH"}}`)

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatalf("speech-ended callback never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(finals) != 0 {
		t.Fatalf("expected no final transcript for silence, got %v", finals)
	}
}

func TestIdleWatchdogFlushesTrailingAudio(t *testing.T) {
	server, httpServer := newTranscriptionServer(t)

	client := NewTranscriptionClient(
		WithAPIKey("key"),
		WithBaseURL(wsURL(httpServer)),
		WithIdleFlushAfter(40*time.Millisecond),
	)
	if err := client.Transcribe(context.Background()); err != nil {
		t.Fatalf("expected transcribe to succeed, got %v", err)
	}
	defer client.Close(context.Background())

	if err := client.SendAudio([]byte{0x00, 0x01}); err != nil {
		t.Fatalf("expected send audio to succeed, got %v", err)
	}

	server.waitFor(t, func(msg map[string]any) bool {
		return msg["type"] == "flush"
	})
}

func TestConnectionLossSurfacesTransportError(t *testing.T) {
	server, httpServer := newTranscriptionServer(t)

	errs := make(chan error, 1)
	client := NewTranscriptionClient(WithAPIKey("key"), WithBaseURL(wsURL(httpServer)))
	err := client.Transcribe(context.Background(),
		speechtotext.WithErrorCallback(func(err error) {
			select {
			case errs <- err:
			default:
			}
		}),
	)
	if err != nil {
		t.Fatalf("expected transcribe to succeed, got %v", err)
	}

	if err := client.SendAudio([]byte{0x00}); err != nil {
		t.Fatalf("expected send audio to succeed, got %v", err)
	}
	server.waitFor(t, func(msg map[string]any) bool {
		_, ok := msg["audio"]
		return ok
	})

	server.mu.Lock()
	server.conn.Close()
	server.mu.Unlock()

	select {
	case err := <-errs:
		var transportErr *speechtotext.TransportClosedError
		if !errors.As(err, &transportErr) {
			t.Fatalf("expected *speechtotext.TransportClosedError, got %T", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("error callback never fired after connection loss")
	}
}

func TestProtocolErrorEventReachesCallback(t *testing.T) {
	server, httpServer := newTranscriptionServer(t)

	errs := make(chan error, 1)
	client := NewTranscriptionClient(WithAPIKey("key"), WithBaseURL(wsURL(httpServer)))
	err := client.Transcribe(context.Background(),
		speechtotext.WithErrorCallback(func(err error) {
			select {
			case errs <- err:
			default:
			}
		}),
	)
	if err != nil {
		t.Fatalf("expected transcribe to succeed, got %v", err)
	}
	defer client.Close(context.Background())

	server.send(t, `{"type":"error","data":{"message":"bad frame"}}`)

	select {
	case err := <-errs:
		var protocolErr *speechtotext.ProtocolError
		if !errors.As(err, &protocolErr) {
			t.Fatalf("expected *speechtotext.ProtocolError, got %T", err)
		}
		if !strings.Contains(err.Error(), "bad frame") {
			t.Fatalf("expected error message to be preserved, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("error callback never fired for protocol error")
	}
}
