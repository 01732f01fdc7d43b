// Package deepgram implements streaming speech-to-text against the Deepgram
// realtime listen endpoint. Utterance boundaries come from the endpoint's
// speech_final flag, backed by UtteranceEnd events for trailing segments.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"

	"github.com/callwise/bridge-core/core/audio"
	"github.com/callwise/bridge-core/core/speechtotext"
)

const (
	defaultBaseURL  = "wss://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
	defaultLanguage = "en-US"

	// The endpoint drops connections idle for more than ten seconds.
	keepAliveAfter = 5 * time.Second
)

type TranscriptionClient struct {
	apiKey   string
	baseURL  string
	model    string
	language string

	conn        *websocket.Conn
	connMu      sync.Mutex
	lastAudioTs time.Time

	// accumulated collects is_final segments until the utterance boundary.
	// Touched only by the read loop.
	accumulated    string
	unendedSegment bool
}

type Option func(*TranscriptionClient)

// WithAPIKey overrides the DEEPGRAM_API_KEY environment variable.
func WithAPIKey(apiKey string) Option {
	return func(c *TranscriptionClient) { c.apiKey = apiKey }
}

// WithBaseURL points the client at a different listen endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *TranscriptionClient) { c.baseURL = baseURL }
}

func WithModel(model string) Option {
	return func(c *TranscriptionClient) { c.model = model }
}

func WithLanguage(language string) Option {
	return func(c *TranscriptionClient) { c.language = language }
}

func NewTranscriptionClient(opts ...Option) *TranscriptionClient {
	client := &TranscriptionClient{
		baseURL:  defaultBaseURL,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *TranscriptionClient) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	options := &speechtotext.TranscriptionOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(options)
	}

	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		return &speechtotext.ConnectError{Provider: "deepgram", Err: fmt.Errorf("invalid encoding: %w", err)}
	}

	apiKey := c.apiKey
	if apiKey == "" {
		var ok bool
		if apiKey, ok = os.LookupEnv("DEEPGRAM_API_KEY"); !ok {
			return &speechtotext.ConnectError{Provider: "deepgram", Err: fmt.Errorf("deepgram api key not found")}
		}
	}

	listenURL, err := url.Parse(c.baseURL)
	if err != nil {
		return &speechtotext.ConnectError{Provider: "deepgram", Err: fmt.Errorf("invalid base url: %w", err)}
	}
	queryParams := listenURL.Query()
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", c.model)
	queryParams.Set("language", c.language)
	queryParams.Set("smart_format", "true")
	queryParams.Set("interim_results", "true")
	queryParams.Set("utterance_end_ms", "1000")
	queryParams.Set("endpointing", "300")
	queryParams.Set("vad_events", "true")
	listenURL.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + apiKey}})
	if err != nil {
		return &speechtotext.ConnectError{Provider: "deepgram", Err: fmt.Errorf("failed to open socket connection: %w", err)}
	}

	c.connMu.Lock()
	c.conn = conn
	c.lastAudioTs = time.Now()
	c.connMu.Unlock()

	go c.readAndProcessMessages(ctx, conn, *options)

	return nil
}

func (c *TranscriptionClient) SendAudio(pcm []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("transcription connection closed")
	}

	c.lastAudioTs = time.Now()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return fmt.Errorf("failed to write audio to deepgram client: %w", err)
	}
	return nil
}

func (c *TranscriptionClient) Close(context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return nil
	}

	conn := c.conn
	c.conn = nil
	conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)})
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close deepgram websocket: %w", err)
	}
	return nil
}

func (c *TranscriptionClient) readAndProcessMessages(ctx context.Context, conn *websocket.Conn, options speechtotext.TranscriptionOptions) {
	keepAliveCtx, keepAliveCancel := context.WithCancel(ctx)
	defer keepAliveCancel()

	go c.keepAliveWhenIdle(keepAliveCtx)

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			c.connMu.Lock()
			stillOpen := c.conn != nil
			c.conn = nil
			c.connMu.Unlock()
			conn.Close()

			if stillOpen && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Error("deepgram transcription connection lost", "error", err)
				if options.ErrorCallback != nil {
					options.ErrorCallback(&speechtotext.TransportClosedError{Provider: "deepgram", Err: err})
				}
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			c.processMessage(msg, options)
		}
	}
}

func (c *TranscriptionClient) processMessage(msg []byte, options speechtotext.TranscriptionOptions) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("failed to unmarshal deepgram transcript message", "error", err)
			return
		}
		if len(msgResp.Channel.Alternatives) == 0 {
			return
		}
		transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		if len(transcript) == 0 {
			return
		}
		c.unendedSegment = true

		if msgResp.IsFinal {
			c.accumulated = strings.TrimSpace(c.accumulated + " " + transcript)
			if options.PartialTranscriptionCallback != nil {
				options.PartialTranscriptionCallback(c.accumulated)
			}
			if msgResp.SpeechFinal {
				c.onSpeechEnded(options)
			}
		} else if options.PartialTranscriptionCallback != nil {
			options.PartialTranscriptionCallback(strings.TrimSpace(c.accumulated + " " + transcript))
		}

	case api.TypeUtteranceEndResponse:
		if c.unendedSegment {
			c.onSpeechEnded(options)
		}

	case api.TypeSpeechStartedResponse:
		c.unendedSegment = true

	default:
		if parsedMsg.Type == "Error" {
			logger.Error("deepgram transcription error event", "message", string(msg))
			if options.ErrorCallback != nil {
				options.ErrorCallback(&speechtotext.ProtocolError{Provider: "deepgram", Message: string(msg)})
			}
			return
		}
		logger.Debug("ignoring deepgram message type", "type", parsedMsg.Type)
	}
}

// onSpeechEnded promotes the accumulated segments to exactly one final
// transcript. An empty accumulation produces no transcript.
func (c *TranscriptionClient) onSpeechEnded(options speechtotext.TranscriptionOptions) {
	final := strings.TrimSpace(c.accumulated)
	c.accumulated = ""
	c.unendedSegment = false

	if len(final) > 0 && options.TranscriptionCallback != nil {
		options.TranscriptionCallback(final)
	}
	if options.SpeechEndedCallback != nil {
		options.SpeechEndedCallback()
	}
}

// keepAliveWhenIdle keeps the connection open across silent stretches of the
// call without feeding the recognizer fake audio.
func (c *TranscriptionClient) keepAliveWhenIdle(ctx context.Context) {
	ticker := time.NewTicker(keepAliveAfter / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.connMu.Lock()
			conn := c.conn
			idle := time.Since(c.lastAudioTs) >= keepAliveAfter
			c.connMu.Unlock()

			if conn == nil {
				return
			}
			if !idle {
				continue
			}
			c.connMu.Lock()
			if c.conn != nil {
				if err := c.conn.WriteJSON(struct {
					Type string `json:"type"`
				}{Type: "KeepAlive"}); err != nil {
					logger.Warn("failed to send deepgram keepalive", "error", err)
				}
			}
			c.connMu.Unlock()
		}
	}
}
