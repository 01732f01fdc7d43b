// Package sarvam implements streaming speech-to-text against the Sarvam
// real-time transcription websocket.
package sarvam

import (
	"sync"
	"time"

	"github.com/callwise/bridge-core/core/audio"
	"github.com/gorilla/websocket"
)

const (
	defaultBaseURL  = "wss://api.sarvam.ai/speech-to-text/ws"
	defaultLanguage = "en-IN"
	defaultModel    = "saarika:v2.5"

	// defaultIdleFlushAfter bounds how long a trailing utterance can sit in
	// the upstream buffer before a proactive flush finalises it.
	defaultIdleFlushAfter = 1500 * time.Millisecond
)

type TranscriptionClient struct {
	apiKey         string
	baseURL        string
	language       string
	model          string
	idleFlushAfter time.Duration

	conn     *websocket.Conn
	connMu   sync.Mutex
	encoding audio.EncodingInfo

	// lastAudioTs and unflushed drive the idle-flush watchdog.
	lastAudioTs time.Time
	unflushed   bool

	partial   string
	partialMu sync.Mutex
}

type Option func(*TranscriptionClient)

// WithAPIKey overrides the SARVAM_API_KEY environment variable.
func WithAPIKey(apiKey string) Option {
	return func(c *TranscriptionClient) { c.apiKey = apiKey }
}

// WithBaseURL points the client at a different websocket endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *TranscriptionClient) { c.baseURL = baseURL }
}

func WithLanguage(language string) Option {
	return func(c *TranscriptionClient) { c.language = language }
}

func WithModel(model string) Option {
	return func(c *TranscriptionClient) { c.model = model }
}

// WithIdleFlushAfter overrides how long the client waits without inbound
// audio before flushing the upstream buffer.
func WithIdleFlushAfter(d time.Duration) Option {
	return func(c *TranscriptionClient) {
		if d > 0 {
			c.idleFlushAfter = d
		}
	}
}

func NewTranscriptionClient(opts ...Option) *TranscriptionClient {
	client := &TranscriptionClient{
		baseURL:        defaultBaseURL,
		language:       defaultLanguage,
		model:          defaultModel,
		idleFlushAfter: defaultIdleFlushAfter,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}
