// Package sarvam implements streaming text-to-speech against the Sarvam
// real-time synthesis websocket.
package sarvam

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"

	"github.com/callwise/bridge-core/core/audio"
	"github.com/callwise/bridge-core/core/texttospeech"
	"github.com/gorilla/websocket"
)

const (
	defaultBaseURL = "wss://api.sarvam.ai/text-to-speech/ws"
	defaultModel   = "bulbul:v2"
	defaultSpeaker = "meera"
)

type SynthesisClient struct {
	apiKey  string
	baseURL string
	model   string
	voice   texttospeech.VoiceConfig

	conn   *websocket.Conn
	connMu sync.Mutex

	// current is the one in-flight synthesis turn. Concurrent turns on the
	// same connection are disallowed.
	current   *speechStream
	currentMu sync.Mutex
}

type Option func(*SynthesisClient)

// WithAPIKey overrides the SARVAM_API_KEY environment variable.
func WithAPIKey(apiKey string) Option {
	return func(c *SynthesisClient) { c.apiKey = apiKey }
}

// WithBaseURL points the client at a different websocket endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *SynthesisClient) { c.baseURL = baseURL }
}

func WithModel(model string) Option {
	return func(c *SynthesisClient) { c.model = model }
}

func NewSynthesisClient(opts ...Option) *SynthesisClient {
	client := &SynthesisClient{
		baseURL: defaultBaseURL,
		model:   defaultModel,
		voice: texttospeech.VoiceConfig{
			TargetLanguageCode: "en-IN",
			Speaker:            defaultSpeaker,
			EncodingInfo:       audio.GetDefaultEncodingInfo(),
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Connect opens the synthesis connection and sends the one-time voice
// configuration.
func (c *SynthesisClient) Connect(ctx context.Context, opts ...texttospeech.VoiceOption) error {
	for _, opt := range opts {
		opt(&c.voice)
	}

	apiKey := c.apiKey
	if apiKey == "" {
		var ok bool
		if apiKey, ok = os.LookupEnv("SARVAM_API_KEY"); !ok {
			return &texttospeech.ConnectError{Provider: "sarvam", Err: fmt.Errorf("sarvam api key not found")}
		}
	}

	speakURL, err := url.Parse(c.baseURL)
	if err != nil {
		return &texttospeech.ConnectError{Provider: "sarvam", Err: fmt.Errorf("invalid base url: %w", err)}
	}
	queryParams := speakURL.Query()
	queryParams.Set("model", c.model)
	queryParams.Set("send_completion_event", "true")
	speakURL.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, speakURL.String(),
		http.Header{"api-subscription-key": {apiKey}})
	if err != nil {
		return &texttospeech.ConnectError{Provider: "sarvam", Err: fmt.Errorf("failed to open socket connection: %w", err)}
	}

	configMsg := struct {
		Type string `json:"type"`
		Data struct {
			TargetLanguageCode string `json:"target_language_code"`
			Speaker            string `json:"speaker"`
			SpeechSampleRate   string `json:"speech_sample_rate"`
			OutputAudioCodec   string `json:"output_audio_codec"`
		} `json:"data"`
	}{Type: "config"}
	configMsg.Data.TargetLanguageCode = c.voice.TargetLanguageCode
	configMsg.Data.Speaker = c.voice.Speaker
	configMsg.Data.SpeechSampleRate = strconv.Itoa(c.voice.EncodingInfo.SampleRate)
	configMsg.Data.OutputAudioCodec = c.voice.EncodingInfo.Format.Name()

	if err := conn.WriteJSON(configMsg); err != nil {
		conn.Close()
		return &texttospeech.ConnectError{Provider: "sarvam", Err: fmt.Errorf("failed to send voice config: %w", err)}
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	go c.readAndProcessMessages(ctx, conn)

	return nil
}

// EncodingInfo reports the configured output audio encoding.
func (c *SynthesisClient) EncodingInfo() audio.EncodingInfo {
	return c.voice.EncodingInfo
}

// Synthesize starts one synthesis turn: the text plus a flush signal are
// sent, and the returned stream yields audio chunks until the upstream
// signals completion. The previous turn's stream must be fully drained
// before a new turn starts.
func (c *SynthesisClient) Synthesize(ctx context.Context, text string) (texttospeech.SpeechStream, error) {
	c.currentMu.Lock()
	defer c.currentMu.Unlock()

	if c.current != nil {
		return nil, fmt.Errorf("synthesis turn already in flight")
	}

	stream := newSpeechStream()
	if err := c.sendMessage(textMsg(text)); err != nil {
		return nil, fmt.Errorf("failed to send text to sarvam: %w", err)
	}
	if err := c.sendMessage(flushMsg); err != nil {
		return nil, fmt.Errorf("failed to flush sarvam text buffer: %w", err)
	}

	c.current = stream
	return stream, nil
}

func (c *SynthesisClient) Close(context.Context) error {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	c.finishCurrent(nil)

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close sarvam websocket: %w", err)
	}
	return nil
}

func (c *SynthesisClient) readAndProcessMessages(_ context.Context, conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.connMu.Lock()
			stillOpen := c.conn != nil
			c.conn = nil
			c.connMu.Unlock()
			conn.Close()

			if stillOpen && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Error("sarvam synthesis connection lost", "error", err)
				c.finishCurrent(&texttospeech.TransportClosedError{Provider: "sarvam", Err: err})
			} else {
				c.finishCurrent(nil)
			}
			return
		}
		c.processMessage(msg)
	}
}

func (c *SynthesisClient) processMessage(msg []byte) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal sarvam message", "error", err)
		return
	}

	switch parsedMsg.Type {
	case "audio":
		var audioMsg struct {
			Data struct {
				Audio string `json:"audio"`
			} `json:"data"`
		}
		if err := json.Unmarshal(msg, &audioMsg); err != nil {
			logger.Warn("failed to unmarshal sarvam audio message", "error", err)
			return
		}
		chunk, err := base64.StdEncoding.DecodeString(audioMsg.Data.Audio)
		if err != nil {
			logger.Warn("dropping sarvam audio chunk with malformed base64", "error", err)
			return
		}

		c.currentMu.Lock()
		stream := c.current
		c.currentMu.Unlock()
		if stream == nil {
			logger.Warn("received sarvam audio outside of a synthesis turn")
			return
		}
		stream.addAudio(chunk)

	case "event":
		var eventMsg struct {
			Data struct {
				EventType string `json:"event_type"`
				Message   string `json:"message"`
			} `json:"data"`
		}
		if err := json.Unmarshal(msg, &eventMsg); err != nil {
			logger.Warn("failed to unmarshal sarvam event message", "error", err)
			return
		}

		switch eventMsg.Data.EventType {
		case "final":
			c.finishCurrent(nil)
		case "error":
			c.finishCurrent(&texttospeech.ProtocolError{Provider: "sarvam", Message: eventMsg.Data.Message})
		default:
			logger.Debug("ignoring unknown sarvam event type", "event_type", eventMsg.Data.EventType)
		}

	default:
		logger.Debug("ignoring unknown sarvam message type", "type", parsedMsg.Type)
	}
}

// finishCurrent terminates the in-flight turn's stream, if any, and frees the
// connection for the next turn.
func (c *SynthesisClient) finishCurrent(err error) {
	c.currentMu.Lock()
	stream := c.current
	c.current = nil
	c.currentMu.Unlock()

	if stream != nil {
		stream.finish(err)
	}
}

func (c *SynthesisClient) sendMessage(msg any) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("synthesis connection closed")
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}

var flushMsg = struct {
	Type string `json:"type"`
}{Type: "flush"}

func textMsg(text string) any {
	msg := struct {
		Type string `json:"type"`
		Data struct {
			Text string `json:"text"`
		} `json:"data"`
	}{Type: "text"}
	msg.Data.Text = text
	return msg
}
