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
	"strings"
	"time"

	"github.com/callwise/bridge-core/core/audio"
	"github.com/callwise/bridge-core/core/speechtotext"
	"github.com/gorilla/websocket"
)

func (c *TranscriptionClient) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	options := &speechtotext.TranscriptionOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(options)
	}

	apiKey := c.apiKey
	if apiKey == "" {
		var ok bool
		if apiKey, ok = os.LookupEnv("SARVAM_API_KEY"); !ok {
			return &speechtotext.ConnectError{Provider: "sarvam", Err: fmt.Errorf("sarvam api key not found")}
		}
	}

	listenURL, err := url.Parse(c.baseURL)
	if err != nil {
		return &speechtotext.ConnectError{Provider: "sarvam", Err: fmt.Errorf("invalid base url: %w", err)}
	}
	queryParams := listenURL.Query()
	queryParams.Set("language-code", c.language)
	queryParams.Set("model", c.model)
	queryParams.Set("input_audio_codec", options.EncodingInfo.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(options.EncodingInfo.SampleRate))
	queryParams.Set("vad_signals", "true")
	listenURL.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, listenURL.String(),
		http.Header{"api-subscription-key": {apiKey}})
	if err != nil {
		return &speechtotext.ConnectError{Provider: "sarvam", Err: fmt.Errorf("failed to open socket connection: %w", err)}
	}

	c.connMu.Lock()
	c.conn = conn
	c.encoding = options.EncodingInfo
	c.lastAudioTs = time.Now()
	c.connMu.Unlock()

	go c.readAndProcessMessages(ctx, conn, *options)

	return nil
}

type audioMessage struct {
	Audio struct {
		Data       string `json:"data"`
		SampleRate int    `json:"sample_rate"`
		Encoding   string `json:"encoding"`
	} `json:"audio"`
}

// SendAudio wraps one linear PCM frame in the upstream's audio envelope and
// transmits it.
func (c *TranscriptionClient) SendAudio(pcm []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("transcription connection closed")
	}

	var msg audioMessage
	msg.Audio.Data = base64.StdEncoding.EncodeToString(pcm)
	msg.Audio.SampleRate = c.encoding.SampleRate
	msg.Audio.Encoding = c.encoding.Format.Name()

	c.lastAudioTs = time.Now()
	c.unflushed = true
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write audio to sarvam client: %w", err)
	}
	return nil
}

// Flush tells the upstream there is no more audio for now and that it should
// finalise the buffered utterance.
func (c *TranscriptionClient) Flush() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("transcription connection closed")
	}

	c.unflushed = false
	if err := c.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: "flush"}); err != nil {
		return fmt.Errorf("failed to flush sarvam buffer through websocket: %w", err)
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
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close sarvam websocket: %w", err)
	}
	return nil
}

func (c *TranscriptionClient) readAndProcessMessages(ctx context.Context, conn *websocket.Conn, options speechtotext.TranscriptionOptions) {
	watchdogCtx, watchdogCancel := context.WithCancel(ctx)
	defer watchdogCancel()

	go c.flushWhenIdle(watchdogCtx)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.connMu.Lock()
			stillOpen := c.conn != nil
			c.conn = nil
			c.connMu.Unlock()
			conn.Close()

			if stillOpen && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Error("sarvam transcription connection lost", "error", err)
				if options.ErrorCallback != nil {
					options.ErrorCallback(&speechtotext.TransportClosedError{Provider: "sarvam", Err: err})
				}
			}
			return
		}
		c.processMessage(msg, options)
	}
}

func (c *TranscriptionClient) processMessage(msg []byte, options speechtotext.TranscriptionOptions) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal sarvam message", "error", err)
		return
	}

	switch parsedMsg.Type {
	case "data":
		var dataMsg struct {
			Data struct {
				Transcript string `json:"transcript"`
			} `json:"data"`
		}
		if err := json.Unmarshal(msg, &dataMsg); err != nil {
			logger.Warn("failed to unmarshal sarvam transcript message", "error", err)
			return
		}

		// Partials overwrite in place, only the latest snapshot is kept.
		c.partialMu.Lock()
		c.partial = dataMsg.Data.Transcript
		c.partialMu.Unlock()
		if options.PartialTranscriptionCallback != nil {
			options.PartialTranscriptionCallback(dataMsg.Data.Transcript)
		}

	case "events":
		var eventMsg struct {
			Data struct {
				SignalType string `json:"signal_type"`
			} `json:"data"`
		}
		if err := json.Unmarshal(msg, &eventMsg); err != nil {
			logger.Warn("failed to unmarshal sarvam event message", "error", err)
			return
		}

		if eventMsg.Data.SignalType == "END_SPEECH" {
			c.onSpeechEnded(options)
		}

	case "error":
		var errorMsg struct {
			Data struct {
				Message string `json:"message"`
			} `json:"data"`
		}
		if err := json.Unmarshal(msg, &errorMsg); err != nil {
			logger.Warn("failed to unmarshal sarvam error message", "error", err)
			return
		}

		logger.Error("sarvam transcription error event", "message", errorMsg.Data.Message)
		if options.ErrorCallback != nil {
			options.ErrorCallback(&speechtotext.ProtocolError{Provider: "sarvam", Message: errorMsg.Data.Message})
		}

	default:
		logger.Debug("ignoring unknown sarvam message type", "type", parsedMsg.Type)
	}
}

// onSpeechEnded promotes the buffered partial to exactly one final
// transcript. An empty buffer produces no transcript.
func (c *TranscriptionClient) onSpeechEnded(options speechtotext.TranscriptionOptions) {
	c.partialMu.Lock()
	final := strings.TrimSpace(c.partial)
	c.partial = ""
	c.partialMu.Unlock()

	if len(final) > 0 && options.TranscriptionCallback != nil {
		options.TranscriptionCallback(final)
	}
	if options.SpeechEndedCallback != nil {
		options.SpeechEndedCallback()
	}
}

// flushWhenIdle proactively flushes the upstream buffer when no audio has
// been sent for idleFlushAfter, so a trailing utterance is not stranded.
func (c *TranscriptionClient) flushWhenIdle(ctx context.Context) {
	ticker := time.NewTicker(c.idleFlushAfter / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.connMu.Lock()
			idle := c.unflushed && time.Since(c.lastAudioTs) >= c.idleFlushAfter
			connected := c.conn != nil
			c.connMu.Unlock()

			if !connected {
				return
			}
			if idle {
				if err := c.Flush(); err != nil {
					logger.Warn("failed to flush idle sarvam buffer", "error", err)
				}
			}
		}
	}
}
