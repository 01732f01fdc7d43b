// voicebridge serves an Exotel voicebot: the HTTP handshake endpoint plus
// the media-stream websocket, bridging each call to the configured speech
// and dialogue providers.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	bridge "github.com/callwise/bridge-core/core"
	"github.com/callwise/bridge-core/core/audio"
	"github.com/callwise/bridge-core/core/dialogue"
	"github.com/callwise/bridge-core/core/dialogue/llm"
	"github.com/callwise/bridge-core/core/events"
	"github.com/callwise/bridge-core/core/speechtotext/deepgram"
	sttsarvam "github.com/callwise/bridge-core/core/speechtotext/sarvam"
	"github.com/callwise/bridge-core/core/telephony"
	"github.com/callwise/bridge-core/core/telephony/exotel"
	ttssarvam "github.com/callwise/bridge-core/core/texttospeech/sarvam"
)

var upgrader = websocket.Upgrader{
	// The platform connects from its own infrastructure, not a browser.
	CheckOrigin: func(*http.Request) bool { return true },
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/exotel/voicebot", &exotel.HandshakeHandler{
		StreamPath: "/ws",
		Host:       cfg.publicHost,
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveCall(r.Context(), w, r, cfg)
	})
	if cfg.exotel.accountSID != "" {
		mux.Handle("/call", &exotel.TriggerHandler{
			Dialer: exotel.NewDialer(cfg.exotel.accountSID, cfg.exotel.apiKey,
				cfg.exotel.apiToken, cfg.exotel.exophone),
			AppletURL: cfg.exotel.appletURL,
		})
	}

	server := &http.Server{
		Addr:    ":" + cfg.port,
		Handler: otelhttp.NewHandler(mux, "voicebridge"),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	slog.Info("voicebridge listening", "port", cfg.port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func serveCall(ctx context.Context, w http.ResponseWriter, r *http.Request, cfg config) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade media stream connection", "error", err)
		return
	}
	slog.Info("media stream connected", "remote", r.RemoteAddr)

	session := bridge.NewCallSession(conn,
		bridge.WithSpeechToText(newSpeechToText(cfg)),
		bridge.WithTextToSpeech(ttssarvam.NewSynthesisClient()),
		bridge.WithDialogueStep(newDialogueStep(cfg)),
		bridge.WithGreeting(cfg.script.Greeting),
		bridge.WithInputEncoding(audio.GetDefaultEncodingInfo()),
		bridge.WithEventEmitter(logCallEvents),
	)
	defer session.Close(ctx)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			slog.Info("media stream disconnected", "error", err)
			return
		}
		event, err := telephony.ParseEvent(raw)
		if err != nil {
			slog.Warn("dropping undecodable telephony event", "error", err)
			continue
		}
		if err := session.HandleEvent(ctx, event); err != nil {
			slog.Error("session rejected telephony event", "error", err)
			return
		}
		if _, ok := event.(telephony.Stop); ok {
			return
		}
	}
}

func newSpeechToText(cfg config) bridge.SpeechToText {
	if cfg.sttProvider == "deepgram" {
		return deepgram.NewTranscriptionClient()
	}
	return sttsarvam.NewTranscriptionClient()
}

func newDialogueStep(cfg config) dialogue.Step {
	if cfg.groqAPIKey != "" {
		return llm.NewStep(cfg.script, llm.WithAPIKey(cfg.groqAPIKey))
	}
	return dialogue.NewScriptStep(cfg.script)
}

func logCallEvents(event events.Event) {
	switch event := event.(type) {
	case events.CallStarted:
		slog.Info("call started", "stream_sid", event.StreamSID)
	case events.UserTranscriptFinal:
		slog.Info("caller said", "transcript", event.Transcript)
	case events.AssistantResponseFinal:
		slog.Info("replying", "text", event.Text)
	case events.CallEnded:
		slog.Info("call ended", "stream_sid", event.StreamSID)
	}
}

type config struct {
	port        string
	publicHost  string
	sttProvider string
	groqAPIKey  string
	exotel      exotelConfig
	script      dialogue.Script
}

// exotelConfig enables the /call origination endpoint when the account
// credentials are present.
type exotelConfig struct {
	accountSID string
	apiKey     string
	apiToken   string
	exophone   string
	appletURL  string
}

func loadConfig() config {
	return config{
		port:        envOr("PORT", "8000"),
		publicHost:  os.Getenv("PUBLIC_HOST"),
		sttProvider: envOr("STT_PROVIDER", "sarvam"),
		groqAPIKey:  os.Getenv("GROQ_API_KEY"),
		exotel: exotelConfig{
			accountSID: os.Getenv("EXOTEL_ACCOUNT_SID"),
			apiKey:     os.Getenv("EXOTEL_API_KEY"),
			apiToken:   os.Getenv("EXOTEL_API_TOKEN"),
			exophone:   os.Getenv("EXOTEL_EXOPHONE"),
			appletURL:  os.Getenv("EXOTEL_APPLET_URL"),
		},
		script: defaultScript(),
	}
}

func envOr(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func defaultScript() dialogue.Script {
	return dialogue.Script{
		Greeting: "Hello! Thanks for taking our call. How can I help you today?",
		Rules: []dialogue.Rule{
			{
				Name:     "interest_rate",
				Keywords: []string{"interest", "rate", "charges"},
				Reply:    "Our gold loan interest rates start at nine percent per annum.",
			},
			{
				Name:     "loan_amount",
				Keywords: []string{"amount", "how much", "eligible"},
				Reply:    "You can borrow up to twenty lakhs depending on your gold's value.",
			},
			{
				Name:     "callback",
				Keywords: []string{"call back", "later", "busy"},
				Reply:    "No problem, we will call you back at a better time. Thank you!",
			},
		},
		Fallback: "I did not quite catch that. Could you repeat it, or would you like to speak with an agent?",
	}
}
