// Package exotel covers the control-plane half of an Exotel voicebot: the
// HTTP handshake that hands the platform a media-stream websocket URL, and
// outbound call origination through the Calls API.
package exotel

import (
	"encoding/json"
	"net/http"
)

// HandshakeHandler answers the voicebot applet's pre-stream exchange. A GET
// is the platform's reachability probe; a POST carries call metadata and
// expects the websocket URL it should stream media to.
type HandshakeHandler struct {
	// StreamPath is the websocket path returned to the platform.
	StreamPath string
	// Host overrides the request's host in the returned URL, for deployments
	// behind a proxy that rewrites it.
	Host string
}

func (h *HandshakeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		logger.Info("voicebot endpoint probed")
		writeJSON(w, map[string]string{"status": "ok"})

	case http.MethodPost:
		var metadata map[string]any
		if err := json.NewDecoder(r.Body).Decode(&metadata); err != nil {
			logger.Warn("voicebot handshake carried no metadata", "error", err)
		} else {
			logger.Info("voicebot handshake received", "metadata", metadata)
		}

		host := h.Host
		if host == "" {
			host = r.Host
		}
		path := h.StreamPath
		if path == "" {
			path = "/ws"
		}
		streamURL := "wss://" + host + path

		logger.Info("returning media stream url", "url", streamURL)
		var response struct {
			Connect struct {
				Stream struct {
					URL string `json:"url"`
				} `json:"stream"`
			} `json:"connect"`
		}
		response.Connect.Stream.URL = streamURL
		writeJSON(w, response)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to write handshake response", "error", err)
	}
}
