package exotel

import "net/http"

// TriggerHandler originates an outbound call on demand: POST with a
// `destination` form field rings the number and points the answered call at
// the configured applet, which performs the voicebot handshake.
type TriggerHandler struct {
	Dialer *Dialer
	// AppletURL is the flow every originated call is connected to.
	AppletURL string
}

func (h *TriggerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	destination := r.FormValue("destination")
	if destination == "" {
		http.Error(w, "missing destination", http.StatusBadRequest)
		return
	}

	callSID, err := h.Dialer.Dial(r.Context(), destination, h.AppletURL)
	if err != nil {
		logger.Error("failed to originate call", "destination", destination, "error", err)
		http.Error(w, "call origination failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, map[string]string{"call_sid": callSID})
}
