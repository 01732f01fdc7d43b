package exotel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestHandshakeProbeAnswersOK(t *testing.T) {
	handler := &HandshakeHandler{}
	recorder := httptest.NewRecorder()

	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/exotel/voicebot", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 for the probe, got %d", recorder.Code)
	}
	var response map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("expected a json probe response: %v", err)
	}
	if response["status"] != "ok" {
		t.Fatalf("expected an ok status, got %v", response)
	}
}

func TestHandshakeReturnsStreamURL(t *testing.T) {
	handler := &HandshakeHandler{StreamPath: "/media"}
	recorder := httptest.NewRecorder()

	request := httptest.NewRequest(http.MethodPost, "/exotel/voicebot", strings.NewReader(`{"CallSid":"abc"}`))
	request.Host = "bridge.example.com"
	handler.ServeHTTP(recorder, request)

	var response struct {
		Connect struct {
			Stream struct {
				URL string `json:"url"`
			} `json:"stream"`
		} `json:"connect"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("expected a json handshake response: %v", err)
	}
	if response.Connect.Stream.URL != "wss://bridge.example.com/media" {
		t.Fatalf("expected the stream url for the request host, got %q", response.Connect.Stream.URL)
	}
}

func TestHandshakeHostOverride(t *testing.T) {
	handler := &HandshakeHandler{Host: "public.example.com"}
	recorder := httptest.NewRecorder()

	request := httptest.NewRequest(http.MethodPost, "/exotel/voicebot", strings.NewReader(`{}`))
	request.Host = "10.0.0.5:8080"
	handler.ServeHTTP(recorder, request)

	if !strings.Contains(recorder.Body.String(), "wss://public.example.com/ws") {
		t.Fatalf("expected the configured host in the stream url, got %s", recorder.Body.String())
	}
}

func TestDialOriginatesCall(t *testing.T) {
	var form url.Values
	var user, pass string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse call form: %v", err)
		}
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Call":{"Sid":"call-123","Status":"in-progress"}}`))
	}))
	defer server.Close()

	dialer := NewDialer("account", "key", "token", "09513886363",
		WithBaseURL(server.URL))

	sid, err := dialer.Dial(context.Background(), "+919167124413", "http://my.exotel.in/exoml/start_voice/1")
	if err != nil {
		t.Fatalf("expected dial to succeed, got %v", err)
	}
	if sid != "call-123" {
		t.Fatalf("expected the call sid from the response, got %q", sid)
	}
	if user != "key" || pass != "token" {
		t.Fatalf("expected basic auth credentials, got %q:%q", user, pass)
	}
	if form.Get("Caller") != "09513886363" || form.Get("Destination") != "+919167124413" {
		t.Fatalf("unexpected call form: %v", form)
	}
	if form.Get("CallType") != "trans" {
		t.Fatalf("expected a transactional call type, got %q", form.Get("CallType"))
	}
}

func TestTriggerOriginatesCallForDestination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Call":{"Sid":"call-456","Status":"in-progress"}}`))
	}))
	defer server.Close()

	handler := &TriggerHandler{
		Dialer:    NewDialer("account", "key", "token", "09513886363", WithBaseURL(server.URL)),
		AppletURL: "http://my.exotel.in/exoml/start_voice/1",
	}
	recorder := httptest.NewRecorder()

	request := httptest.NewRequest(http.MethodPost, "/call", strings.NewReader("destination=%2B919167124413"))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 for a placed call, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var response map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("expected a json trigger response: %v", err)
	}
	if response["call_sid"] != "call-456" {
		t.Fatalf("expected the call sid from the api, got %v", response)
	}
}

func TestTriggerRequiresDestination(t *testing.T) {
	handler := &TriggerHandler{Dialer: NewDialer("account", "key", "token", "09513886363")}
	recorder := httptest.NewRecorder()

	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/call", nil))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a destination, got %d", recorder.Code)
	}
}

func TestTriggerRejectsNonPost(t *testing.T) {
	handler := &TriggerHandler{Dialer: NewDialer("account", "key", "token", "09513886363")}
	recorder := httptest.NewRecorder()

	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/call", nil))

	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for a get, got %d", recorder.Code)
	}
}

func TestDialSurfacesAPIFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient balance", http.StatusPaymentRequired)
	}))
	defer server.Close()

	dialer := NewDialer("account", "key", "token", "09513886363", WithBaseURL(server.URL))

	if _, err := dialer.Dial(context.Background(), "+919167124413", "http://example.com/applet"); err == nil {
		t.Fatalf("expected an error from a failing calls api")
	}
}
