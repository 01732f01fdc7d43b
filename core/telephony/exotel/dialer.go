package exotel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

const defaultSubdomain = "api.exotel.com"

// Dialer originates outbound calls through the Calls API. The platform rings
// the destination and, once answered, runs the applet that performs the
// voicebot handshake.
type Dialer struct {
	accountSID string
	apiKey     string
	apiToken   string
	subdomain  string
	baseURL    string

	// exophone is the caller-id number the call is placed from.
	exophone string

	client *http.Client
}

type DialerOption func(*Dialer)

func WithSubdomain(subdomain string) DialerOption {
	return func(d *Dialer) { d.subdomain = subdomain }
}

// WithBaseURL replaces the whole API prefix, mainly for tests.
func WithBaseURL(baseURL string) DialerOption {
	return func(d *Dialer) { d.baseURL = baseURL }
}

// WithHTTPClient overrides the API client, mainly for tests.
func WithHTTPClient(client *http.Client) DialerOption {
	return func(d *Dialer) { d.client = client }
}

func NewDialer(accountSID, apiKey, apiToken, exophone string, opts ...DialerOption) *Dialer {
	dialer := &Dialer{
		accountSID: accountSID,
		apiKey:     apiKey,
		apiToken:   apiToken,
		subdomain:  defaultSubdomain,
		exophone:   exophone,
		client:     &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(dialer)
	}
	return dialer
}

// Dial places a call to destination and points it at appletURL, the flow
// that will perform the voicebot handshake. It returns the platform's call
// SID.
func (d *Dialer) Dial(ctx context.Context, destination, appletURL string) (string, error) {
	ctx, span := tracer.Start(ctx, "originate call")
	defer span.End()
	span.SetAttributes(attribute.String("destination", destination))

	baseURL := d.baseURL
	if baseURL == "" {
		baseURL = "https://" + d.subdomain
	}
	endpoint := fmt.Sprintf("%s/v1/Accounts/%s/Calls/connect.json", baseURL, d.accountSID)
	form := url.Values{}
	form.Set("Caller", d.exophone)
	form.Set("CallType", "trans")
	form.Set("Destination", destination)
	form.Set("Url", appletURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create call request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(d.apiKey, d.apiToken)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call exotel calls api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read exotel response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("exotel calls api returned %s: %s", resp.Status, body)
	}

	var parsedResponse struct {
		Call struct {
			Sid    string `json:"Sid"`
			Status string `json:"Status"`
		} `json:"Call"`
	}
	if err := json.Unmarshal(body, &parsedResponse); err != nil {
		return "", fmt.Errorf("failed to unmarshal exotel response: %w", err)
	}

	logger.Info("call originated", "call_sid", parsedResponse.Call.Sid, "status", parsedResponse.Call.Status)
	return parsedResponse.Call.Sid, nil
}
