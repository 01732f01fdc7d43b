// Package llm selects script replies with an OpenAI-compatible chat
// completions endpoint, constrained to structured output so the model can
// only pick an intent from the script or defer to the fallback.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/callwise/bridge-core/core/dialogue"
	"github.com/invopop/jsonschema"
	"github.com/jinzhu/copier"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultURL   = "https://api.groq.com/openai/v1/chat/completions"
	defaultModel = "llama-3.3-70b-versatile"
)

// replySelection is the structured output the model is forced into: the name
// of one script rule, or an empty intent when nothing applies.
type replySelection struct {
	Intent string `json:"intent" jsonschema_description:"Name of the matching intent, or empty when none applies"`
}

// Step classifies the caller's utterance against the script's intents and
// returns the scripted reply for the selected one. The reply text itself
// never comes from the model, so the spoken content stays on script.
type Step struct {
	apiKey string
	model  string
	url    string
	script dialogue.Script

	client *http.Client
}

type Option func(*Step)

func WithAPIKey(apiKey string) Option {
	return func(s *Step) { s.apiKey = apiKey }
}

func WithModel(model string) Option {
	return func(s *Step) { s.model = model }
}

// WithURL points the step at a different OpenAI-compatible endpoint.
func WithURL(url string) Option {
	return func(s *Step) { s.url = url }
}

func NewStep(script dialogue.Script, opts ...Option) *Step {
	var snapshot dialogue.Script
	copier.CopyWithOption(&snapshot, &script, copier.Option{DeepCopy: true})

	step := &Step{
		model:  defaultModel,
		url:    defaultURL,
		script: snapshot,
		client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(step)
	}
	return step
}

func (s *Step) Respond(ctx context.Context, transcript string) (string, error) {
	ctx, span := tracer.Start(ctx, "select reply")
	defer span.End()
	span.SetAttributes(attribute.String("transcript", transcript))

	selection, err := s.selectIntent(ctx, transcript)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("intent", selection.Intent))

	for _, rule := range s.script.Rules {
		if rule.Name == selection.Intent {
			return rule.Reply, nil
		}
	}
	if selection.Intent != "" {
		logger.Warn("model selected an intent the script does not define", "intent", selection.Intent)
	}
	return s.script.Fallback, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequestBody struct {
	Model          string              `json:"model"`
	Messages       []chatMessage       `json:"messages"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type chatResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name   string `json:"name"`
	Schema any    `json:"schema"`
	Strict bool   `json:"strict"`
}

func (s *Step) selectIntent(ctx context.Context, transcript string) (replySelection, error) {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(replySelection{})

	requestBody := chatRequestBody{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: s.systemPrompt()},
			{Role: "user", Content: transcript},
		},
		ResponseFormat: &chatResponseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchema{
				Name:   "reply_selection",
				Schema: schema,
				Strict: true,
			},
		},
	}

	marshalledBody, err := json.Marshal(requestBody)
	if err != nil {
		return replySelection{}, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewBuffer(marshalledBody))
	if err != nil {
		return replySelection{}, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return replySelection{}, fmt.Errorf("failed to call chat completions endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return replySelection{}, fmt.Errorf("failed to read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return replySelection{}, fmt.Errorf("chat completions endpoint returned %s: %s", resp.Status, body)
	}

	var parsedResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsedResponse); err != nil {
		return replySelection{}, fmt.Errorf("failed to unmarshal chat response: %w", err)
	}
	if len(parsedResponse.Choices) == 0 {
		return replySelection{}, fmt.Errorf("chat response contained no choices")
	}

	content := parsedResponse.Choices[0].Message.Content
	// Some models wrap the JSON in a markdown fence despite strict mode.
	if strings.Contains(content, "```") {
		parts := strings.SplitN(content, "```", 3)
		if len(parts) >= 2 {
			content = strings.TrimPrefix(parts[1], "json")
		}
	}

	var selection replySelection
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &selection); err != nil {
		return replySelection{}, fmt.Errorf("failed to unmarshal reply selection: %w", err)
	}
	return selection, nil
}

func (s *Step) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You classify a caller's utterance from a phone call into one of the known intents.\n")
	b.WriteString("Respond with the name of the single best matching intent, or an empty string when none applies.\n\n")
	b.WriteString("Known intents:\n")
	for _, rule := range s.script.Rules {
		fmt.Fprintf(&b, "- %s: keywords %s\n", rule.Name, strings.Join(rule.Keywords, ", "))
	}
	return b.String()
}
