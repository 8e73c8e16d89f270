// Package gemini lets the chat client talk to Google Gemini directly instead
// of the hosted agent endpoint. Model output goes through the same tolerant
// extraction and classification as agent replies.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"google.golang.org/genai"

	"github.com/raezil/agentchat-go/agent"
)

const DefaultModel = "gemini-2.5-flash"

// Transport implements agent.Transport on top of genai.
type Transport struct {
	client       *genai.Client
	model        string
	systemPrompt string
}

// Config configures a Transport. BaseURL is only needed to point at a test
// server.
type Config struct {
	APIKey       string
	Model        string
	SystemPrompt string
	BaseURL      string
	HTTPClient   *http.Client
}

// New constructs a Transport for the Gemini API backend.
func New(ctx context.Context, cfg Config) (*Transport, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Transport{client: client, model: model, systemPrompt: cfg.SystemPrompt}, nil
}

func (t *Transport) Endpoint() string { return "gemini:" + t.model }

// Send asks the model for a reply. A successful generation is reported as
// status 200 with the model's text as body; API errors carry their own status
// code and an {"error": ...} body so they classify as api_error.
func (t *Transport) Send(ctx context.Context, req agent.AgentRequest) (int, string, error) {
	opts := &genai.GenerateContentConfig{}
	if t.systemPrompt != "" {
		opts.SystemInstruction = genai.Text(t.systemPrompt)[0]
	}

	result, err := t.client.Models.GenerateContent(ctx, t.model, genai.Text(req.Message), opts)
	if err != nil {
		if apiErr, ok := asAPIError(err); ok && apiErr.Code != 0 {
			body, _ := json.Marshal(map[string]any{"error": apiErr.Message, "status": apiErr.Status})
			return apiErr.Code, string(body), nil
		}
		return 0, "", err
	}
	return http.StatusOK, result.Text(), nil
}

// asAPIError accepts both the value and pointer forms genai may return.
func asAPIError(err error) (genai.APIError, bool) {
	var v genai.APIError
	if errors.As(err, &v) {
		return v, true
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return *p, true
	}
	return genai.APIError{}, false
}
