// Package agent is a client for a hosted conversational-agent API.
//
// Every call returns an AgentResult, never a Go error: transport failures,
// non-2xx replies and unusable payloads are all classified into
// ErrorDetails and, when a Reporter is configured, handed to it.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultEndpoint = "https://agent-prod.studio.lyzr.ai/v3/inference/chat/"
	defaultUA       = "agentchat-go/0.1 (+github.com/raezil/agentchat-go)"
)

var (
	// ErrMissingAPIKey is reported when the HTTP transport has no key to send.
	ErrMissingAPIKey = errors.New("agent: API key is empty")
	// ErrMissingAgentID is reported when neither the request nor the client names an agent.
	ErrMissingAgentID = errors.New("agent: agent ID is empty")
	// ErrEmptyMessage is reported for blank user messages.
	ErrEmptyMessage = errors.New("agent: message is empty")
)

// Reporter receives the details of every failed call. Implementations must
// return promptly; they run on the caller's goroutine.
type Reporter interface {
	Report(ErrorDetails)
}

// Client calls the agent endpoint.
type Client struct {
	apiKey    string
	endpoint  string
	ua        string
	origin    string
	agentID   string
	userID    string
	sessionID string
	http      *http.Client
	transport Transport
	extractor Extractor
	reporter  Reporter
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures the Client.
type Option func(*Client)

// WithEndpoint overrides the agent endpoint URL (useful for testing).
func WithEndpoint(u string) Option {
	return func(c *Client) { c.endpoint = strings.TrimSpace(u) }
}

// WithHTTPClient sets a custom http.Client (e.g., with proxy or custom transport).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.ua = ua }
}

// WithOrigin records the URL of the page or app embedding the client. It is
// copied into ErrorDetails.URL.
func WithOrigin(u string) Option {
	return func(c *Client) { c.origin = u }
}

// WithAgentID sets the agent used when a request does not name one.
func WithAgentID(id string) Option {
	return func(c *Client) { c.agentID = strings.TrimSpace(id) }
}

// WithUserID sets the user ID sent when a request does not carry one.
func WithUserID(id string) Option {
	return func(c *Client) { c.userID = id }
}

// WithSessionID pins the conversation session instead of generating one.
func WithSessionID(id string) Option {
	return func(c *Client) { c.sessionID = id }
}

// WithTransport replaces the HTTP transport entirely.
func WithTransport(t Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithExtractor replaces the tolerant JSON extractor.
func WithExtractor(ex Extractor) Option {
	return func(c *Client) { c.extractor = ex }
}

// WithReporter sets where failed calls are reported.
func WithReporter(r Reporter) Option {
	return func(c *Client) { c.reporter = r }
}

// WithLogger sets the structured logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient constructs a Client with sane defaults. The default http.Client
// has no timeout; bound calls with the context instead.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		ua:       defaultUA,
		http:     &http.Client{},
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.sessionID == "" {
		c.sessionID = NewSessionID()
	}
	if c.transport == nil {
		c.transport = &httpTransport{endpoint: c.endpoint, apiKey: c.apiKey, ua: c.ua, http: c.http}
	}
	return c
}

// NewSessionID returns a fresh conversation session ID.
func NewSessionID() string {
	return uuid.NewString()
}

// SessionID returns the session used for requests that do not carry one.
func (c *Client) SessionID() string { return c.sessionID }

// Endpoint returns where requests are sent.
func (c *Client) Endpoint() string { return c.transport.Endpoint() }

// Chat sends message to the default agent within the client's session.
func (c *Client) Chat(ctx context.Context, message string) AgentResult {
	return c.CallAgent(ctx, AgentRequest{Message: message})
}

// CallAgent sends one message and classifies the outcome. It never retries.
func (c *Client) CallAgent(ctx context.Context, req AgentRequest) AgentResult {
	start := c.now()
	if req.AgentID == "" {
		req.AgentID = c.agentID
	}
	if req.UserID == "" {
		req.UserID = c.userID
	}
	if req.SessionID == "" {
		req.SessionID = c.sessionID
	}
	if err := c.validate(req); err != nil {
		return c.finish(invalidRequest(err), req, start)
	}

	c.logger.Debug("agent request", "endpoint", c.Endpoint(), "agent_id", req.AgentID, "session_id", req.SessionID)
	status, body, err := c.transport.Send(ctx, req)
	if err != nil {
		return c.finish(NetworkFailure(err), req, start)
	}
	return c.finish(Normalize(status, body, c.extractor), req, start)
}

func (c *Client) validate(req AgentRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return ErrEmptyMessage
	}
	// Only the hosted endpoint routes by agent and authenticates by key.
	if _, ok := c.transport.(*httpTransport); !ok {
		return nil
	}
	if req.AgentID == "" {
		return ErrMissingAgentID
	}
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// finish stamps call metadata and, for failures, completes the ErrorDetails
// record and reports it.
func (c *Client) finish(res AgentResult, req AgentRequest, start time.Time) AgentResult {
	res.Metadata.Endpoint = c.Endpoint()
	res.Metadata.AgentID = req.AgentID
	res.Metadata.SessionID = req.SessionID
	res.Metadata.Duration = c.now().Sub(start)
	if res.Error == nil {
		c.logger.Debug("agent response", "status", res.Metadata.Status, "duration", res.Metadata.Duration)
		return res
	}

	d := *res.Error
	d.ID = uuid.NewString()
	d.Endpoint = res.Metadata.Endpoint
	d.Timestamp = c.now().UTC()
	d.UserAgent = c.ua
	d.URL = c.origin
	res.Error = &d

	c.logger.Warn("agent call failed", "id", d.ID, "kind", d.Kind, "status", d.Status, "err", d.Message)
	c.report(d)
	return res
}

func (c *Client) report(d ErrorDetails) {
	if c.reporter == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("error reporter panicked", "id", d.ID, "panic", r)
		}
	}()
	c.reporter.Report(d)
}

// Decode converts a successful result's Data into T.
// Note: Go does not allow methods with type parameters; use this free function instead.
func Decode[T any](res AgentResult) (T, error) {
	var out T
	if err := res.Err(); err != nil {
		return out, err
	}
	b, err := json.Marshal(res.Data)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, err
	}
	return out, nil
}
