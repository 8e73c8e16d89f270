package agent

import (
	"fmt"
	"time"
)

// AgentRequest models the JSON body posted to the agent endpoint.
type AgentRequest struct {
	Message   string   `json:"message"`
	AgentID   string   `json:"agent_id"`
	UserID    string   `json:"user_id,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	Assets    []string `json:"assets,omitempty"` // asset IDs previously uploaded to the provider
}

// ErrorKind classifies a failed call.
type ErrorKind string

const (
	KindAPIError       ErrorKind = "api_error"       // non-2xx from the service
	KindParseError     ErrorKind = "parse_error"     // 2xx, but the payload is unusable or self-reports failure
	KindNetworkError   ErrorKind = "network_error"   // transport failed before a response arrived
	KindInvalidRequest ErrorKind = "invalid_request" // rejected locally, nothing was sent
	KindUnknown        ErrorKind = "unknown"
)

// ErrorDetails is the record built once per failed call. It is what gets
// forwarded to a hosting parent.
type ErrorDetails struct {
	ID          string    `json:"id"`
	Kind        ErrorKind `json:"kind"`
	Message     string    `json:"message"`
	RawResponse *string   `json:"raw_response"`
	Status      int       `json:"status,omitempty"`
	Endpoint    string    `json:"endpoint"`
	Timestamp   time.Time `json:"timestamp"`
	UserAgent   string    `json:"user_agent"`
	URL         string    `json:"url,omitempty"`
}

func (e *ErrorDetails) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Status != 0 {
		return fmt.Sprintf("agent %s: %s (status=%d)", e.Kind, e.Message, e.Status)
	}
	return fmt.Sprintf("agent %s: %s", e.Kind, e.Message)
}

// Metadata describes the call that produced a result.
type Metadata struct {
	Status    int           `json:"status,omitempty"`
	Endpoint  string        `json:"endpoint,omitempty"`
	AgentID   string        `json:"agent_id,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	Duration  time.Duration `json:"duration_ns,omitempty"`
}

// AgentResult is the canonical outcome of one call. Exactly one of Message
// (on success) or Error (on failure) is meaningful; RawResponse always carries
// the body exactly as received.
type AgentResult struct {
	Success     bool          `json:"success"`
	Data        any           `json:"data"`
	Message     string        `json:"message"`
	RawResponse string        `json:"raw_response"`
	Error       *ErrorDetails `json:"error,omitempty"`
	Metadata    Metadata      `json:"metadata"`
}

// Err returns the failure as an error, or nil for a successful result.
func (r AgentResult) Err() error {
	if r.Success || r.Error == nil {
		return nil
	}
	return r.Error
}
