package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxResponseBytes bounds how much of a response body is read. Larger bodies
// fail the call rather than being truncated.
const maxResponseBytes = 4 << 20

// ErrResponseTooLarge is returned by the HTTP transport for bodies over
// maxResponseBytes.
var ErrResponseTooLarge = fmt.Errorf("response body exceeds %d bytes", maxResponseBytes)

// Transport delivers one AgentRequest and returns the raw reply. An error
// means no response was received; any status code, including non-2xx, is a
// response.
type Transport interface {
	Send(ctx context.Context, req AgentRequest) (status int, body string, err error)
	Endpoint() string
}

type httpTransport struct {
	endpoint string
	apiKey   string
	ua       string
	http     *http.Client
}

func (t *httpTransport) Endpoint() string { return t.endpoint }

func (t *httpTransport) Send(ctx context.Context, req AgentRequest) (int, string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return 0, "", fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	httpReq.Header.Set("x-api-key", t.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", t.ua)

	res, err := t.http.Do(httpReq)
	if err != nil {
		return 0, "", err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes+1))
	if err != nil {
		return 0, "", fmt.Errorf("read response body: %w", err)
	}
	if len(b) > maxResponseBytes {
		return 0, "", ErrResponseTooLarge
	}
	return res.StatusCode, string(b), nil
}
