package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/raezil/agentchat-go/jsonx"
)

// Extractor turns raw response text into a JSON value.
type Extractor interface {
	Extract(text string) (any, error)
}

// Normalize classifies a completed HTTP exchange. A nil extractor means
// jsonx.Tolerant.
func Normalize(status int, raw string, ex Extractor) AgentResult {
	if ex == nil {
		ex = jsonx.Tolerant{}
	}
	value, extractErr := ex.Extract(raw)
	res := AgentResult{RawResponse: raw, Metadata: Metadata{Status: status}}

	if status < 200 || status >= 300 {
		msg := payloadError(value)
		if msg == "" {
			msg = statusMessage(status)
		}
		return failed(res, KindAPIError, msg, status)
	}

	if extractErr != nil {
		return failed(res, KindParseError, "could not parse agent response: "+extractErr.Error(), status)
	}
	if msg, ok := embeddedFailure(value); ok {
		return failed(res, KindParseError, msg, status)
	}

	res.Success = true
	res.Data = value
	res.Message = ExtractMessage(value)
	return res
}

// NetworkFailure builds the result for a call whose transport failed before a
// response arrived. The message is the underlying transport error, without
// the method/URL prefix net/http adds.
func NetworkFailure(err error) AgentResult {
	msg := "unknown transport error"
	if err != nil {
		msg = err.Error()
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Err != nil {
			msg = urlErr.Err.Error()
		}
	}
	res := AgentResult{}
	res.Message = msg
	res.Error = &ErrorDetails{Kind: KindNetworkError, Message: msg}
	return res
}

func statusMessage(status int) string {
	msg := fmt.Sprintf("request failed with status %d", status)
	switch status {
	case http.StatusUnauthorized:
		msg += " (check API key)"
	case http.StatusForbidden:
		msg += " (forbidden)"
	}
	return msg
}

func invalidRequest(err error) AgentResult {
	return AgentResult{
		Message: err.Error(),
		Error:   &ErrorDetails{Kind: KindInvalidRequest, Message: err.Error()},
	}
}

func failed(res AgentResult, kind ErrorKind, msg string, status int) AgentResult {
	raw := res.RawResponse
	res.Success = false
	res.Data = nil
	res.Message = msg
	res.Error = &ErrorDetails{Kind: kind, Message: msg, RawResponse: &raw, Status: status}
	return res
}

// ExtractMessage picks the displayable reply out of a decoded payload, in
// fixed order: result.message, message, result (when a string), the value
// itself (when a string), and finally the value rendered as indented JSON.
func ExtractMessage(v any) string {
	if m, ok := v.(map[string]any); ok {
		if r, ok := m["result"].(map[string]any); ok {
			if s, ok := r["message"].(string); ok && s != "" {
				return s
			}
		}
		if s, ok := m["message"].(string); ok && s != "" {
			return s
		}
		if s, ok := m["result"].(string); ok && s != "" {
			return s
		}
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// payloadError returns the service's own error text, if the payload has one.
func payloadError(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	switch e := m["error"].(type) {
	case string:
		if e != "" {
			return e
		}
	case map[string]any:
		if s, ok := e["message"].(string); ok && s != "" {
			return s
		}
	}
	for _, key := range []string{"detail", "message"} {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// embeddedFailure reports whether a 2xx payload marks itself as failed via
// `"success": false` or a non-empty `error` field. Null, false, zero, "" and
// empty objects or arrays do not count.
func embeddedFailure(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	success, hasSuccess := m["success"].(bool)
	flagged := hasSuccess && !success
	if !flagged {
		switch e := m["error"].(type) {
		case nil:
		case string:
			flagged = e != ""
		case bool:
			flagged = e
		case float64:
			flagged = e != 0
		case map[string]any:
			flagged = len(e) > 0
		case []any:
			flagged = len(e) > 0
		default:
			flagged = true
		}
	}
	if !flagged {
		return "", false
	}
	if msg := payloadError(v); msg != "" {
		return msg, true
	}
	return "agent reported failure", true
}
