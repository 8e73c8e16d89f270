package hostlink

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/raezil/agentchat-go/agent"
)

const (
	tokenIssuer = "agentchat"
	tokenTTL    = 5 * time.Minute
)

// ErrorClaims are carried by the bearer token on forwarded errors. Digest is
// the hex SHA-256 of the request body, so hosts can reject altered payloads.
type ErrorClaims struct {
	Kind   string `json:"kind"`
	Digest string `json:"sha256"`
	jwt.RegisteredClaims
}

// Webhook posts error envelopes to the host's URL.
type Webhook struct {
	url    string
	secret []byte
	http   *http.Client
	now    func() time.Time
}

// NewWebhook returns a forwarder for url. An empty secret sends unsigned
// requests.
func NewWebhook(url, secret string, h *http.Client) *Webhook {
	if h == nil {
		h = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{url: url, secret: []byte(secret), http: h, now: time.Now}
}

func (w *Webhook) Forward(ctx context.Context, d agent.ErrorDetails) error {
	body, err := json.Marshal(Envelope{Type: TypeAgentError, Error: &d})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if len(w.secret) > 0 {
		token, err := w.sign(d, body)
		if err != nil {
			return fmt.Errorf("sign JWT: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("post to host: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("host webhook HTTP %d: %s", res.StatusCode, bytes.TrimSpace(b))
	}
	return nil
}

func (w *Webhook) sign(d agent.ErrorDetails, body []byte) (string, error) {
	now := w.now()
	claims := ErrorClaims{
		Kind:   string(d.Kind),
		Digest: BodyDigest(body),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   d.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(w.secret)
}

// BodyDigest returns the hex SHA-256 of body as carried in ErrorClaims.Digest.
func BodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// VerifyToken checks a forwarded error's bearer token and returns its claims.
func VerifyToken(secret, token string) (*ErrorClaims, error) {
	claims := &ErrorClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRequest is the host-side check: it validates the bearer token and that
// the body matches the signed digest, then decodes the envelope.
func VerifyRequest(secret string, r *http.Request) (*Envelope, error) {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		return nil, errors.New("missing bearer token")
	}
	claims, err := VerifyToken(secret, auth[len(prefix):])
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxHostMessageBytes))
	if err != nil {
		return nil, err
	}
	if BodyDigest(body) != claims.Digest {
		return nil, errors.New("body digest mismatch")
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
