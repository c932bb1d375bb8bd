// Package authn resolves caller identity. Token verification is delegated
// to an external identity provider; this package only plumbs the result.
package authn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized is returned when the presented credentials do not resolve
// to an identity.
var ErrUnauthorized = errors.New("authn: unauthorized")

// Identity is the stable caller identity rate limiting and caching key on.
type Identity struct {
	UserID string
	Email  string
}

// Verifier resolves a bearer token to an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// RemoteVerifier delegates verification to an identity provider's
// introspection endpoint.
type RemoteVerifier struct {
	endpoint   string
	httpClient *http.Client
}

// NewRemoteVerifier builds a verifier against the given introspection URL.
func NewRemoteVerifier(endpoint string) *RemoteVerifier {
	return &RemoteVerifier{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build introspection request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("introspect token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("introspect token: bad status: %s", resp.Status)
	}

	var payload struct {
		UserID string `json:"user_id"`
		Email  string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode introspection response: %w", err)
	}
	if payload.UserID == "" {
		return nil, ErrUnauthorized
	}

	return &Identity{UserID: payload.UserID, Email: payload.Email}, nil
}

// StaticVerifier maps fixed tokens to user ids. Development only.
type StaticVerifier struct {
	tokens map[string]string
}

// NewStaticVerifier builds a verifier from a token→userID map.
func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	return &StaticVerifier{tokens: tokens}
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	userID, ok := v.tokens[strings.TrimSpace(token)]
	if !ok || userID == "" {
		return nil, ErrUnauthorized
	}
	return &Identity{UserID: userID}, nil
}

// BearerToken extracts the bearer token from a request, if any.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// FallbackIdentifier derives a rate-limit identifier for anonymous callers
// from their network origin.
func FallbackIdentifier(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return "ip:" + strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return "anonymous"
	}
	return "ip:" + host
}
