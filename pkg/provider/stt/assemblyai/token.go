package assemblyai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Limits accepted by the token endpoint.
const (
	MinTokenTTL = time.Second
	MaxTokenTTL = 10 * time.Minute
)

// TemporaryToken mints a single-use streaming token valid for ttl, clamped to
// [MinTokenTTL, MaxTokenTTL]. Clients pass it as the token query parameter
// when connecting to the streaming endpoint themselves.
func (p *Provider) TemporaryToken(ctx context.Context, ttl time.Duration) (string, error) {
	ttl = min(max(ttl, MinTokenTTL), MaxTokenTTL)

	u, err := url.Parse(p.tokenEndpoint)
	if err != nil {
		return "", fmt.Errorf("assemblyai: token URL: %w", err)
	}
	q := u.Query()
	q.Set("expires_in_seconds", strconv.Itoa(int(ttl/time.Second)))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("assemblyai: token request: %w", err)
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("assemblyai: token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("assemblyai: read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("assemblyai: token request: status %d: %s", resp.StatusCode, body)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("assemblyai: decode token response: %w", err)
	}
	if out.Token == "" {
		return "", errors.New("assemblyai: token response has no token")
	}
	return out.Token, nil
}
