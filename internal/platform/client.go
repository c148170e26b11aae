// Package platform talks to the gaming platform's user-info API. It is the
// read side of settlement: one lookup per request, returning the member's VIP
// level and the raw deposit payload for normalization.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultTimeout = 15 * time.Second

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Lookup is the result of a successful deposit lookup. Payload is the decoded
// data object handed to the deposit normalizer; Raw is the same bytes kept
// verbatim for the audit snapshot.
type Lookup struct {
	VIPLevel int
	Payload  map[string]any
	Raw      json.RawMessage
}

// Client fetches the first-month deposit summary for an identity.
type Client interface {
	FetchDeposit(ctx context.Context, identity string, year int) (Lookup, error)
}

// LookupError is a definitive upstream refusal: the API answered but either
// returned a non-2xx status or an envelope with success=false. Transport
// errors are returned as plain wrapped errors instead.
type LookupError struct {
	StatusCode int
	Message    string
}

func (e *LookupError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("platform lookup failed (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("platform lookup failed: %s", e.Message)
}

type HTTPClient struct {
	baseURL string
	httpc   *http.Client
}

func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *HTTPClient) FetchDeposit(ctx context.Context, identity string, year int) (Lookup, error) {
	endpoint := fmt.Sprintf("%s/api/user/%s/deposit/month/1?year=%d",
		c.baseURL, url.PathEscape(identity), year)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Lookup{}, fmt.Errorf("build lookup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Lookup{}, fmt.Errorf("platform lookup: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 400 {
			return Lookup{}, &LookupError{StatusCode: resp.StatusCode, Message: "unreadable response body"}
		}
		return Lookup{}, fmt.Errorf("decode lookup response: %w", err)
	}

	if resp.StatusCode >= 400 || !env.Success {
		message := env.Message
		if message == "" {
			message = "user info unavailable"
		}
		status := 0
		if resp.StatusCode >= 400 {
			status = resp.StatusCode
		}
		return Lookup{}, &LookupError{StatusCode: status, Message: message}
	}

	payload := map[string]any{}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return Lookup{}, fmt.Errorf("decode lookup data: %w", err)
		}
	}

	return Lookup{
		VIPLevel: vipLevel(payload),
		Payload:  payload,
		Raw:      env.Data,
	}, nil
}

// vipLevel reads data.userInfo.vipLevel, zero when absent. A zero level is a
// business outcome (member not ranked), not a lookup failure.
func vipLevel(payload map[string]any) int {
	userInfo, ok := payload["userInfo"].(map[string]any)
	if !ok {
		return 0
	}
	switch v := userInfo["vipLevel"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
