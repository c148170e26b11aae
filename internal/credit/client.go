// Package credit issues reward payouts through the promotion deposit API. It
// is the write side of settlement; the caller must treat transport failures as
// ambiguous because the payout may have landed before the connection died.
package credit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const defaultTimeout = 15 * time.Second

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Result is the decoded payout response. Success=false is a definitive,
// in-band decline from the partner, not a transport failure.
type Result struct {
	Success bool
	Message string
	Detail  string
	Body    json.RawMessage
}

type Client interface {
	Issue(ctx context.Context, identity string, amount decimal.Decimal) (Result, error)
}

// AmbiguousError wraps failures where the payout outcome is unknown. Callers
// must not retry automatically: the credit may already have been applied.
type AmbiguousError struct {
	Err error
}

func (e *AmbiguousError) Error() string { return fmt.Sprintf("credit outcome unknown: %v", e.Err) }
func (e *AmbiguousError) Unwrap() error { return e.Err }

type HTTPClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpc:   &http.Client{Timeout: timeout},
	}
}

type issueRequest struct {
	UserName string          `json:"userName"`
	Amount   json.RawMessage `json:"amount"`
}

type issueResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *HTTPClient) Issue(ctx context.Context, identity string, amount decimal.Decimal) (Result, error) {
	// Amount goes over the wire as a bare JSON number.
	body, err := json.Marshal(issueRequest{
		UserName: identity,
		Amount:   json.RawMessage(amount.String()),
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode credit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auto-loc04", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build credit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Result{}, &AmbiguousError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &AmbiguousError{Err: err}
	}

	var decoded issueResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		// The partner answered but with a body we cannot interpret; that
		// is still an unknown payout outcome.
		return Result{}, &AmbiguousError{Err: fmt.Errorf("decode credit response (status %d): %w", resp.StatusCode, err)}
	}

	if decoded.Success {
		return Result{
			Success: true,
			Message: decoded.Message,
			Body:    json.RawMessage(raw),
		}, nil
	}

	message := decoded.Message
	if message == "" {
		message = fmt.Sprintf("credit declined (status %d)", resp.StatusCode)
	}
	return Result{
		Success: false,
		Message: message,
		Detail:  declineDetail(decoded.Data, message),
		Body:    json.RawMessage(raw),
	}, nil
}

// declineDetail digs the partner's inner error message out of the decline
// payload: data.data.msg first, then data.message, then the top-level message.
func declineDetail(data json.RawMessage, fallback string) string {
	if len(data) == 0 {
		return fallback
	}
	var outer struct {
		Message string `json:"message"`
		Data    struct {
			Msg string `json:"msg"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &outer); err != nil {
		return fallback
	}
	if outer.Data.Msg != "" {
		return outer.Data.Msg
	}
	if outer.Message != "" {
		return outer.Message
	}
	return fallback
}
