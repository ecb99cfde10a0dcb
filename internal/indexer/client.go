package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"betledger/internal/address"
	"betledger/internal/model"
)

// ErrQueryFailed wraps every indexing service failure.
var ErrQueryFailed = errors.New("indexer query failed")

// Config defines the HTTP client settings for the indexing service.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RateLimit caps requests per second; zero disables limiting.
	RateLimit float64
	Burst     int
}

// Client queries the indexing service for event records and balance snapshots.
// Every query fetches the full result set; no cursor is held between calls.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// EventFilter selects events of one kind whose payload fields equal Fields.
type EventFilter struct {
	Type   model.EventKind   `json:"type"`
	Fields map[string]string `json:"filters,omitempty"`
}

// BetFilter selects events of kind for betID in its canonical form.
func BetFilter(kind model.EventKind, betID string) EventFilter {
	return EventFilter{Type: kind, Fields: map[string]string{model.FieldBetID: model.CanonicalBetID(betID)}}
}

type eventsResponse struct {
	Events []model.LedgerEvent `json:"events"`
}

type balancesRequest struct {
	OwnerAddress string `json:"owner_address"`
}

type balancesResponse struct {
	Balances []model.BalanceSnapshot `json:"balances"`
}

// NewClient constructs a client with sane defaults.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("indexer: base url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}, nil
}

// Events returns every event matching filter, sorted by ordering key with
// repeated keys dropped.
func (c *Client) Events(ctx context.Context, filter EventFilter) ([]model.LedgerEvent, error) {
	if filter.Type == "" {
		return nil, fmt.Errorf("%w: event type required", ErrQueryFailed)
	}
	var resp eventsResponse
	if err := c.post(ctx, "/v1/events", filter, &resp); err != nil {
		return nil, err
	}
	return model.SortEvents(resp.Events), nil
}

// Balances returns the materialized balance rows for owner.
func (c *Client) Balances(ctx context.Context, owner address.Address) ([]model.BalanceSnapshot, error) {
	var resp balancesResponse
	if err := c.post(ctx, "/v1/balances", balancesRequest{OwnerAddress: owner.Hex()}, &resp); err != nil {
		return nil, err
	}
	return resp.Balances, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("%w: client not configured", ErrQueryFailed)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limit: %w", ErrQueryFailed, err)
		}
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrQueryFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("%w: request: %w", ErrQueryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: call %s: %w", ErrQueryFailed, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s: unexpected status %d: %s", ErrQueryFailed, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrQueryFailed, path, err)
	}
	return nil
}
