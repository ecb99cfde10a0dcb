package relay

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

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
)

// ErrRejected is returned when the relay refuses to sponsor a transaction.
var ErrRejected = errors.New("relay rejected transaction")

// RequestIDHeader carries a per-call id for correlating relay logs.
const RequestIDHeader = "X-Request-ID"

// Config defines the sponsor relay endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client submits sender-signed transactions to the fee-sponsoring relay,
// which adds the fee payer signature and forwards to the ledger.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// SponsorRequest is the relay's submission payload.
type SponsorRequest struct {
	TransactionBytes         string `json:"transactionBytes"`
	SenderAuthenticatorBytes string `json:"senderAuthenticatorBytes"`
}

type sponsorResponse struct {
	PendingTransactionHandle struct {
		Hash string `json:"hash"`
	} `json:"pendingTransactionHandle"`
	Error string `json:"error,omitempty"`
}

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("relay: base url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Sponsor submits the transaction and sender authenticator and returns the
// pending transaction hash.
func (c *Client) Sponsor(ctx context.Context, txBytes, authBytes []byte) (string, error) {
	if c == nil || c.httpClient == nil {
		return "", fmt.Errorf("relay: client not configured")
	}
	buf, err := json.Marshal(SponsorRequest{
		TransactionBytes:         hexutil.Encode(txBytes),
		SenderAuthenticatorBytes: hexutil.Encode(authBytes),
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sponsor", bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: request %s: %w", ErrRejected, requestID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", ErrRejected, err)
	}
	var out sponsorResponse
	decodeErr := json.Unmarshal(body, &out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(out.Error)
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return "", fmt.Errorf("%w: request %s: status %d: %s", ErrRejected, requestID, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrRejected, decodeErr)
	}
	hash := strings.TrimSpace(out.PendingTransactionHandle.Hash)
	if hash == "" {
		return "", fmt.Errorf("%w: request %s: response missing transaction hash", ErrRejected, requestID)
	}
	return hash, nil
}
