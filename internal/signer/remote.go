package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// RemoteConfig configures the embedded-wallet signing service.
type RemoteConfig struct {
	BaseURL  string
	WalletID string
	APIKey   string
	SignPath string
	Timeout  time.Duration
}

// RemoteSigner asks a signing service holding the sender's key to sign.
type RemoteSigner struct {
	walletID   string
	apiKey     string
	url        string
	httpClient *http.Client
}

type signRequest struct {
	WalletID   string `json:"walletId"`
	MessageHex string `json:"messageHex"`
}

type signResponse struct {
	SignatureHex string `json:"signatureHex"`
	PublicKeyHex string `json:"publicKeyHex,omitempty"`
	Error        string `json:"error,omitempty"`
}

func NewRemoteSigner(cfg RemoteConfig) (*RemoteSigner, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("signer: base url required")
	}
	walletID := strings.TrimSpace(cfg.WalletID)
	if walletID == "" {
		return nil, fmt.Errorf("signer: wallet id required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	signPath := strings.TrimSpace(cfg.SignPath)
	if signPath == "" {
		signPath = "/sign"
	}
	return &RemoteSigner{
		walletID:   walletID,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		url:        strings.TrimRight(base, "/") + path.Clean("/"+signPath),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Sign sends message to the signing service. Provider errors are passed
// through inside ErrSigningFailed.
func (s *RemoteSigner) Sign(ctx context.Context, message []byte) (Authenticator, error) {
	if len(message) == 0 {
		return Authenticator{}, fmt.Errorf("%w: empty message", ErrSigningFailed)
	}
	buf, err := json.Marshal(signRequest{WalletID: s.walletID, MessageHex: hexutil.Encode(message)})
	if err != nil {
		return Authenticator{}, fmt.Errorf("%w: encode: %w", ErrSigningFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(buf))
	if err != nil {
		return Authenticator{}, fmt.Errorf("%w: request: %w", ErrSigningFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Authenticator{}, fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Authenticator{}, fmt.Errorf("%w: read response: %w", ErrSigningFailed, err)
	}
	var out signResponse
	decodeErr := json.Unmarshal(body, &out)
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(out.Error)
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return Authenticator{}, fmt.Errorf("%w: provider status %d: %s", ErrSigningFailed, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return Authenticator{}, fmt.Errorf("%w: decode response: %w", ErrSigningFailed, decodeErr)
	}
	if out.Error != "" {
		return Authenticator{}, fmt.Errorf("%w: %s", ErrSigningFailed, out.Error)
	}

	sig, err := hexutil.Decode(out.SignatureHex)
	if err != nil {
		return Authenticator{}, fmt.Errorf("%w: signature: %w", ErrSigningFailed, err)
	}
	if len(sig) != crypto.SignatureLength {
		return Authenticator{}, fmt.Errorf("%w: signature is %d bytes", ErrSigningFailed, len(sig))
	}

	var pub []byte
	if out.PublicKeyHex != "" {
		if pub, err = hexutil.Decode(out.PublicKeyHex); err != nil {
			return Authenticator{}, fmt.Errorf("%w: public key: %w", ErrSigningFailed, err)
		}
	} else {
		key, err := crypto.SigToPub(crypto.Keccak256(message), sig)
		if err != nil {
			return Authenticator{}, fmt.Errorf("%w: recover public key: %w", ErrSigningFailed, err)
		}
		pub = crypto.FromECDSAPub(key)
	}

	auth := Authenticator{PublicKey: pub, Signature: sig}
	if !Verify(auth, message) {
		return Authenticator{}, fmt.Errorf("%w: signature does not match public key", ErrSigningFailed)
	}
	return auth, nil
}
