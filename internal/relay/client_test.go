package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSponsorReturnsPendingHash(t *testing.T) {
	seen := map[string]bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/sponsor", r.URL.Path)
		require.Equal(t, "Bearer relay-key", r.Header.Get("Authorization"))

		id := r.Header.Get(RequestIDHeader)
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		require.False(t, seen[id], "request id reused")
		seen[id] = true

		var req SponsorRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, hexutil.Encode([]byte{1, 2, 3}), req.TransactionBytes)
		require.Equal(t, hexutil.Encode([]byte{9}), req.SenderAuthenticatorBytes)

		_, _ = w.Write([]byte(`{"pendingTransactionHandle":{"hash":"0xabc"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "relay-key"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		hash, err := c.Sponsor(context.Background(), []byte{1, 2, 3}, []byte{9})
		require.NoError(t, err)
		require.Equal(t, "0xabc", hash)
	}
	require.Len(t, seen, 2)
}

func TestSponsorRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"sequence number too old"}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Sponsor(context.Background(), []byte{1}, []byte{2})
	require.ErrorIs(t, err, ErrRejected)
	require.Contains(t, err.Error(), "sequence number too old")
}

func TestSponsorMissingHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Sponsor(context.Background(), []byte{1}, []byte{2})
	require.ErrorIs(t, err, ErrRejected)
}

func TestSponsorNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := NewClient(Config{BaseURL: url})
	require.NoError(t, err)
	_, err = c.Sponsor(context.Background(), []byte{1}, []byte{2})
	require.ErrorIs(t, err, ErrRejected)
}
