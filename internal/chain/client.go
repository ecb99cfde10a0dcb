package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"betledger/internal/address"
)

const (
	// CodeAccountNotFound is the node's error code for an unknown account.
	CodeAccountNotFound = -32004
	// CodeTransactionNotFound is the node's error code for an unknown transaction.
	CodeTransactionNotFound = -32005

	defaultPollInterval = time.Second
	defaultWaitTimeout  = 30 * time.Second
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrQueryFailed         = errors.New("ledger query failed")
	ErrWaitTimeout         = errors.New("timed out waiting for transaction")
)

// Config tunes finality polling.
type Config struct {
	PollInterval time.Duration
	WaitTimeout  time.Duration
}

// Account is the ledger's account resource.
type Account struct {
	SequenceNumber    hexutil.Uint64 `json:"sequence_number"`
	AuthenticationKey string         `json:"authentication_key"`
}

// Transaction is the node's view of a submitted transaction.
type Transaction struct {
	Hash      string         `json:"hash"`
	Version   hexutil.Uint64 `json:"version"`
	Committed bool           `json:"committed"`
	Success   bool           `json:"success"`
	VMStatus  string         `json:"vm_status"`
}

// ViewRequest is a read-only function call against current ledger state.
type ViewRequest struct {
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []string `json:"arguments"`
}

// Client wraps the ledger node JSON-RPC endpoint.
type Client struct {
	rpcClient *rpc.Client
	cfg       Config
}

// NewClient dials the ledger node.
func NewClient(ctx context.Context, rpcURL string, cfg Config) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return NewClientWithRPC(rpcClient, cfg), nil
}

// NewClientWithRPC wraps an existing RPC client.
func NewClientWithRPC(rpcClient *rpc.Client, cfg Config) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = defaultWaitTimeout
	}
	return &Client{rpcClient: rpcClient, cfg: cfg}
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain id transactions must be bound to.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var id hexutil.Uint64
	if err := c.rpcClient.CallContext(ctx, &id, "ledger_chainId"); err != nil {
		return 0, classify("chain id", err)
	}
	return uint64(id), nil
}

// Account returns the account resource for addr.
func (c *Client) Account(ctx context.Context, addr address.Address) (Account, error) {
	var account *Account
	if err := c.rpcClient.CallContext(ctx, &account, "ledger_getAccount", addr.Hex()); err != nil {
		return Account{}, classify("get account", err)
	}
	if account == nil {
		return Account{}, fmt.Errorf("get account %s: %w", addr.Hex(), ErrAccountNotFound)
	}
	return *account, nil
}

// SequenceNumber returns the next sequence number for addr.
func (c *Client) SequenceNumber(ctx context.Context, addr address.Address) (uint64, error) {
	account, err := c.Account(ctx, addr)
	if err != nil {
		return 0, err
	}
	return uint64(account.SequenceNumber), nil
}

// View calls a view function and returns its raw return values.
func (c *Client) View(ctx context.Context, req ViewRequest) ([]json.RawMessage, error) {
	if req.TypeArguments == nil {
		req.TypeArguments = []string{}
	}
	if req.Arguments == nil {
		req.Arguments = []string{}
	}
	var values []json.RawMessage
	if err := c.rpcClient.CallContext(ctx, &values, "ledger_view", req); err != nil {
		return nil, classify("view "+req.Function, err)
	}
	return values, nil
}

// TransactionByHash returns the node's record for hash.
func (c *Client) TransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	var tx *Transaction
	if err := c.rpcClient.CallContext(ctx, &tx, "ledger_getTransactionByHash", hash); err != nil {
		return nil, classify("get transaction", err)
	}
	if tx == nil {
		return nil, fmt.Errorf("get transaction %s: %w", hash, ErrTransactionNotFound)
	}
	return tx, nil
}

// WaitForTransaction polls until hash is committed or the wait timeout elapses.
// A committed transaction is returned whether or not it executed successfully.
func (c *Client) WaitForTransaction(ctx context.Context, hash string) (*Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.WaitTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		tx, err := c.TransactionByHash(ctx, hash)
		switch {
		case err == nil && tx.Committed:
			return tx, nil
		case err != nil && !errors.Is(err, ErrTransactionNotFound):
			if ctx.Err() == nil {
				return nil, err
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", ErrWaitTimeout, hash)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func classify(op string, err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case CodeAccountNotFound:
			return fmt.Errorf("%s: %w: %v", op, ErrAccountNotFound, err)
		case CodeTransactionNotFound:
			return fmt.Errorf("%s: %w: %v", op, ErrTransactionNotFound, err)
		}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "account_not_found") || strings.Contains(msg, "account not found") {
		return fmt.Errorf("%s: %w: %v", op, ErrAccountNotFound, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrQueryFailed, err)
}
