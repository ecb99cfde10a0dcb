package txn

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"betledger/internal/address"
	"betledger/internal/chain"
	"betledger/internal/metrics"
	"betledger/internal/retry"
)

const (
	DefaultMaxGasAmount     = 200_000
	DefaultGasUnitPrice     = 100
	DefaultExpirationWindow = 60 * time.Second
)

var (
	ErrBuildFailed = errors.New("transaction build failed")
	// ErrConsumed is returned when a protocol state is used twice.
	ErrConsumed = errors.New("state already consumed")
)

// LedgerState is what the builder reads from the node.
type LedgerState interface {
	ChainID(ctx context.Context) (uint64, error)
	SequenceNumber(ctx context.Context, addr address.Address) (uint64, error)
}

// Config tunes gas, expiration and the account visibility retry.
type Config struct {
	MaxGasAmount     uint64
	GasUnitPrice     uint64
	ExpirationWindow time.Duration
	Policy           retry.Policy
	Now              func() time.Time
}

// Builder binds intents to a sender's current account state.
type Builder struct {
	cfg     Config
	ledger  LedgerState
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewBuilder(cfg Config, ledger LedgerState, m *metrics.Metrics, logger *zap.Logger) *Builder {
	if cfg.MaxGasAmount == 0 {
		cfg.MaxGasAmount = DefaultMaxGasAmount
	}
	if cfg.GasUnitPrice == 0 {
		cfg.GasUnitPrice = DefaultGasUnitPrice
	}
	if cfg.ExpirationWindow <= 0 {
		cfg.ExpirationWindow = DefaultExpirationWindow
	}
	if cfg.Policy.Attempts <= 0 {
		cfg.Policy = retry.BuildPolicy()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{cfg: cfg, ledger: ledger, metrics: m, logger: logger}
}

// Built is an unsigned transaction ready for the sender's signature. It can
// be taken for signing exactly once.
type Built struct {
	raw      RawTransaction
	consumed atomic.Bool
}

// Transaction returns a deep copy of the unsigned transaction; mutating it
// does not affect what Take hands out.
func (b *Built) Transaction() RawTransaction {
	return b.raw.clone()
}

// Take hands the transaction to the next protocol step.
func (b *Built) Take() (*RawTransaction, error) {
	if !b.consumed.CompareAndSwap(false, true) {
		return nil, ErrConsumed
	}
	raw := b.raw.clone()
	return &raw, nil
}

// Build binds intent to sender. A freshly funded account may not be visible
// to the node yet, so account-not-found is retried under the configured
// policy.
func (b *Builder) Build(ctx context.Context, intent Intent, sender address.Address, withFeePayer bool) (*Built, error) {
	if err := intent.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}

	attempt := 0
	var seq uint64
	err := b.cfg.Policy.Do(ctx, func(ctx context.Context) error {
		attempt++
		n, err := b.ledger.SequenceNumber(ctx, sender)
		if err != nil {
			return err
		}
		seq = n
		return nil
	}, func(err error) bool {
		if !errors.Is(err, chain.ErrAccountNotFound) {
			return false
		}
		if attempt >= b.cfg.Policy.Attempts {
			return true
		}
		b.metrics.ObserveBuildRetry()
		b.logger.Info("sender account not visible yet",
			zap.String("sender", sender.Hex()),
			zap.Int("attempt", attempt),
		)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("%w: sequence number: %w", ErrBuildFailed, err)
	}

	chainID, err := b.ledger.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: chain id: %w", ErrBuildFailed, err)
	}

	raw := RawTransaction{
		Sender:                  sender,
		SequenceNumber:          seq,
		Payload:                 entryFunction(intent),
		MaxGasAmount:            b.cfg.MaxGasAmount,
		GasUnitPrice:            b.cfg.GasUnitPrice,
		ExpirationTimestampSecs: uint64(b.cfg.Now().Add(b.cfg.ExpirationWindow).Unix()),
		ChainID:                 chainID,
	}
	if withFeePayer {
		placeholder := address.Zero
		raw.FeePayer = &placeholder
	}

	b.logger.Debug("transaction built",
		zap.String("sender", sender.Hex()),
		zap.Uint64("sequence", seq),
		zap.String("function", intent.Function.String()),
		zap.Bool("sponsored", withFeePayer),
	)
	return &Built{raw: raw}, nil
}
