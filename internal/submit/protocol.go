package submit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"betledger/internal/address"
	"betledger/internal/chain"
	"betledger/internal/metrics"
	"betledger/internal/signer"
	"betledger/internal/txn"
)

var (
	// ErrConsumed is returned when a state value is passed to a step twice.
	ErrConsumed           = txn.ErrConsumed
	ErrSubmissionRejected = errors.New("submission rejected")
	ErrExecutionFailed    = errors.New("transaction execution failed")
)

// Signer produces the sender's authenticator over a signing message.
type Signer interface {
	Sign(ctx context.Context, message []byte) (signer.Authenticator, error)
}

// Relay forwards a sender-signed transaction with fee sponsorship.
type Relay interface {
	Sponsor(ctx context.Context, txBytes, authBytes []byte) (string, error)
}

// Finalizer waits for a submitted transaction to commit.
type Finalizer interface {
	WaitForTransaction(ctx context.Context, hash string) (*chain.Transaction, error)
}

// SenderSigned holds a transaction and the sender's authenticator. It can be
// submitted once.
type SenderSigned struct {
	raw      *txn.RawTransaction
	auth     signer.Authenticator
	consumed atomic.Bool
}

func (s *SenderSigned) Sender() address.Address { return s.raw.Sender }

func (s *SenderSigned) Authenticator() signer.Authenticator { return s.auth }

// Submitted is a transaction accepted by the relay but not yet final.
type Submitted struct {
	Hash           string
	Sender         address.Address
	SequenceNumber uint64
}

// Confirmed is a committed, successful transaction.
type Confirmed struct {
	Hash    string
	Version uint64
}

// Protocol drives Built -> SenderSigned -> Submitted -> Confirmed. Nothing is
// retried across steps; a failed transaction must be rebuilt.
type Protocol struct {
	signer    Signer
	relay     Relay
	finalizer Finalizer
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func New(s Signer, r Relay, f Finalizer, m *metrics.Metrics, logger *zap.Logger) *Protocol {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Protocol{signer: s, relay: r, finalizer: f, metrics: m, logger: logger}
}

// Sign consumes built and attaches the sender's authenticator.
func (p *Protocol) Sign(ctx context.Context, built *txn.Built) (*SenderSigned, error) {
	if built == nil {
		return nil, fmt.Errorf("%w: nil transaction", signer.ErrSigningFailed)
	}
	raw, err := built.Take()
	if err != nil {
		return nil, err
	}
	msg, err := txn.SigningMessage(raw)
	if err != nil {
		return nil, p.fail("sign", fmt.Errorf("%w: %w", signer.ErrSigningFailed, err))
	}
	auth, err := p.signer.Sign(ctx, msg)
	if err != nil {
		if !errors.Is(err, signer.ErrSigningFailed) {
			err = fmt.Errorf("%w: %w", signer.ErrSigningFailed, err)
		}
		return nil, p.fail("sign", err)
	}

	p.metrics.ObserveSubmission("signed")
	p.logger.Debug("transaction signed",
		zap.String("sender", raw.Sender.Hex()),
		zap.Uint64("sequence", raw.SequenceNumber),
	)
	return &SenderSigned{raw: raw, auth: auth}, nil
}

// Submit consumes signed and hands it to the sponsor relay.
func (p *Protocol) Submit(ctx context.Context, signed *SenderSigned) (Submitted, error) {
	if signed == nil {
		return Submitted{}, fmt.Errorf("%w: nil transaction", ErrSubmissionRejected)
	}
	if !signed.consumed.CompareAndSwap(false, true) {
		return Submitted{}, ErrConsumed
	}
	txBytes, err := signed.raw.Encode()
	if err != nil {
		return Submitted{}, p.fail("submit", fmt.Errorf("%w: encode transaction: %w", ErrSubmissionRejected, err))
	}
	authBytes, err := signed.auth.Bytes()
	if err != nil {
		return Submitted{}, p.fail("submit", fmt.Errorf("%w: encode authenticator: %w", ErrSubmissionRejected, err))
	}
	hash, err := p.relay.Sponsor(ctx, txBytes, authBytes)
	if err != nil {
		return Submitted{}, p.fail("submit", fmt.Errorf("%w: %w", ErrSubmissionRejected, err))
	}

	p.metrics.ObserveSubmission("submitted")
	p.logger.Info("transaction submitted",
		zap.String("hash", hash),
		zap.String("sender", signed.raw.Sender.Hex()),
		zap.Uint64("sequence", signed.raw.SequenceNumber),
	)
	return Submitted{Hash: hash, Sender: signed.raw.Sender, SequenceNumber: signed.raw.SequenceNumber}, nil
}

// Confirm waits for submitted to commit and checks its execution status.
func (p *Protocol) Confirm(ctx context.Context, submitted Submitted) (Confirmed, error) {
	tx, err := p.finalizer.WaitForTransaction(ctx, submitted.Hash)
	if err != nil {
		return Confirmed{}, p.fail("confirm", fmt.Errorf("confirm %s: %w", submitted.Hash, err))
	}
	if !tx.Success {
		return Confirmed{}, p.fail("confirm", fmt.Errorf("%w: %s: %s", ErrExecutionFailed, submitted.Hash, tx.VMStatus))
	}

	p.metrics.ObserveSubmission("confirmed")
	p.logger.Info("transaction confirmed",
		zap.String("hash", submitted.Hash),
		zap.Uint64("version", uint64(tx.Version)),
	)
	return Confirmed{Hash: submitted.Hash, Version: uint64(tx.Version)}, nil
}

// Execute runs Sign, Submit and Confirm in order.
func (p *Protocol) Execute(ctx context.Context, built *txn.Built) (Confirmed, error) {
	signed, err := p.Sign(ctx, built)
	if err != nil {
		return Confirmed{}, err
	}
	submitted, err := p.Submit(ctx, signed)
	if err != nil {
		return Confirmed{}, err
	}
	return p.Confirm(ctx, submitted)
}

func (p *Protocol) fail(step string, err error) error {
	p.metrics.ObserveSubmission("failed")
	p.logger.Warn("submission step failed", zap.String("step", step), zap.Error(err))
	return err
}
