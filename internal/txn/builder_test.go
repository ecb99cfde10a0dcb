package txn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"betledger/internal/address"
	"betledger/internal/chain"
	"betledger/internal/retry"
)

type fakeLedger struct {
	mu          sync.Mutex
	missing     int
	seqErr      error
	chainErr    error
	seqCalls    int
	sequence    uint64
	chainID     uint64
	chainIDCall int
}

func (f *fakeLedger) ChainID(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chainIDCall++
	return f.chainID, f.chainErr
}

func (f *fakeLedger) SequenceNumber(context.Context, address.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seqCalls++
	if f.seqCalls <= f.missing {
		return 0, chain.ErrAccountNotFound
	}
	if f.seqErr != nil {
		return 0, f.seqErr
	}
	return f.sequence, nil
}

var (
	sender = address.MustParse("0x5e4de5")
	module = address.MustParse("0xbe7")
)

func placeWager() Intent {
	return Intent{
		Function: chain.FunctionID{Module: module, ModuleName: "bets", Name: "place_wager"},
		Arguments: []Argument{
			U64(42),
			U32(1),
			U64(500),
		},
	}
}

func newTestBuilder(ledger LedgerState) *Builder {
	return NewBuilder(Config{
		Policy: retry.Policy{Attempts: retry.BuildAttempts, Interval: time.Millisecond},
		Now:    func() time.Time { return time.Unix(1_700_000_000, 0) },
	}, ledger, nil, nil)
}

func TestBuildSucceedsOnFifthAttempt(t *testing.T) {
	ledger := &fakeLedger{missing: 4, sequence: 9, chainID: 2}
	built, err := newTestBuilder(ledger).Build(context.Background(), placeWager(), sender, true)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if ledger.seqCalls != 5 {
		t.Fatalf("expected 5 attempts, got %d", ledger.seqCalls)
	}

	raw := built.Transaction()
	if raw.SequenceNumber != 9 || raw.ChainID != 2 || raw.Sender != sender {
		t.Fatalf("unexpected transaction: %+v", raw)
	}
	if !raw.Sponsored() || !raw.FeePayer.IsZero() {
		t.Fatalf("expected zero fee payer placeholder")
	}
	if raw.ExpirationTimestampSecs != 1_700_000_060 {
		t.Fatalf("unexpected expiration %d", raw.ExpirationTimestampSecs)
	}
	if raw.MaxGasAmount != DefaultMaxGasAmount || raw.GasUnitPrice != DefaultGasUnitPrice {
		t.Fatalf("gas defaults not applied: %+v", raw)
	}
}

func TestBuildFailsAfterFiveMisses(t *testing.T) {
	ledger := &fakeLedger{missing: 5}
	_, err := newTestBuilder(ledger).Build(context.Background(), placeWager(), sender, true)
	if !errors.Is(err, ErrBuildFailed) {
		t.Fatalf("expected ErrBuildFailed, got %v", err)
	}
	if !errors.Is(err, retry.ErrExhausted) || !errors.Is(err, chain.ErrAccountNotFound) {
		t.Fatalf("expected exhausted account-not-found cause, got %v", err)
	}
	if ledger.seqCalls != 5 {
		t.Fatalf("expected 5 attempts, got %d", ledger.seqCalls)
	}
	if ledger.chainIDCall != 0 {
		t.Fatalf("chain id must not be read after a failed sequence lookup")
	}
}

func TestBuildDoesNotRetryOtherErrors(t *testing.T) {
	ledger := &fakeLedger{seqErr: chain.ErrQueryFailed}
	_, err := newTestBuilder(ledger).Build(context.Background(), placeWager(), sender, false)
	if !errors.Is(err, ErrBuildFailed) || !errors.Is(err, chain.ErrQueryFailed) {
		t.Fatalf("unexpected error: %v", err)
	}
	if ledger.seqCalls != 1 {
		t.Fatalf("expected a single attempt, got %d", ledger.seqCalls)
	}
}

func TestBuildRejectsMalformedIntent(t *testing.T) {
	ledger := &fakeLedger{}
	intent := placeWager()
	intent.Arguments = append(intent.Arguments, Argument{Kind: KindU64, Value: []byte{1}})

	_, err := newTestBuilder(ledger).Build(context.Background(), intent, sender, false)
	if !errors.Is(err, ErrBuildFailed) {
		t.Fatalf("expected ErrBuildFailed, got %v", err)
	}
	if ledger.seqCalls != 0 {
		t.Fatalf("malformed intent must fail before touching the ledger")
	}

	intent = placeWager()
	intent.Function.Name = ""
	if _, err := newTestBuilder(ledger).Build(context.Background(), intent, sender, false); !errors.Is(err, ErrBuildFailed) {
		t.Fatalf("expected ErrBuildFailed for missing function, got %v", err)
	}
}

func TestBuildChainIDFailure(t *testing.T) {
	ledger := &fakeLedger{chainErr: errors.New("node down")}
	if _, err := newTestBuilder(ledger).Build(context.Background(), placeWager(), sender, false); !errors.Is(err, ErrBuildFailed) {
		t.Fatalf("expected ErrBuildFailed, got %v", err)
	}
}

func TestBuiltIsTakenOnce(t *testing.T) {
	built, err := newTestBuilder(&fakeLedger{chainID: 1}).Build(context.Background(), placeWager(), sender, false)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	tx := built.Transaction()
	if tx.Sponsored() {
		t.Fatalf("unsponsored build must not carry a fee payer")
	}
	if _, err := built.Take(); err != nil {
		t.Fatalf("first take: %v", err)
	}
	if _, err := built.Take(); !errors.Is(err, ErrConsumed) {
		t.Fatalf("expected ErrConsumed, got %v", err)
	}
}

func TestBuiltTransactionDoesNotAliasTakenCopy(t *testing.T) {
	built, err := newTestBuilder(&fakeLedger{chainID: 1}).Build(context.Background(), placeWager(), sender, true)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	view := built.Transaction()
	view.FeePayer[0] = 0xff
	view.Payload.Arguments[0][0] = 0xff
	view.Payload.TypeArguments = append(view.Payload.TypeArguments, "0x1::coin::USD")

	raw, err := built.Take()
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if !raw.FeePayer.IsZero() {
		t.Fatalf("fee payer was mutated through Transaction: %s", raw.FeePayer.Hex())
	}
	if raw.Payload.Arguments[0][0] != 42 {
		t.Fatalf("argument bytes were mutated through Transaction: %x", raw.Payload.Arguments[0])
	}
	if len(raw.Payload.TypeArguments) != 0 {
		t.Fatalf("type arguments were mutated through Transaction: %v", raw.Payload.TypeArguments)
	}

	raw.Payload.Arguments[1][0] = 0xff
	if built.Transaction().Payload.Arguments[1][0] != 1 {
		t.Fatalf("taken transaction aliases the built one")
	}
}
