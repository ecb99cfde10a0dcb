package submit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"betledger/internal/address"
	"betledger/internal/chain"
	"betledger/internal/relay"
	"betledger/internal/retry"
	"betledger/internal/signer"
	"betledger/internal/txn"
)

type fakeLedger struct{}

func (fakeLedger) ChainID(context.Context) (uint64, error) { return 7, nil }

func (fakeLedger) SequenceNumber(context.Context, address.Address) (uint64, error) { return 3, nil }

type fakeRelay struct {
	calls int
	err   error
	tx    *txn.RawTransaction
	auth  signer.Authenticator
}

func (r *fakeRelay) Sponsor(_ context.Context, txBytes, authBytes []byte) (string, error) {
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	tx, err := txn.DecodeRawTransaction(txBytes)
	if err != nil {
		return "", err
	}
	auth, err := signer.DecodeAuthenticator(authBytes)
	if err != nil {
		return "", err
	}
	r.tx, r.auth = tx, auth
	return "0xab", nil
}

type fakeFinalizer struct {
	tx  *chain.Transaction
	err error
}

func (f *fakeFinalizer) WaitForTransaction(_ context.Context, hash string) (*chain.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	tx := *f.tx
	tx.Hash = hash
	return &tx, nil
}

type failingSigner struct{}

func (failingSigner) Sign(context.Context, []byte) (signer.Authenticator, error) {
	return signer.Authenticator{}, errors.New("user closed wallet prompt")
}

var sender = address.MustParse("0x5e4de5")

func build(t *testing.T) *txn.Built {
	t.Helper()
	b := txn.NewBuilder(txn.Config{Policy: retry.Policy{Attempts: 1}}, fakeLedger{}, nil, nil)
	built, err := b.Build(context.Background(), txn.Intent{
		Function:  chain.FunctionID{Module: address.MustParse("0xbe7"), ModuleName: "bets", Name: "place_wager"},
		Arguments: []txn.Argument{txn.U64(1), txn.U32(0), txn.U64(10)},
	}, sender, true)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return built
}

func localSigner(t *testing.T) *signer.LocalSigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	s, err := signer.NewLocalSigner(key)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return s
}

func success() *fakeFinalizer {
	return &fakeFinalizer{tx: &chain.Transaction{Committed: true, Success: true, Version: hexutil.Uint64(88)}}
}

func TestExecuteHappyPath(t *testing.T) {
	r := &fakeRelay{}
	p := New(localSigner(t), r, success(), nil, nil)

	confirmed, err := p.Execute(context.Background(), build(t))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if confirmed.Hash != "0xab" || confirmed.Version != 88 {
		t.Fatalf("unexpected confirmation: %+v", confirmed)
	}

	if r.tx.Sender != sender || r.tx.SequenceNumber != 3 || r.tx.ChainID != 7 {
		t.Fatalf("relay received unexpected transaction: %+v", r.tx)
	}
	if r.tx.FeePayer == nil || !r.tx.FeePayer.IsZero() {
		t.Fatalf("expected zero fee payer placeholder")
	}
	msg, err := txn.SigningMessage(r.tx)
	if err != nil {
		t.Fatalf("signing message: %v", err)
	}
	if !signer.Verify(r.auth, msg) {
		t.Fatalf("relay authenticator does not verify over the transaction")
	}
}

func TestStatesAreConsumedOnce(t *testing.T) {
	r := &fakeRelay{}
	p := New(localSigner(t), r, success(), nil, nil)
	built := build(t)

	signed, err := p.Sign(context.Background(), built)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := p.Sign(context.Background(), built); !errors.Is(err, ErrConsumed) {
		t.Fatalf("expected ErrConsumed on re-sign, got %v", err)
	}

	if _, err := p.Submit(context.Background(), signed); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := p.Submit(context.Background(), signed); !errors.Is(err, ErrConsumed) {
		t.Fatalf("expected ErrConsumed on resubmit, got %v", err)
	}
	if r.calls != 1 {
		t.Fatalf("relay must be called once, got %d", r.calls)
	}
}

func TestSigningFailure(t *testing.T) {
	r := &fakeRelay{}
	p := New(failingSigner{}, r, success(), nil, nil)

	_, err := p.Execute(context.Background(), build(t))
	if !errors.Is(err, signer.ErrSigningFailed) {
		t.Fatalf("expected ErrSigningFailed, got %v", err)
	}
	if r.calls != 0 {
		t.Fatalf("relay must not be called after signing failure")
	}
}

func TestRelayRejection(t *testing.T) {
	r := &fakeRelay{err: relay.ErrRejected}
	p := New(localSigner(t), r, success(), nil, nil)

	_, err := p.Execute(context.Background(), build(t))
	if !errors.Is(err, ErrSubmissionRejected) || !errors.Is(err, relay.ErrRejected) {
		t.Fatalf("expected ErrSubmissionRejected, got %v", err)
	}
}

func TestExecutionFailureAtFinality(t *testing.T) {
	f := &fakeFinalizer{tx: &chain.Transaction{Committed: true, Success: false, VMStatus: "ABORTED: E_BET_CLOSED"}}
	p := New(localSigner(t), &fakeRelay{}, f, nil, nil)

	_, err := p.Execute(context.Background(), build(t))
	if !errors.Is(err, ErrExecutionFailed) {
		t.Fatalf("expected ErrExecutionFailed, got %v", err)
	}
	if want := "E_BET_CLOSED"; !strings.Contains(err.Error(), want) {
		t.Fatalf("expected vm status in error, got %v", err)
	}
}

func TestConfirmTimeout(t *testing.T) {
	f := &fakeFinalizer{err: chain.ErrWaitTimeout}
	p := New(localSigner(t), &fakeRelay{}, f, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := p.Execute(ctx, build(t))
	if !errors.Is(err, chain.ErrWaitTimeout) {
		t.Fatalf("expected wait timeout, got %v", err)
	}
	if errors.Is(err, ErrExecutionFailed) {
		t.Fatalf("timeout must not be reported as execution failure")
	}
}
