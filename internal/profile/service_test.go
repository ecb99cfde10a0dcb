package profile

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"betledger/internal/cache"
	"betledger/internal/chain"
	"betledger/internal/model"
)

type fakeLedger struct {
	mu     sync.Mutex
	calls  int
	args   []string
	values []json.RawMessage
	err    error
}

func (f *fakeLedger) View(_ context.Context, req chain.ViewRequest) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.args = req.Arguments
	return f.values, f.err
}

func raw(values ...string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		out = append(out, json.RawMessage(v))
	}
	return out
}

func TestGetDecodesAndCaches(t *testing.T) {
	ledger := &fakeLedger{values: raw(`"alice"`, `7`, `true`)}
	svc := NewService("0x1::profile::get", ledger, nil, nil)

	p := svc.Get(context.Background(), "0xABC")
	if !p.Exists || p.Name != "alice" || p.AvatarID != "7" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if ledger.args[0] != "0x0000000000000000000000000000000000000000000000000000000000000abc" {
		t.Fatalf("address not normalized: %v", ledger.args)
	}

	// same account spelled differently hits the cache
	svc.Get(context.Background(), "0x0abc")
	if ledger.calls != 1 {
		t.Fatalf("expected 1 view call, got %d", ledger.calls)
	}
}

func TestFailedLookupCachesMissingProfile(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := cache.New[model.Profile](cache.Config{Name: "profile", TTL: 10 * time.Second, Now: func() time.Time { return now }})
	ledger := &fakeLedger{err: errors.New("node unreachable")}
	svc := NewService("0x1::profile::get", ledger, c, nil)

	if p := svc.Get(context.Background(), "0xb0b"); p.Exists {
		t.Fatalf("expected missing profile, got %+v", p)
	}
	svc.Get(context.Background(), "0xb0b")
	if ledger.calls != 1 {
		t.Fatalf("failed lookup must be cached, got %d calls", ledger.calls)
	}

	ledger.err = nil
	ledger.values = raw(`"bob"`, `"av-1"`, `true`)
	now = now.Add(11 * time.Second)
	if p := svc.Get(context.Background(), "0xb0b"); !p.Exists || p.AvatarID != "av-1" {
		t.Fatalf("expected refetch after expiry, got %+v", p)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	ledger := &fakeLedger{values: raw(`"carol"`, `1`, `true`)}
	svc := NewService("0x1::profile::get", ledger, nil, nil)

	svc.Get(context.Background(), "0xca")
	if err := svc.Invalidate("0x00ca"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	svc.Get(context.Background(), "0xca")
	if ledger.calls != 2 {
		t.Fatalf("expected 2 view calls, got %d", ledger.calls)
	}
}

func TestMalformedAddressSkipsLedger(t *testing.T) {
	ledger := &fakeLedger{}
	svc := NewService("0x1::profile::get", ledger, nil, nil)

	if p := svc.Get(context.Background(), "not-an-address"); p.Exists {
		t.Fatalf("expected empty profile")
	}
	if ledger.calls != 0 {
		t.Fatalf("ledger must not be called for malformed address")
	}
	if err := svc.Invalidate("zz"); err == nil {
		t.Fatalf("expected invalid address error")
	}
}

func TestShortViewResultIsMissing(t *testing.T) {
	ledger := &fakeLedger{values: raw(`"dave"`)}
	svc := NewService("0x1::profile::get", ledger, nil, nil)
	if p := svc.Get(context.Background(), "0xd"); p.Exists || p.Name != "" {
		t.Fatalf("expected empty profile, got %+v", p)
	}
}
