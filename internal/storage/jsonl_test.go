package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"betledger/internal/model"
)

func TestJsonlStorageAppendsSnapshots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bets.jsonl")
	store := NewJsonlStorage(path)

	winning := uint32(0)
	payout := uint64(38)
	exported := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	first := []model.BetSnapshot{{
		BetID:          "42",
		TotalPool:      40,
		Resolved:       true,
		WinningOutcome: &winning,
		Wagers: []model.WagerSnapshot{
			{Bettor: "0x0a", OutcomeIndex: 0, Amount: 25, Winner: true, Payout: &payout},
		},
		ExportedAt: exported,
	}}
	second := []model.BetSnapshot{{BetID: "43", Wagers: []model.WagerSnapshot{}, ExportedAt: exported}}

	if err := store.PutSnapshots(context.Background(), first); err != nil {
		t.Fatalf("put first: %v", err)
	}
	if err := store.PutSnapshots(context.Background(), second); err != nil {
		t.Fatalf("put second: %v", err)
	}
	if err := store.PutSnapshots(context.Background(), nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	var got []model.BetSnapshot
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var snap model.BetSnapshot
		if err := json.Unmarshal(scanner.Bytes(), &snap); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		got = append(got, snap)
	}
	want := append(first, second...)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected snapshots:\n got %+v\nwant %+v", got, want)
	}
}

func TestJsonlStorageHonorsCancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bets.jsonl")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewJsonlStorage(path).PutSnapshots(ctx, []model.BetSnapshot{{BetID: "1"}})
	if err == nil {
		t.Fatalf("expected context error")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("no file should be written on cancelled context")
	}
}
