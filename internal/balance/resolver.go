package balance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"betledger/internal/address"
	"betledger/internal/chain"
	"betledger/internal/indexer"
	"betledger/internal/metrics"
	"betledger/internal/model"
)

// Source identifies which path served a balance.
type Source string

const (
	SourceDirect Source = "direct"
	SourceIndex  Source = "index"
	SourceNone   Source = "none"
)

// LedgerReader calls view functions on the ledger node.
type LedgerReader interface {
	View(ctx context.Context, req chain.ViewRequest) ([]json.RawMessage, error)
}

// BalanceIndex serves the indexing service's materialized balances.
type BalanceIndex interface {
	Balances(ctx context.Context, owner address.Address) ([]model.BalanceSnapshot, error)
}

// Config names the asset and the view function that reads it.
type Config struct {
	// ViewFunction is called with the owner followed by ViewArguments.
	ViewFunction  string
	TypeArguments []string
	ViewArguments []string
	// AssetType identifies the asset in the indexer's balance table.
	AssetType string
}

// Result is a resolved balance and the path that produced it.
type Result struct {
	Amount uint64
	Source Source
}

// Resolver reads fungible balances from live ledger state, degrading to the
// indexing service when the ledger is unavailable or returns nothing.
type Resolver struct {
	cfg     Config
	ledger  LedgerReader
	index   BalanceIndex
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewResolver(cfg Config, ledger LedgerReader, index BalanceIndex, m *metrics.Metrics, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cfg: cfg, ledger: ledger, index: index, logger: logger, metrics: m}
}

// Balance returns the owner's balance, or 0 when neither path can answer.
func (r *Resolver) Balance(ctx context.Context, owner address.Address) uint64 {
	res, err := r.Lookup(ctx, owner)
	if err != nil {
		r.logger.Warn("balance unavailable", zap.String("owner", owner.Hex()), zap.Error(err))
	}
	return res.Amount
}

// Lookup resolves the owner's balance and reports the serving path. It errors
// only when both paths failed.
func (r *Resolver) Lookup(ctx context.Context, owner address.Address) (Result, error) {
	amount, directErr := r.direct(ctx, owner)
	if directErr == nil && amount > 0 {
		r.metrics.ObserveReadSource("balance", string(SourceDirect))
		return Result{Amount: amount, Source: SourceDirect}, nil
	}
	if directErr != nil {
		r.logger.Debug("direct balance failed, using index", zap.String("owner", owner.Hex()), zap.Error(directErr))
	}

	indexed, found, indexErr := r.fromIndex(ctx, owner)
	if indexErr == nil && found {
		r.metrics.ObserveReadSource("balance", string(SourceIndex))
		return Result{Amount: indexed, Source: SourceIndex}, nil
	}

	r.metrics.ObserveReadSource("balance", string(SourceNone))
	if directErr != nil && indexErr != nil {
		return Result{Source: SourceNone}, fmt.Errorf("%w: direct: %v; index: %v", indexer.ErrQueryFailed, directErr, indexErr)
	}
	return Result{Source: SourceNone}, nil
}

func (r *Resolver) direct(ctx context.Context, owner address.Address) (uint64, error) {
	if r.ledger == nil {
		return 0, fmt.Errorf("ledger reader is nil")
	}
	if r.cfg.ViewFunction == "" {
		return 0, fmt.Errorf("balance view function not configured")
	}
	args := append([]string{owner.Hex()}, r.cfg.ViewArguments...)
	values, err := r.ledger.View(ctx, chain.ViewRequest{
		Function:      r.cfg.ViewFunction,
		TypeArguments: r.cfg.TypeArguments,
		Arguments:     args,
	})
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, nil
	}
	return decodeAmount(values[0])
}

func (r *Resolver) fromIndex(ctx context.Context, owner address.Address) (uint64, bool, error) {
	if r.index == nil {
		return 0, false, fmt.Errorf("balance index is nil")
	}
	rows, err := r.index.Balances(ctx, owner)
	if err != nil {
		return 0, false, err
	}

	rows = ownedBy(rows, owner)
	if row, ok := matchAsset(rows, r.cfg.AssetType); ok {
		amount, err := strconv.ParseUint(strings.TrimSpace(row.Amount), 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("parse indexed amount %q: %w", row.Amount, err)
		}
		return amount, true, nil
	}
	return 0, false, nil
}

func ownedBy(rows []model.BalanceSnapshot, owner address.Address) []model.BalanceSnapshot {
	out := rows[:0:0]
	for _, row := range rows {
		if row.OwnerAddress != "" {
			if addr, err := address.Parse(row.OwnerAddress); err == nil && addr != owner {
				continue
			}
		}
		out = append(out, row)
	}
	return out
}

// matchAsset prefers an exact asset type match and falls back to a substring
// match on the type's module path, since the index may spell the same asset
// with a shortened address or wrapped in a store type.
func matchAsset(rows []model.BalanceSnapshot, assetType string) (model.BalanceSnapshot, bool) {
	want := canonicalAssetType(assetType)
	if want == "" {
		return model.BalanceSnapshot{}, false
	}
	for _, row := range rows {
		if canonicalAssetType(row.AssetType) == want {
			return row, true
		}
	}

	tail := assetTail(want)
	for _, row := range rows {
		got := strings.ToLower(row.AssetType)
		if strings.Contains(got, want) || (tail != "" && strings.Contains(got, tail)) {
			return row, true
		}
	}
	return model.BalanceSnapshot{}, false
}

func canonicalAssetType(assetType string) string {
	assetType = strings.ToLower(strings.TrimSpace(assetType))
	head, rest, found := strings.Cut(assetType, "::")
	if !found {
		if addr, err := address.Parse(assetType); err == nil {
			return addr.Hex()
		}
		return assetType
	}
	addr, err := address.Parse(head)
	if err != nil {
		return assetType
	}
	return addr.Hex() + "::" + rest
}

func assetTail(assetType string) string {
	_, rest, found := strings.Cut(assetType, "::")
	if !found {
		return ""
	}
	return "::" + rest
}

func decodeAmount(raw json.RawMessage) (uint64, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strconv.ParseUint(strings.TrimSpace(text), 10, 64)
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return 0, fmt.Errorf("decode balance %s: %w", string(raw), err)
	}
	return strconv.ParseUint(num.String(), 10, 64)
}
