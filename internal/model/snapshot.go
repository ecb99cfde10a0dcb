package model

import "time"

// BetSnapshot is the exported form of a reconciled bet.
type BetSnapshot struct {
	BetID          string          `json:"bet_id"`
	TotalPool      uint64          `json:"total_pool"`
	Resolved       bool            `json:"resolved"`
	WinningOutcome *uint32         `json:"winning_outcome,omitempty"`
	Wagers         []WagerSnapshot `json:"wagers"`
	ExportedAt     time.Time       `json:"exported_at"`
}

// WagerSnapshot is one bettor row of a BetSnapshot.
type WagerSnapshot struct {
	Bettor       string  `json:"bettor"`
	OutcomeIndex uint32  `json:"outcome_index"`
	Amount       uint64  `json:"amount"`
	Winner       bool    `json:"winner"`
	Payout       *uint64 `json:"payout,omitempty"`
}

// NewBetSnapshot flattens an aggregate for storage.
func NewBetSnapshot(agg BetAggregate, exportedAt time.Time) BetSnapshot {
	wagers := make([]WagerSnapshot, 0, len(agg.Wagers))
	for _, w := range agg.Wagers {
		wagers = append(wagers, WagerSnapshot{
			Bettor:       w.Bettor.Hex(),
			OutcomeIndex: w.OutcomeIndex,
			Amount:       w.CumulativeAmount,
			Winner:       w.Winner,
			Payout:       w.Payout,
		})
	}
	return BetSnapshot{
		BetID:          agg.BetID,
		TotalPool:      agg.TotalPool,
		Resolved:       agg.Resolved,
		WinningOutcome: agg.WinningOutcome,
		Wagers:         wagers,
		ExportedAt:     exportedAt.UTC(),
	}
}
