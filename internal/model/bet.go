package model

import (
	"sort"
	"strconv"
	"strings"

	"betledger/internal/address"
)

// WagerRecord is a bettor's cumulative stake on one bet.
type WagerRecord struct {
	Bettor           address.Address `json:"bettor"`
	OutcomeIndex     uint32          `json:"outcome_index"`
	CumulativeAmount uint64          `json:"cumulative_amount"`
}

// WagerStatus is a wager with its settlement state. Winner and Payout are
// only meaningful once the bet is resolved. A nil Payout on a winner means
// the payout has not been paid or claimed yet, which is not a loss.
type WagerStatus struct {
	WagerRecord
	Winner bool    `json:"winner"`
	Payout *uint64 `json:"payout,omitempty"`
}

// BetAggregate is the reconciled view of a bet.
type BetAggregate struct {
	BetID          string                          `json:"bet_id"`
	PerBettor      map[address.Address]WagerRecord `json:"-"`
	Wagers         []WagerStatus                   `json:"wagers"`
	TotalPool      uint64                          `json:"total_pool"`
	OutcomePools   map[uint32]uint64               `json:"outcome_pools"`
	Resolved       bool                            `json:"resolved"`
	WinningOutcome *uint32                         `json:"winning_outcome,omitempty"`
	Payouts        map[address.Address]uint64      `json:"payouts,omitempty"`
}

// EmptyBet is the conservative aggregate served when reads fail.
func EmptyBet(betID string) BetAggregate {
	return BetAggregate{
		BetID:        betID,
		PerBettor:    map[address.Address]WagerRecord{},
		Wagers:       []WagerStatus{},
		OutcomePools: map[uint32]uint64{},
	}
}

// Wager returns the settlement status for bettor, if they wagered.
func (b BetAggregate) Wager(bettor address.Address) (WagerStatus, bool) {
	for _, w := range b.Wagers {
		if w.Bettor == bettor {
			return w, true
		}
	}
	return WagerStatus{}, false
}

// SortWagers orders wagers by amount descending, then by bettor.
func SortWagers(wagers []WagerStatus) {
	sort.Slice(wagers, func(i, j int) bool {
		if wagers[i].CumulativeAmount != wagers[j].CumulativeAmount {
			return wagers[i].CumulativeAmount > wagers[j].CumulativeAmount
		}
		return wagers[i].Bettor.Hex() < wagers[j].Bettor.Hex()
	})
}

// CanonicalBetID trims id and strips leading zeros from numeric ids, so "007"
// and "7" name the same bet.
func CanonicalBetID(id string) string {
	id = strings.TrimSpace(id)
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return strconv.FormatUint(n, 10)
	}
	return id
}
