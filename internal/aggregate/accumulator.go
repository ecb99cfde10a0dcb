package aggregate

import (
	"fmt"

	"betledger/internal/address"
	"betledger/internal/model"
)

// Accumulator folds the events of one bet into a BetAggregate. Wager events
// carry cumulative totals, so every fold keeps the maximum observed per
// bettor; the result is independent of delivery order and duplication.
type Accumulator struct {
	betID string

	perBettor map[address.Address]model.WagerRecord

	resolved    bool
	resolvedKey uint64
	winning     uint32

	payouts map[address.Address]uint64
}

func NewAccumulator(betID string) *Accumulator {
	return &Accumulator{
		betID:     model.CanonicalBetID(betID),
		perBettor: make(map[address.Address]model.WagerRecord),
		payouts:   make(map[address.Address]uint64),
	}
}

// Matches reports whether ev is of kind and belongs to this bet.
func (a *Accumulator) Matches(ev model.LedgerEvent, kind model.EventKind) bool {
	return ev.Type == kind && model.CanonicalBetID(ev.Field(model.FieldBetID)) == a.betID
}

// AddWager applies a WagerPlaced event.
func (a *Accumulator) AddWager(ev model.LedgerEvent) error {
	if !a.Matches(ev, model.EventWagerPlaced) {
		return nil
	}
	bettor, err := address.Parse(ev.Field(model.FieldBettor))
	if err != nil {
		return fmt.Errorf("wager %d bettor: %w", ev.OrderingKey, err)
	}
	outcome, err := ev.Uint32Field(model.FieldOutcomeIndex)
	if err != nil {
		return fmt.Errorf("wager %d outcome: %w", ev.OrderingKey, err)
	}
	amount, err := ev.Uint64Field(model.FieldAmount)
	if err != nil {
		return fmt.Errorf("wager %d amount: %w", ev.OrderingKey, err)
	}

	existing, ok := a.perBettor[bettor]
	if ok && existing.CumulativeAmount >= amount {
		return nil
	}
	a.perBettor[bettor] = model.WagerRecord{
		Bettor:           bettor,
		OutcomeIndex:     outcome,
		CumulativeAmount: amount,
	}
	return nil
}

// AddResolution applies a BetResolved event. The highest ordering key wins.
func (a *Accumulator) AddResolution(ev model.LedgerEvent) error {
	if !a.Matches(ev, model.EventBetResolved) {
		return nil
	}
	winning, err := ev.Uint32Field(model.FieldWinningOutcome)
	if err != nil {
		return fmt.Errorf("resolution %d outcome: %w", ev.OrderingKey, err)
	}
	if a.resolved && ev.OrderingKey < a.resolvedKey {
		return nil
	}
	a.resolved = true
	a.resolvedKey = ev.OrderingKey
	a.winning = winning
	return nil
}

// AddPayout applies a PayoutPaid event.
func (a *Accumulator) AddPayout(ev model.LedgerEvent) error {
	if !a.Matches(ev, model.EventPayoutPaid) {
		return nil
	}
	bettor, err := address.Parse(ev.Field(model.FieldBettor))
	if err != nil {
		return fmt.Errorf("payout %d bettor: %w", ev.OrderingKey, err)
	}
	amount, err := ev.Uint64Field(model.FieldPayout)
	if err != nil {
		return fmt.Errorf("payout %d amount: %w", ev.OrderingKey, err)
	}
	if current, ok := a.payouts[bettor]; !ok || amount > current {
		a.payouts[bettor] = amount
	}
	return nil
}

// Result builds the aggregate from everything folded so far.
func (a *Accumulator) Result() model.BetAggregate {
	agg := model.EmptyBet(a.betID)

	for bettor, rec := range a.perBettor {
		agg.PerBettor[bettor] = rec
		agg.TotalPool += rec.CumulativeAmount
		agg.OutcomePools[rec.OutcomeIndex] += rec.CumulativeAmount

		status := model.WagerStatus{WagerRecord: rec}
		if a.resolved {
			if paid, ok := a.payouts[bettor]; ok {
				status.Winner = true
				status.Payout = &paid
			} else if rec.OutcomeIndex == a.winning {
				status.Winner = true
			} else {
				zero := uint64(0)
				status.Payout = &zero
			}
		}
		agg.Wagers = append(agg.Wagers, status)
	}
	model.SortWagers(agg.Wagers)

	if a.resolved {
		winning := a.winning
		agg.Resolved = true
		agg.WinningOutcome = &winning
		agg.Payouts = make(map[address.Address]uint64, len(a.payouts))
		for bettor, amount := range a.payouts {
			agg.Payouts[bettor] = amount
		}
	}
	return agg
}

// Fold reconciles already-fetched events for betID. Malformed events are
// skipped and reported in skipped.
func Fold(betID string, wagers, resolutions, payouts []model.LedgerEvent) (agg model.BetAggregate, skipped []error) {
	acc := NewAccumulator(betID)
	for _, ev := range wagers {
		if err := acc.AddWager(ev); err != nil {
			skipped = append(skipped, err)
		}
	}
	for _, ev := range resolutions {
		if err := acc.AddResolution(ev); err != nil {
			skipped = append(skipped, err)
		}
	}
	if acc.resolved {
		for _, ev := range payouts {
			if err := acc.AddPayout(ev); err != nil {
				skipped = append(skipped, err)
			}
		}
	}
	return acc.Result(), skipped
}
