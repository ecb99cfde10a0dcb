package model

import (
	"sort"
	"strconv"
	"strings"
)

// EventKind names a ledger event type.
type EventKind string

const (
	EventWagerPlaced EventKind = "WagerPlaced"
	EventBetResolved EventKind = "BetResolved"
	EventPayoutPaid  EventKind = "PayoutPaid"
)

// Payload keys carried by betting events.
const (
	FieldBetID          = "bet_id"
	FieldBettor         = "bettor"
	FieldOutcomeIndex   = "outcome_index"
	FieldAmount         = "amount"
	FieldWinningOutcome = "winning_outcome"
	FieldPayout         = "payout"
)

// LedgerEvent is an immutable event record served by the indexing service.
// OrderingKey is unique and strictly increasing ledger-wide.
type LedgerEvent struct {
	Type        EventKind         `json:"type"`
	OrderingKey uint64            `json:"ordering_key"`
	Payload     map[string]string `json:"data"`
}

// Field returns a trimmed payload value.
func (e LedgerEvent) Field(key string) string {
	if e.Payload == nil {
		return ""
	}
	return strings.TrimSpace(e.Payload[key])
}

// Uint64Field parses a decimal payload value.
func (e LedgerEvent) Uint64Field(key string) (uint64, error) {
	return strconv.ParseUint(e.Field(key), 10, 64)
}

// Uint32Field parses a decimal payload value that must fit in 32 bits.
func (e LedgerEvent) Uint32Field(key string) (uint32, error) {
	v, err := strconv.ParseUint(e.Field(key), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// SortEvents orders events by ordering key and drops repeated keys.
func SortEvents(events []LedgerEvent) []LedgerEvent {
	out := make([]LedgerEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OrderingKey < out[j].OrderingKey
	})

	deduped := out[:0]
	for i, ev := range out {
		if i > 0 && ev.OrderingKey == out[i-1].OrderingKey {
			continue
		}
		deduped = append(deduped, ev)
	}
	return deduped
}
