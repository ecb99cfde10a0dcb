package storage

import (
	"context"

	"betledger/internal/model"
)

// Storage defines a sink for reconciled bet snapshots.
type Storage interface {
	PutSnapshots(ctx context.Context, snapshots []model.BetSnapshot) error
}
