package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"betledger/internal/model"
)

// Schema creates the tables the store writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS bet_snapshots (
	bet_id TEXT PRIMARY KEY,
	total_pool NUMERIC NOT NULL,
	resolved BOOLEAN NOT NULL,
	winning_outcome BIGINT,
	exported_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS bet_wagers (
	bet_id TEXT NOT NULL REFERENCES bet_snapshots (bet_id) ON DELETE CASCADE,
	bettor TEXT NOT NULL,
	outcome_index BIGINT NOT NULL,
	amount NUMERIC NOT NULL,
	winner BOOLEAN NOT NULL,
	payout NUMERIC,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (bet_id, bettor)
);
CREATE TABLE IF NOT EXISTS export_state (
	name TEXT PRIMARY KEY,
	last_exported_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for bet snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

// PutSnapshots implements storage.Storage.
func (s *Store) PutSnapshots(ctx context.Context, snapshots []model.BetSnapshot) error {
	return s.UpsertBetSnapshots(ctx, snapshots)
}

// UpsertBetSnapshots inserts or updates snapshots and their wager rows.
func (s *Store) UpsertBetSnapshots(ctx context.Context, snapshots []model.BetSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		queueSnapshot(batch, snap)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func queueSnapshot(batch *pgx.Batch, snap model.BetSnapshot) {
	var winning *int64
	if snap.WinningOutcome != nil {
		v := int64(*snap.WinningOutcome)
		winning = &v
	}
	batch.Queue(`
		INSERT INTO bet_snapshots (
			bet_id, total_pool, resolved, winning_outcome, exported_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (bet_id)
		DO UPDATE SET
			total_pool = EXCLUDED.total_pool,
			resolved = EXCLUDED.resolved,
			winning_outcome = EXCLUDED.winning_outcome,
			exported_at = EXCLUDED.exported_at,
			updated_at = now()
	`,
		snap.BetID,
		fmt.Sprintf("%d", snap.TotalPool),
		snap.Resolved,
		winning,
		snap.ExportedAt,
	)

	// Wager rows are replaced per bet so bettors missing from the snapshot
	// do not linger; the batch runs as one implicit transaction.
	batch.Queue(`DELETE FROM bet_wagers WHERE bet_id = $1`, snap.BetID)
	for _, w := range snap.Wagers {
		var payout *string
		if w.Payout != nil {
			v := fmt.Sprintf("%d", *w.Payout)
			payout = &v
		}
		batch.Queue(`
			INSERT INTO bet_wagers (
				bet_id, bettor, outcome_index, amount, winner, payout, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (bet_id, bettor)
			DO UPDATE SET
				outcome_index = EXCLUDED.outcome_index,
				amount = EXCLUDED.amount,
				winner = EXCLUDED.winner,
				payout = EXCLUDED.payout,
				updated_at = now()
		`,
			snap.BetID,
			w.Bettor,
			int64(w.OutcomeIndex),
			fmt.Sprintf("%d", w.Amount),
			w.Winner,
			payout,
		)
	}
}

// LoadState returns the last export time recorded under name.
func (s *Store) LoadState(ctx context.Context, name string) (time.Time, bool, error) {
	if name == "" {
		return time.Time{}, false, fmt.Errorf("state name required")
	}
	var ts time.Time
	row := s.pool.QueryRow(ctx, `SELECT last_exported_at FROM export_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return ts, true, nil
}

// SaveState upserts the last export time for name.
func (s *Store) SaveState(ctx context.Context, name string, ts time.Time) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO export_state (name, last_exported_at, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_exported_at = EXCLUDED.last_exported_at, updated_at = now()
	`, name, ts)
	return err
}
