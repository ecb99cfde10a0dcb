package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"betledger/internal/config"
	"betledger/internal/model"
	"betledger/internal/storage"
	"betledger/internal/storage/postgres"
)

const exportStateName = "bet-export"

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Reconcile bets and write snapshots to JSONL or Postgres",
		RunE:  runExport,
	}

	addReadFlags(cmd.Flags())
	cmd.Flags().StringSlice("bet", nil, "bet ids to export (comma-separated)")
	cmd.Flags().String("out", "./data/bets.jsonl", "output JSONL path, ignored when pg-dsn is set")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().Bool("migrate", false, "create Postgres tables before writing")
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadExport(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.IndexerURL == "" {
		return fmt.Errorf("indexer url is required")
	}
	if len(cfg.BetIDs) == 0 {
		return fmt.Errorf("bet list is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	serveMetrics(ctx, cfg.MetricsAddr, logger)

	stack, err := newReadStack(ctx, cfg.Config, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	var (
		sink  storage.Storage
		state storage.StateStore
	)
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if cfg.Migrate {
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		sink = store
		state = &storage.DBStateStore{Backend: store, Name: exportStateName}
	} else {
		sink = storage.NewJsonlStorage(cfg.Out)
		state = &storage.FileStateStore{Path: cfg.Out + ".state.json"}
	}

	if last, ok, err := state.Load(ctx); err != nil {
		return fmt.Errorf("load export state: %w", err)
	} else if ok {
		logger.Info("previous export", zap.Time("exported_at", last))
	}

	logger.Info("export start",
		zap.Int("bets", len(cfg.BetIDs)),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
	)

	exportedAt := time.Now()
	bets, err := stack.reconciler.TryBets(ctx, cfg.BetIDs)
	if err != nil {
		return fmt.Errorf("reconcile bets: %w", err)
	}
	snapshots := make([]model.BetSnapshot, 0, len(bets))
	for _, agg := range bets {
		snapshots = append(snapshots, model.NewBetSnapshot(agg, exportedAt))
	}
	if err := sink.PutSnapshots(ctx, snapshots); err != nil {
		return fmt.Errorf("write snapshots: %w", err)
	}
	if err := state.Save(ctx, exportedAt); err != nil {
		return fmt.Errorf("save export state: %w", err)
	}

	logger.Info("export done", zap.Int("snapshots", len(snapshots)))
	return nil
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
