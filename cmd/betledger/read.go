package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"betledger/internal/address"
	"betledger/internal/config"
	"betledger/internal/model"
)

func loadRead(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func runBet(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadRead(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.IndexerURL == "" {
		return fmt.Errorf("indexer url is required")
	}
	strict, _ := cmd.Flags().GetBool("strict")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	serveMetrics(ctx, cfg.MetricsAddr, logger)

	stack, err := newReadStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	var bets []model.BetAggregate
	if strict {
		if bets, err = stack.reconciler.TryBets(ctx, args); err != nil {
			return err
		}
	} else {
		bets = stack.reconciler.Bets(ctx, args)
	}

	logger.Info("bets reconciled", zap.Int("count", len(bets)), zap.Bool("strict", strict))
	return writeJSON(cmd.OutOrStdout(), bets)
}

func runBalance(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadRead(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	owner, err := address.Parse(args[0])
	if err != nil {
		return err
	}
	if cfg.AssetType == "" {
		return fmt.Errorf("asset type is required")
	}
	if cfg.RPCURL == "" && cfg.IndexerURL == "" {
		return fmt.Errorf("rpc url or indexer url is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	serveMetrics(ctx, cfg.MetricsAddr, logger)

	stack, err := newReadStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	res, err := stack.balances.Lookup(ctx, owner)
	if err != nil {
		logger.Warn("balance unavailable", zap.String("owner", owner.Hex()), zap.Error(err))
	}

	return writeJSON(cmd.OutOrStdout(), struct {
		Owner     string `json:"owner"`
		AssetType string `json:"asset_type"`
		Amount    uint64 `json:"amount"`
		Source    string `json:"source"`
	}{owner.Hex(), cfg.AssetType, res.Amount, string(res.Source)})
}

func runProfile(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadRead(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.ProfileFunction == "" {
		return fmt.Errorf("profile function is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	serveMetrics(ctx, cfg.MetricsAddr, logger)

	stack, err := newReadStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	profiles := make(map[string]model.Profile, len(args))
	for _, arg := range args {
		key := arg
		if normalized, err := address.Normalize(arg); err == nil {
			key = normalized
		}
		profiles[key] = stack.profiles.Get(ctx, arg)
	}
	return writeJSON(cmd.OutOrStdout(), profiles)
}
