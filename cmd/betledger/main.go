package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"betledger/internal/aggregate"
	"betledger/internal/balance"
	"betledger/internal/cache"
	"betledger/internal/chain"
	"betledger/internal/config"
	"betledger/internal/indexer"
	"betledger/internal/metrics"
	"betledger/internal/model"
	"betledger/internal/profile"
)

func main() {
	root := &cobra.Command{
		Use:          "betledger",
		Short:        "Wagering ledger client",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	betCmd := &cobra.Command{
		Use:   "bet <bet-id>...",
		Short: "Reconcile bets from indexed ledger events",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runBet,
	}
	addReadFlags(betCmd.Flags())
	betCmd.Flags().Bool("strict", false, "fail instead of printing an empty bet when the indexer is unavailable")
	root.AddCommand(betCmd)

	balanceCmd := &cobra.Command{
		Use:   "balance <address>",
		Short: "Resolve an account's asset balance",
		Args:  cobra.ExactArgs(1),
		RunE:  runBalance,
	}
	addReadFlags(balanceCmd.Flags())
	root.AddCommand(balanceCmd)

	profileCmd := &cobra.Command{
		Use:   "profile <address>...",
		Short: "Read account profiles",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runProfile,
	}
	addReadFlags(profileCmd.Flags())
	root.AddCommand(profileCmd)

	root.AddCommand(newWagerCmd())
	root.AddCommand(newExportCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addReadFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "ledger node RPC URL")
	flags.String("indexer-url", "", "indexing service base URL")
	flags.String("indexer-api-key", "", "indexing service API key")
	flags.Float64("indexer-rate-limit", 0, "indexer requests per second, 0 disables limiting")
	flags.Duration("indexer-timeout", 10*time.Second, "indexer request timeout")
	flags.String("asset-type", "", "asset type used for balances")
	flags.String("balance-function", "0x1::primary_fungible_store::balance", "balance view function")
	flags.StringSlice("balance-type-args", nil, "balance view type arguments (comma-separated)")
	flags.StringSlice("balance-args", nil, "balance view arguments after the owner (comma-separated)")
	flags.String("profile-function", "", "profile view function")
	flags.Duration("cache-ttl", cache.DefaultTTL, "read-model cache TTL")
	flags.Duration("poll-interval", time.Second, "transaction confirmation poll interval")
	flags.Duration("wait-timeout", 30*time.Second, "transaction confirmation timeout")
	flags.Int("concurrency", 4, "parallel bet reconciliations")
	flags.String("metrics-addr", "", "serve prometheus metrics on this address while running")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

// readStack is the read path shared by every command.
type readStack struct {
	chain      *chain.Client
	indexer    *indexer.Client
	reconciler *aggregate.Reconciler
	balances   *balance.Resolver
	profiles   *profile.Service
	metrics    *metrics.Metrics
}

func newReadStack(ctx context.Context, cfg config.Config, logger *zap.Logger) (*readStack, error) {
	m := metrics.Default()

	stack := &readStack{metrics: m}
	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL, chain.Config{
			PollInterval: cfg.PollInterval,
			WaitTimeout:  cfg.WaitTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect rpc: %w", err)
		}
		stack.chain = chainClient
	}
	if cfg.IndexerURL != "" {
		indexerClient, err := indexer.NewClient(indexer.Config{
			BaseURL:   cfg.IndexerURL,
			APIKey:    cfg.IndexerAPIKey,
			Timeout:   cfg.IndexerTimeout,
			RateLimit: cfg.IndexerRateLimit,
		})
		if err != nil {
			stack.Close()
			return nil, err
		}
		stack.indexer = indexerClient
	}

	var (
		ledger balance.LedgerReader
		source aggregate.EventSource
		index  balance.BalanceIndex
	)
	if stack.chain != nil {
		ledger = stack.chain
	}
	if stack.indexer != nil {
		source = stack.indexer
		index = stack.indexer
	}

	stack.reconciler = aggregate.NewReconciler(aggregate.Config{Concurrency: cfg.Concurrency}, source, m, logger)
	stack.balances = balance.NewResolver(balance.Config{
		ViewFunction:  cfg.BalanceFunction,
		TypeArguments: cfg.BalanceTypeArgs,
		ViewArguments: cfg.BalanceArgs,
		AssetType:     cfg.AssetType,
	}, ledger, index, m, logger)

	profileCache := cache.New[model.Profile](cache.Config{Name: "profile", TTL: cfg.CacheTTL, Metrics: m})
	var profileLedger profile.LedgerReader
	if stack.chain != nil {
		profileLedger = stack.chain
	}
	stack.profiles = profile.NewService(cfg.ProfileFunction, profileLedger, profileCache, logger)
	return stack, nil
}

func (s *readStack) Close() {
	if s.chain != nil {
		s.chain.Close()
	}
}

// serveMetrics exposes the default registry until ctx is done.
func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
