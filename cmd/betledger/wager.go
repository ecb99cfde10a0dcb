package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"betledger/internal/address"
	"betledger/internal/chain"
	"betledger/internal/config"
	"betledger/internal/relay"
	"betledger/internal/retry"
	"betledger/internal/signer"
	"betledger/internal/submit"
	"betledger/internal/txn"
)

func newWagerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wager",
		Short: "Place a sponsored wager",
		RunE:  runWager,
	}

	addReadFlags(cmd.Flags())
	cmd.Flags().String("bet", "", "bet id")
	cmd.Flags().Uint32("outcome", 0, "outcome index")
	cmd.Flags().Uint64("amount", 0, "amount to add to the wager")
	cmd.Flags().String("relay-url", "", "sponsor relay base URL")
	cmd.Flags().String("relay-api-key", "", "sponsor relay API key")
	cmd.Flags().String("signer-url", "", "remote signing service base URL")
	cmd.Flags().String("signer-api-key", "", "remote signing service API key")
	cmd.Flags().String("wallet-id", "", "remote signing service wallet id")
	cmd.Flags().String("private-key", "", "hex secp256k1 key for local signing")
	cmd.Flags().String("sender", "", "sender account address")
	cmd.Flags().String("place-function", "", "wager entry function (<address>::<module>::<function>)")
	cmd.Flags().Bool("sponsored", true, "request fee sponsorship")
	cmd.Flags().Int("build-attempts", retry.BuildAttempts, "build attempts while the sender account is not visible")
	cmd.Flags().Duration("build-interval", retry.BuildInterval, "spacing between build attempts")
	cmd.Flags().Uint64("max-gas", txn.DefaultMaxGasAmount, "max gas amount")
	cmd.Flags().Uint64("gas-price", txn.DefaultGasUnitPrice, "gas unit price")
	cmd.Flags().Duration("expiration", txn.DefaultExpirationWindow, "transaction expiration window")
	return cmd
}

func runWager(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadWager(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.RelayURL == "" {
		return fmt.Errorf("relay url is required")
	}
	sender, err := address.Parse(cfg.Sender)
	if err != nil {
		return fmt.Errorf("sender: %w", err)
	}
	intent, err := wagerIntent(cmd, cfg.PlaceFunction)
	if err != nil {
		return err
	}
	senderSigner, err := newSigner(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	serveMetrics(ctx, cfg.MetricsAddr, logger)

	stack, err := newReadStack(ctx, cfg.Config, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	relayClient, err := relay.NewClient(relay.Config{BaseURL: cfg.RelayURL, APIKey: cfg.RelayAPIKey})
	if err != nil {
		return err
	}

	builder := txn.NewBuilder(txn.Config{
		MaxGasAmount:     cfg.MaxGasAmount,
		GasUnitPrice:     cfg.GasUnitPrice,
		ExpirationWindow: cfg.ExpirationWindow,
		Policy:           retry.Policy{Attempts: cfg.BuildAttempts, Interval: cfg.BuildInterval},
	}, stack.chain, stack.metrics, logger)
	protocol := submit.New(senderSigner, relayClient, stack.chain, stack.metrics, logger)

	logger.Info("wager start",
		zap.String("sender", sender.Hex()),
		zap.String("function", intent.Function.String()),
		zap.Bool("sponsored", cfg.Sponsored),
	)

	start := time.Now()
	built, err := builder.Build(ctx, intent, sender, cfg.Sponsored)
	if err != nil {
		return err
	}
	confirmed, err := protocol.Execute(ctx, built)
	if err != nil {
		return err
	}

	logger.Info("wager confirmed",
		zap.String("hash", confirmed.Hash),
		zap.Uint64("version", confirmed.Version),
		zap.Duration("elapsed", time.Since(start)),
	)
	return writeJSON(cmd.OutOrStdout(), confirmed)
}

func wagerIntent(cmd *cobra.Command, placeFunction string) (txn.Intent, error) {
	fn, err := chain.ParseFunctionID(placeFunction)
	if err != nil {
		return txn.Intent{}, fmt.Errorf("place function: %w", err)
	}
	betText, _ := cmd.Flags().GetString("bet")
	betID, err := strconv.ParseUint(betText, 10, 64)
	if err != nil {
		return txn.Intent{}, fmt.Errorf("invalid bet id %q: %w", betText, err)
	}
	outcome, _ := cmd.Flags().GetUint32("outcome")
	amount, _ := cmd.Flags().GetUint64("amount")
	if amount == 0 {
		return txn.Intent{}, fmt.Errorf("amount must be positive")
	}
	return txn.Intent{
		Function:  fn,
		Arguments: []txn.Argument{txn.U64(betID), txn.U32(outcome), txn.U64(amount)},
	}, nil
}

func newSigner(cfg config.WagerConfig) (submit.Signer, error) {
	switch {
	case cfg.PrivateKey != "":
		local, err := signer.LocalSignerFromHex(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		return local, nil
	case cfg.SignerURL != "":
		remote, err := signer.NewRemoteSigner(signer.RemoteConfig{
			BaseURL:  cfg.SignerURL,
			WalletID: cfg.WalletID,
			APIKey:   cfg.SignerAPIKey,
		})
		if err != nil {
			return nil, err
		}
		return remote, nil
	default:
		return nil, fmt.Errorf("private key or signer url is required")
	}
}
