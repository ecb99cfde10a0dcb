package config

import (
	"time"

	"github.com/spf13/pflag"
)

// WagerConfig holds configuration for the write path.
type WagerConfig struct {
	Config

	RelayURL         string
	RelayAPIKey      string
	SignerURL        string
	SignerAPIKey     string
	WalletID         string
	PrivateKey       string
	Sender           string
	PlaceFunction    string
	Sponsored        bool
	BuildAttempts    int
	BuildInterval    time.Duration
	MaxGasAmount     uint64
	GasUnitPrice     uint64
	ExpirationWindow time.Duration
}

// LoadWager merges config file, environment variables, and flags into WagerConfig.
func LoadWager(cfgFile string, flags *pflag.FlagSet) (WagerConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return WagerConfig{}, err
	}

	v.SetDefault("sponsored", true)
	v.SetDefault("build-attempts", 5)
	v.SetDefault("build-interval", 2*time.Second)
	v.SetDefault("max-gas", uint64(200_000))
	v.SetDefault("gas-price", uint64(100))
	v.SetDefault("expiration", 60*time.Second)

	cfg := WagerConfig{
		Config:           readConfig(v),
		RelayURL:         v.GetString("relay-url"),
		RelayAPIKey:      v.GetString("relay-api-key"),
		SignerURL:        v.GetString("signer-url"),
		SignerAPIKey:     v.GetString("signer-api-key"),
		WalletID:         v.GetString("wallet-id"),
		PrivateKey:       v.GetString("private-key"),
		Sender:           v.GetString("sender"),
		PlaceFunction:    v.GetString("place-function"),
		Sponsored:        v.GetBool("sponsored"),
		BuildAttempts:    v.GetInt("build-attempts"),
		BuildInterval:    v.GetDuration("build-interval"),
		MaxGasAmount:     v.GetUint64("max-gas"),
		GasUnitPrice:     v.GetUint64("gas-price"),
		ExpirationWindow: v.GetDuration("expiration"),
	}

	return cfg, nil
}
