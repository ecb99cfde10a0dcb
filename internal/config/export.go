package config

import (
	"github.com/spf13/pflag"
)

// ExportConfig holds configuration for the export command.
type ExportConfig struct {
	Config

	BetIDs  []string
	Out     string
	PGDSN   string
	Migrate bool
}

// LoadExport merges config file, environment variables, and flags into ExportConfig.
func LoadExport(cfgFile string, flags *pflag.FlagSet) (ExportConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return ExportConfig{}, err
	}

	v.SetDefault("out", "./data/bets.jsonl")

	cfg := ExportConfig{
		Config:  readConfig(v),
		BetIDs:  getStringSlice(v, "bet"),
		Out:     v.GetString("out"),
		PGDSN:   v.GetString("pg-dsn"),
		Migrate: v.GetBool("migrate"),
	}

	return cfg, nil
}
