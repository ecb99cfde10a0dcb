package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. BETLEDGER_RPC.
const EnvPrefix = "BETLEDGER"

// Config holds the read-path settings shared by every command.
type Config struct {
	RPCURL           string
	IndexerURL       string
	IndexerAPIKey    string
	IndexerRateLimit float64
	IndexerTimeout   time.Duration
	AssetType        string
	BalanceFunction  string
	BalanceTypeArgs  []string
	BalanceArgs      []string
	ProfileFunction  string
	CacheTTL         time.Duration
	PollInterval     time.Duration
	WaitTimeout      time.Duration
	Concurrency      int
	MetricsAddr      string
	LogLevel         string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return Config{}, err
	}
	return readConfig(v), nil
}

func newViper(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("indexer-timeout", 10*time.Second)
	v.SetDefault("balance-function", "0x1::primary_fungible_store::balance")
	v.SetDefault("cache-ttl", 10*time.Second)
	v.SetDefault("poll-interval", time.Second)
	v.SetDefault("wait-timeout", 30*time.Second)
	v.SetDefault("concurrency", 4)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func readConfig(v *viper.Viper) Config {
	return Config{
		RPCURL:           v.GetString("rpc"),
		IndexerURL:       v.GetString("indexer-url"),
		IndexerAPIKey:    v.GetString("indexer-api-key"),
		IndexerRateLimit: v.GetFloat64("indexer-rate-limit"),
		IndexerTimeout:   v.GetDuration("indexer-timeout"),
		AssetType:        v.GetString("asset-type"),
		BalanceFunction:  v.GetString("balance-function"),
		BalanceTypeArgs:  getStringSlice(v, "balance-type-args"),
		BalanceArgs:      getStringSlice(v, "balance-args"),
		ProfileFunction:  v.GetString("profile-function"),
		CacheTTL:         v.GetDuration("cache-ttl"),
		PollInterval:     v.GetDuration("poll-interval"),
		WaitTimeout:      v.GetDuration("wait-timeout"),
		Concurrency:      v.GetInt("concurrency"),
		MetricsAddr:      v.GetString("metrics-addr"),
		LogLevel:         v.GetString("log-level"),
	}
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
