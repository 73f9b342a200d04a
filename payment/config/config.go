// Package config resolves the payment service settings from the environment once at startup.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"go-cryptopay/payment/chain"
)

// PendingPolicy decides what happens to an order whose verifier keeps answering Pending.
type PendingPolicy string

const (
	// PendingWait keeps polling a Pending order with no deadline.
	PendingWait PendingPolicy = "wait"
	// PendingExpire fails a Pending order once it is older than MaxPendingDuration.
	PendingExpire PendingPolicy = "expire"
)

// BTCNotFoundPolicy decides how a BTC transaction unknown to the explorer is read.
type BTCNotFoundPolicy string

const (
	BTCNotFoundReject  BTCNotFoundPolicy = "reject"
	BTCNotFoundPending BTCNotFoundPolicy = "pending"
)

type ChainConfig struct {
	Network chain.Network
	URL     string
	// APIKey is only used by TRON (TRON-PRO-API-KEY header).
	APIKey string
	// USDTContract optionally restricts token verification to one contract (ETH/BNB).
	USDTContract string
	USDTDecimals int32
}

type Config struct {
	Port     string
	DSN      string
	LogLevel string
	LogDev   bool

	Chains map[chain.Chain]ChainConfig

	PollInterval       time.Duration
	BatchLimit         int
	RecheckInterval    time.Duration
	MaxPendingDuration time.Duration
	CallTimeout        time.Duration

	RetryMaxTries        uint
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RateLimitPerSecond   float64

	PendingPolicy     PendingPolicy
	BTCNotFoundPolicy BTCNotFoundPolicy

	RedisAddr    string
	JWTSecret    string
	QRSize       int
	SubmitLimit  int
	SubmitWindow time.Duration
}

const (
	DefaultPort               = "8080"
	DefaultPollInterval       = 5 * time.Second
	DefaultBatchLimit         = 10
	DefaultRecheckInterval    = 10 * time.Second
	DefaultMaxPendingDuration = 60 * time.Minute
	DefaultCallTimeout        = 5 * time.Second
	DefaultRetryMaxTries      = 3
	DefaultRateLimit          = 5
	DefaultQRSize             = 256
)

var defaultURLs = map[chain.Chain]map[chain.Network]string{
	chain.ETH: {
		chain.Mainnet: "https://ethereum-rpc.publicnode.com",
		chain.Testnet: "https://ethereum-sepolia-rpc.publicnode.com",
	},
	chain.BNB: {
		chain.Mainnet: "https://bsc-dataseed.bnbchain.org",
		chain.Testnet: "https://data-seed-prebsc-1-s1.bnbchain.org:8545",
	},
	chain.BTC: {
		chain.Mainnet: "https://blockstream.info/api",
		chain.Testnet: "https://blockstream.info/testnet/api",
	},
	chain.TRX: {
		chain.Mainnet: "https://api.trongrid.io",
		chain.Testnet: "https://api.shasta.trongrid.io",
	},
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]interface{}{
		"payment_port":           DefaultPort,
		"log_level":              "info",
		"log_development":        false,
		"eth_network":            "testnet",
		"bnb_network":            "testnet",
		"btc_network":            "testnet",
		"trx_network":            "testnet",
		"usdt_decimals_eth":      chain.DefaultTokenDecimals,
		"usdt_decimals_bnb":      chain.DefaultTokenDecimals,
		"poll_interval":          DefaultPollInterval,
		"batch_limit":            DefaultBatchLimit,
		"recheck_interval":       DefaultRecheckInterval,
		"max_pending_duration":   DefaultMaxPendingDuration,
		"call_timeout":           DefaultCallTimeout,
		"retry_max_tries":        DefaultRetryMaxTries,
		"retry_initial_interval": chain.DefaultInitialInterval,
		"retry_max_interval":     chain.DefaultMaxInterval,
		"rate_limit_per_second":  DefaultRateLimit,
		"pending_timeout_policy": string(PendingWait),
		"btc_not_found_policy":   string(BTCNotFoundReject),
		"qr_size":                DefaultQRSize,
		"submit_rate_limit":      15,
		"submit_rate_window":     time.Minute,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load reads the configuration from environment variables. Call utils.LoadEnv
// first so that a .env file is taken into account.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:                 v.GetString("payment_port"),
		DSN:                  v.GetString("db"),
		LogLevel:             v.GetString("log_level"),
		LogDev:               v.GetBool("log_development"),
		Chains:               make(map[chain.Chain]ChainConfig),
		PollInterval:         v.GetDuration("poll_interval"),
		BatchLimit:           v.GetInt("batch_limit"),
		RecheckInterval:      v.GetDuration("recheck_interval"),
		MaxPendingDuration:   v.GetDuration("max_pending_duration"),
		CallTimeout:          v.GetDuration("call_timeout"),
		RetryMaxTries:        v.GetUint("retry_max_tries"),
		RetryInitialInterval: v.GetDuration("retry_initial_interval"),
		RetryMaxInterval:     v.GetDuration("retry_max_interval"),
		RateLimitPerSecond:   v.GetFloat64("rate_limit_per_second"),
		PendingPolicy:        PendingPolicy(strings.ToLower(v.GetString("pending_timeout_policy"))),
		BTCNotFoundPolicy:    BTCNotFoundPolicy(strings.ToLower(v.GetString("btc_not_found_policy"))),
		RedisAddr:            v.GetString("redis_addr"),
		JWTSecret:            v.GetString("api_jwt_secret"),
		QRSize:               v.GetInt("qr_size"),
		SubmitLimit:          v.GetInt("submit_rate_limit"),
		SubmitWindow:         v.GetDuration("submit_rate_window"),
	}

	urlKeys := map[chain.Chain]string{
		chain.ETH: "eth_rpc_url",
		chain.BNB: "bnb_rpc_url",
		chain.BTC: "btc_api_url",
		chain.TRX: "trx_api_url",
	}
	for c, urlKey := range urlKeys {
		network, err := chain.ParseNetwork(v.GetString(string(c) + "_network"))
		if err != nil {
			return nil, fmt.Errorf("%s_network: %w", c, err)
		}
		cc := ChainConfig{Network: network, URL: v.GetString(urlKey)}
		if cc.URL == "" {
			cc.URL = defaultURLs[c][network]
		}
		switch c {
		case chain.ETH, chain.BNB:
			cc.USDTContract = v.GetString(string(c) + "_usdt_contract")
			cc.USDTDecimals = v.GetInt32("usdt_decimals_" + string(c))
		case chain.TRX:
			cc.APIKey = v.GetString("trongrid_api_key")
		}
		cfg.Chains[c] = cc
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return errors.New("invalid poll_interval")
	}
	if c.BatchLimit <= 0 {
		return errors.New("invalid batch_limit")
	}
	if c.RecheckInterval < 0 {
		return errors.New("invalid recheck_interval")
	}
	if c.MaxPendingDuration <= 0 {
		return errors.New("invalid max_pending_duration")
	}
	if c.CallTimeout <= 0 {
		return errors.New("invalid call_timeout")
	}
	if c.RetryMaxTries == 0 {
		return errors.New("retry_max_tries must be at least 1")
	}
	switch c.PendingPolicy {
	case PendingWait, PendingExpire:
	default:
		return fmt.Errorf("invalid pending_timeout_policy %q", c.PendingPolicy)
	}
	switch c.BTCNotFoundPolicy {
	case BTCNotFoundReject, BTCNotFoundPending:
	default:
		return fmt.Errorf("invalid btc_not_found_policy %q", c.BTCNotFoundPolicy)
	}
	for name, cc := range c.Chains {
		u, err := url.Parse(cc.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("invalid %s endpoint %q", name, cc.URL)
		}
	}
	return nil
}

// Chain returns the settings for c, falling back to the testnet defaults.
func (c *Config) Chain(name chain.Chain) ChainConfig {
	if cc, ok := c.Chains[name]; ok {
		return cc
	}
	return ChainConfig{Network: chain.Testnet, URL: defaultURLs[name][chain.Testnet], USDTDecimals: chain.DefaultTokenDecimals}
}
