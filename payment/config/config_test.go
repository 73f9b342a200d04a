package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"go-cryptopay/payment/chain"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := fromViper(v)
	require.NoError(t, err)

	require.Equal(t, DefaultPort, cfg.Port)
	require.Equal(t, 5*time.Second, cfg.PollInterval)
	require.Equal(t, 10, cfg.BatchLimit)
	require.Equal(t, 10*time.Second, cfg.RecheckInterval)
	require.Equal(t, 60*time.Minute, cfg.MaxPendingDuration)
	require.Equal(t, 5*time.Second, cfg.CallTimeout)
	require.Equal(t, uint(3), cfg.RetryMaxTries)
	require.Equal(t, PendingWait, cfg.PendingPolicy)
	require.Equal(t, BTCNotFoundReject, cfg.BTCNotFoundPolicy)

	require.Equal(t, chain.Testnet, cfg.Chain(chain.TRX).Network)
	require.Equal(t, "https://api.shasta.trongrid.io", cfg.Chain(chain.TRX).URL)
	require.Equal(t, int32(6), cfg.Chain(chain.ETH).USDTDecimals)
}

func TestNetworkSelector(t *testing.T) {
	tcs := []struct {
		name        string
		env         map[string]string
		chain       chain.Chain
		expectedURL string
		expectedErr bool
	}{
		{
			name:        "btc mainnet",
			env:         map[string]string{"btc_network": "mainnet"},
			chain:       chain.BTC,
			expectedURL: "https://blockstream.info/api",
		},
		{
			name:        "explicit url wins over network",
			env:         map[string]string{"eth_network": "mainnet", "eth_rpc_url": "http://localhost:8545"},
			chain:       chain.ETH,
			expectedURL: "http://localhost:8545",
		},
		{
			name:        "unknown network",
			env:         map[string]string{"bnb_network": "devnet"},
			chain:       chain.BNB,
			expectedErr: true,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			v := viper.New()
			setDefaults(v)
			for k, val := range tc.env {
				v.Set(k, val)
			}

			cfg, err := fromViper(v)
			if tc.expectedErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expectedURL, cfg.Chain(tc.chain).URL)
		})
	}
}

func TestValidate(t *testing.T) {
	tcs := []struct {
		name string
		key  string
		val  interface{}
	}{
		{name: "zero batch limit", key: "batch_limit", val: 0},
		{name: "zero call timeout", key: "call_timeout", val: "0s"},
		{name: "unknown pending policy", key: "pending_timeout_policy", val: "forever"},
		{name: "unknown btc policy", key: "btc_not_found_policy", val: "ignore"},
		{name: "no retries at all", key: "retry_max_tries", val: 0},
		{name: "bad endpoint", key: "trx_api_url", val: "ftp://example.com"},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			v := viper.New()
			setDefaults(v)
			v.Set(tc.key, tc.val)

			_, err := fromViper(v)
			require.Error(t, err)
		})
	}
}
