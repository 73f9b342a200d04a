package qrcode

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPaymentURI(t *testing.T) {
	tcs := []struct {
		name     string
		chain    string
		token    string
		amount   string
		expected string
	}{
		{
			name:     "btc uses BTC unit",
			chain:    "btc",
			token:    "native",
			amount:   "0.0015",
			expected: "bitcoin:addr?amount=0.0015",
		},
		{
			name:     "eth native in wei",
			chain:    "eth",
			token:    "native",
			amount:   "0.5",
			expected: "ethereum:addr?value=500000000000000000",
		},
		{
			name:     "trx native with six decimals",
			chain:    "trx",
			token:    "native",
			amount:   "12.5",
			expected: "tron:addr?amount=12.500000",
		},
		{
			name:     "usdt on tron",
			chain:    "trx",
			token:    "USDT",
			amount:   "10",
			expected: "tron:addr?token=USDT&amount=10",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			uri := PaymentURI(tc.chain, tc.token, "addr", decimal.RequireFromString(tc.amount))
			require.Equal(t, tc.expected, uri)
		})
	}
}

func TestEncodeBase64(t *testing.T) {
	s, err := EncodeBase64("tron:addr?amount=1.000000", 0)
	require.NoError(t, err)

	png, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}
