package chain

import (
	"math/big"

	"github.com/btcsuite/btcutil"
	"github.com/shopspring/decimal"
)

const (
	// native coin precision of ETH and BNB
	evmNativeDecimals = 18
	// USDT on Ethereum; TRC20 transfers and native TRX (sun) use the same precision
	DefaultTokenDecimals = 6
	tronDecimals         = 6
)

// fromSmallestUnit converts an integer amount in the smallest denomination
// (wei, sun, token base unit) into the human-readable unit.
func fromSmallestUnit(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}

func satoshisToBTC(sats int64) decimal.Decimal {
	return decimal.NewFromInt(sats).Div(decimal.NewFromInt(btcutil.SatoshiPerBitcoin))
}

// ToSmallestUnit is the inverse of fromSmallestUnit, used for payment URIs.
func ToSmallestUnit(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}
