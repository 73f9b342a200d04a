package chain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
)

const (
	tronAddressPrefix = byte(0x41)
	tronAddressLength = 21
)

// ValidateAddress checks that addr is well formed for the chain and network.
func ValidateAddress(c Chain, network Network, addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("empty %s address", c)
	}

	switch c {
	case ETH, BNB:
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid %s address %q", c, addr)
		}
	case BTC:
		params := &chaincfg.TestNet3Params
		if network == Mainnet {
			params = &chaincfg.MainNetParams
		}
		decoded, err := btcutil.DecodeAddress(addr, params)
		if err != nil {
			return fmt.Errorf("invalid btc address %q: %w", addr, err)
		}
		if !decoded.IsForNet(params) {
			return fmt.Errorf("btc address %q is not for %s", addr, network)
		}
	case TRX:
		if _, err := address.Base58ToAddress(addr); err != nil {
			return fmt.Errorf("invalid trx address %q: %w", addr, err)
		}
	default:
		return fmt.Errorf("unsupported chain %q", c)
	}
	return nil
}

// tronAddressFromTopic takes the last 20 bytes of a 32-byte log topic and
// encodes them as a base58check TRON address.
func tronAddressFromTopic(topic string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(topic, "0x"))
	if err != nil {
		return "", err
	}
	if len(raw) < common.AddressLength {
		return "", fmt.Errorf("topic too short: %d bytes", len(raw))
	}
	b := make([]byte, 0, tronAddressLength)
	b = append(b, tronAddressPrefix)
	b = append(b, raw[len(raw)-common.AddressLength:]...)
	return address.Address(b).String(), nil
}

// tronAddressFromHex encodes a 21-byte "41..." hex address as base58check.
func tronAddressFromHex(s string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return "", err
	}
	if len(raw) != tronAddressLength || raw[0] != tronAddressPrefix {
		return "", fmt.Errorf("not a tron address: %q", s)
	}
	return address.Address(raw).String(), nil
}
