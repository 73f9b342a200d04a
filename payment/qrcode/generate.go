package qrcode

import (
	"encoding/base64"
	"fmt"

	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"

	"go-cryptopay/payment/chain"
)

const DefaultSize = 256

// PaymentURI builds the wallet URI a payer scans. Native amounts use the
// scheme's own unit convention: BIP21 in BTC, EIP-681 in wei, tron: in TRX.
func PaymentURI(chainName, token, recipient string, amount decimal.Decimal) string {
	switch chainName {
	case "btc":
		return fmt.Sprintf("bitcoin:%s?amount=%s", recipient, amount.String())
	case "eth", "bnb":
		if token == "native" {
			return fmt.Sprintf("ethereum:%s?value=%s", recipient, chain.ToSmallestUnit(amount, 18).String())
		}
		return fmt.Sprintf("ethereum:%s?token=%s&amount=%s", recipient, token, amount.String())
	case "trx":
		if token == "native" {
			return fmt.Sprintf("tron:%s?amount=%s", recipient, amount.StringFixed(6))
		}
		return fmt.Sprintf("tron:%s?token=%s&amount=%s", recipient, token, amount.String())
	}
	return recipient
}

func Encode(uri string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(uri, qrcode.Medium, size)
}

// EncodeBase64 returns the PNG as a base64 string, stored with the order.
func EncodeBase64(uri string, size int) (string, error) {
	png, err := Encode(uri, size)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
