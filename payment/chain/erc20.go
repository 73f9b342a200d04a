package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// TransferEventTopic is keccak256("Transfer(address,address,uint256)").
var TransferEventTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

type receiptSource interface {
	TransactionReceipt(ctx context.Context, hash string) (*EVMReceipt, error)
}

// TokenVerifier checks an ERC20/BEP20 transfer by scanning the receipt's Transfer logs.
// The first log paying exactly the expected amount to the recipient wins.
type TokenVerifier struct {
	source   receiptSource
	decimals int32
	// contract, when non-zero, restricts matching to logs emitted by that token contract.
	contract common.Address
	logger   *zap.Logger
}

func NewTokenVerifier(source receiptSource, decimals int32, contract string, logger *zap.Logger) *TokenVerifier {
	v := &TokenVerifier{source: source, decimals: decimals, logger: logger}
	if decimals <= 0 {
		v.decimals = DefaultTokenDecimals
	}
	if common.IsHexAddress(contract) {
		v.contract = common.HexToAddress(contract)
	}
	return v
}

func (v *TokenVerifier) Verify(ctx context.Context, p Payment) (Verdict, error) {
	receipt, err := v.source.TransactionReceipt(ctx, p.TxHash)
	if err != nil {
		return Pending, err
	}
	if !receipt.Confirmed() {
		return Pending, nil
	}
	if len(receipt.Logs) == 0 || receipt.Reverted() {
		return Rejected, nil
	}

	for i, l := range receipt.Logs {
		if len(l.Topics) < 3 || l.Topics[0] != TransferEventTopic {
			continue
		}
		if v.contract != (common.Address{}) && l.Address != v.contract {
			continue
		}

		to := common.BytesToAddress(l.Topics[2].Bytes())
		amount := fromSmallestUnit(new(big.Int).SetBytes(l.Data), v.decimals)
		if sameAddress(to.Hex(), p.Recipient) && amount.Equal(p.Amount) {
			v.logger.Debug("token transfer matched",
				zap.String("order_id", p.OrderID),
				zap.Int("log_index", i))
			return Confirmed, nil
		}
	}
	return Rejected, nil
}
