package chain

import (
	"context"

	"go.uber.org/zap"
)

type evmSource interface {
	TransactionByHash(ctx context.Context, hash string) (*EVMTransaction, error)
	TransactionReceipt(ctx context.Context, hash string) (*EVMReceipt, error)
}

// NativeVerifier checks a plain ETH or BNB transfer. Overpayment is accepted.
type NativeVerifier struct {
	source evmSource
	logger *zap.Logger
}

func NewNativeVerifier(source evmSource, logger *zap.Logger) *NativeVerifier {
	return &NativeVerifier{source: source, logger: logger}
}

func (v *NativeVerifier) Verify(ctx context.Context, p Payment) (Verdict, error) {
	tx, err := v.source.TransactionByHash(ctx, p.TxHash)
	if err != nil {
		return Pending, err
	}
	if tx == nil || tx.To == nil || tx.Value == nil {
		return Rejected, nil
	}

	receipt, err := v.source.TransactionReceipt(ctx, p.TxHash)
	if err != nil {
		return Pending, err
	}
	if !receipt.Confirmed() {
		return Pending, nil
	}
	if receipt.Reverted() {
		return Rejected, nil
	}

	paid := fromSmallestUnit(tx.Value.ToInt(), evmNativeDecimals)
	if paid.GreaterThanOrEqual(p.Amount) && sameAddress(*tx.To, p.Recipient) {
		return Confirmed, nil
	}

	v.logger.Debug("native transfer mismatch",
		zap.String("order_id", p.OrderID),
		zap.String("to", *tx.To),
		zap.String("paid", paid.String()),
		zap.String("expected", p.Amount.String()))
	return Rejected, nil
}
