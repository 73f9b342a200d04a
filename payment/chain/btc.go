package chain

import (
	"context"
	"errors"

	"github.com/btcsuite/btcutil"
	"go.uber.org/zap"
)

// paymentOutputIndex is where the payment lands in a two-output payment
// transaction; output 0 is change or unrelated.
const paymentOutputIndex = 1

type btcSource interface {
	Transaction(ctx context.Context, txid string) (*BTCTransaction, error)
}

// BTCVerifier checks a bitcoin payment. The amount must match exactly and both
// sender (first input's previous output) and recipient must match.
type BTCVerifier struct {
	source btcSource
	// notFoundPending turns an unknown transaction into Pending instead of Rejected.
	notFoundPending bool
	logger          *zap.Logger
}

func NewBTCVerifier(source btcSource, notFoundPending bool, logger *zap.Logger) *BTCVerifier {
	return &BTCVerifier{source: source, notFoundPending: notFoundPending, logger: logger}
}

func (v *BTCVerifier) Verify(ctx context.Context, p Payment) (Verdict, error) {
	tx, err := v.source.Transaction(ctx, p.TxHash)
	switch {
	case errors.Is(err, ErrNotFound):
		if v.notFoundPending {
			return Pending, nil
		}
		return Rejected, nil
	case errors.Is(err, ErrMalformed):
		return Rejected, nil
	case err != nil:
		return Pending, err
	}

	if len(tx.Vin) == 0 || tx.Vin[0].Prevout == nil || len(tx.Vout) <= paymentOutputIndex {
		return Rejected, nil
	}

	sender := tx.Vin[0].Prevout.ScriptPubKeyAddress
	out := tx.Vout[paymentOutputIndex]
	paid := satoshisToBTC(out.Value)

	if paid.Equal(p.Amount) && sameAddress(sender, p.Sender) && sameAddress(out.ScriptPubKeyAddress, p.Recipient) {
		return Confirmed, nil
	}

	v.logger.Debug("btc transfer mismatch",
		zap.String("order_id", p.OrderID),
		zap.String("from", sender),
		zap.String("to", out.ScriptPubKeyAddress),
		zap.String("paid", btcutil.Amount(out.Value).String()))
	return Rejected, nil
}
