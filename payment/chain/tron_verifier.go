package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"

	"go.uber.org/zap"
)

const transferContractType = "TransferContract"

type tronSource interface {
	TransactionByID(ctx context.Context, txID string) (*TronTransaction, error)
	TransactionInfoByID(ctx context.Context, txID string) (*TronTransactionInfo, error)
}

// TronVerifier checks TRX and TRC20 payments. Transfers are decoded from the first
// event log carrying more than two topics; plain TRX transfers emit no logs and
// are read from the transaction's TransferContract instead, once mined.
type TronVerifier struct {
	source tronSource
	logger *zap.Logger
}

func NewTronVerifier(source tronSource, logger *zap.Logger) *TronVerifier {
	return &TronVerifier{source: source, logger: logger}
}

type tronTransfer struct {
	from   string
	to     string
	amount *big.Int
}

func (v *TronVerifier) Verify(ctx context.Context, p Payment) (Verdict, error) {
	tx, err := v.source.TransactionByID(ctx, p.TxHash)
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrMalformed) {
		return Pending, err
	}
	info, err := v.source.TransactionInfoByID(ctx, p.TxHash)
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrMalformed) {
		return Pending, err
	}

	// nothing is trusted before the node reports a receipt for the transaction
	if info == nil || info.Receipt == nil {
		return Rejected, nil
	}

	transfer, ok := transferFromLogs(info)
	if !ok && p.Token == Native && len(info.Log) == 0 {
		transfer, ok = transferFromContract(tx)
	}
	if !ok {
		return Rejected, nil
	}

	amount := fromSmallestUnit(transfer.amount, tronDecimals)
	if amount.Equal(p.Amount) && sameAddress(transfer.from, p.Sender) && sameAddress(transfer.to, p.Recipient) {
		return Confirmed, nil
	}

	v.logger.Debug("trx transfer mismatch",
		zap.String("order_id", p.OrderID),
		zap.String("from", transfer.from),
		zap.String("to", transfer.to),
		zap.String("paid", amount.String()))
	return Rejected, nil
}

func transferFromLogs(info *TronTransactionInfo) (tronTransfer, bool) {
	if info == nil || info.Receipt == nil || len(info.Log) == 0 {
		return tronTransfer{}, false
	}
	if info.Receipt.Result != "" && info.Receipt.Result != "SUCCESS" {
		return tronTransfer{}, false
	}

	for _, l := range info.Log {
		if len(l.Topics) <= 2 {
			continue
		}

		from, err := tronAddressFromTopic(l.Topics[1])
		if err != nil {
			return tronTransfer{}, false
		}
		to, err := tronAddressFromTopic(l.Topics[2])
		if err != nil {
			return tronTransfer{}, false
		}
		data, err := hex.DecodeString(strings.TrimPrefix(l.Data, "0x"))
		if err != nil {
			return tronTransfer{}, false
		}
		return tronTransfer{from: from, to: to, amount: new(big.Int).SetBytes(data)}, true
	}
	return tronTransfer{}, false
}

func transferFromContract(tx *TronTransaction) (tronTransfer, bool) {
	if tx == nil || len(tx.RawData.Contract) == 0 {
		return tronTransfer{}, false
	}
	if len(tx.Ret) > 0 && tx.Ret[0].ContractRet != "SUCCESS" {
		return tronTransfer{}, false
	}

	c := tx.RawData.Contract[0]
	if c.Type != transferContractType {
		return tronTransfer{}, false
	}
	from, err := tronAddressFromHex(c.Parameter.Value.OwnerAddress)
	if err != nil {
		return tronTransfer{}, false
	}
	to, err := tronAddressFromHex(c.Parameter.Value.ToAddress)
	if err != nil {
		return tronTransfer{}, false
	}
	return tronTransfer{from: from, to: to, amount: big.NewInt(c.Parameter.Value.Amount)}, true
}
