package chain

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// EVMTransaction is the subset of eth_getTransactionByHash we read.
type EVMTransaction struct {
	Hash        string       `json:"hash"`
	From        string       `json:"from"`
	To          *string      `json:"to"`
	Value       *hexutil.Big `json:"value"`
	BlockNumber *hexutil.Big `json:"blockNumber"`
}

type EVMLog struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

// EVMReceipt is the subset of eth_getTransactionReceipt we read.
type EVMReceipt struct {
	TransactionHash string          `json:"transactionHash"`
	BlockNumber     *hexutil.Big    `json:"blockNumber"`
	Status          *hexutil.Uint64 `json:"status"`
	Logs            []EVMLog        `json:"logs"`
}

func (r *EVMReceipt) Confirmed() bool {
	return r != nil && r.BlockNumber != nil
}

// Reverted reports a mined receipt with status 0. Pre-Byzantium receipts carry
// no status and are not considered reverted.
func (r *EVMReceipt) Reverted() bool {
	return r.Confirmed() && r.Status != nil && *r.Status == 0
}

// EVMClient talks to an account-model JSON-RPC endpoint (ETH, BNB Smart Chain).
type EVMClient struct {
	rpc     *rpc.Client
	retrier *Retrier
	chain   Chain
}

func DialEVM(ctx context.Context, c Chain, endpoint string, retrier *Retrier) (*EVMClient, error) {
	client, err := rpc.DialOptions(ctx, endpoint, rpc.WithHTTPClient(&http.Client{}))
	if err != nil {
		return nil, fmt.Errorf("dial %s rpc: %w", c, err)
	}
	return &EVMClient{rpc: client, retrier: retrier, chain: c}, nil
}

func (c *EVMClient) Close() {
	c.rpc.Close()
}

// TransactionByHash returns nil without error when the node does not know the hash.
func (c *EVMClient) TransactionByHash(ctx context.Context, hash string) (*EVMTransaction, error) {
	return Retry(ctx, c.retrier, string(c.chain)+" eth_getTransactionByHash", func(ctx context.Context) (*EVMTransaction, error) {
		var tx *EVMTransaction
		if err := c.rpc.CallContext(ctx, &tx, "eth_getTransactionByHash", hash); err != nil {
			return nil, err
		}
		return tx, nil
	})
}

// TransactionReceipt returns nil without error when no receipt exists yet.
func (c *EVMClient) TransactionReceipt(ctx context.Context, hash string) (*EVMReceipt, error) {
	return Retry(ctx, c.retrier, string(c.chain)+" eth_getTransactionReceipt", func(ctx context.Context) (*EVMReceipt, error) {
		var receipt *EVMReceipt
		if err := c.rpc.CallContext(ctx, &receipt, "eth_getTransactionReceipt", hash); err != nil {
			return nil, err
		}
		return receipt, nil
	})
}
