package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	trongridMainnet = "https://api.trongrid.io"
	trongridTestnet = "https://api.shasta.trongrid.io"
)

type TronTransaction struct {
	Ret     []TronRet   `json:"ret"`
	TxID    string      `json:"txID"`
	RawData TronRawData `json:"raw_data"`
}

type TronRet struct {
	ContractRet string `json:"contractRet"`
}

type TronRawData struct {
	Contract  []TronContract `json:"contract"`
	Timestamp int64          `json:"timestamp"`
}

type TronContract struct {
	Parameter TronContractParameter `json:"parameter"`
	Type      string                `json:"type"`
}

type TronContractParameter struct {
	Value   TronTransferValue `json:"value"`
	TypeURL string            `json:"type_url"`
}

type TronTransferValue struct {
	Amount       int64  `json:"amount"`
	OwnerAddress string `json:"owner_address"`
	ToAddress    string `json:"to_address"`
}

type TronReceipt struct {
	Result      string `json:"result"`
	NetUsage    int64  `json:"net_usage"`
	EnergyUsage int64  `json:"energy_usage_total"`
}

type TronLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// TronTransactionInfo carries the receipt and event logs of a mined transaction.
type TronTransactionInfo struct {
	ID             string       `json:"id"`
	BlockNumber    int64        `json:"blockNumber"`
	BlockTimeStamp int64        `json:"blockTimeStamp"`
	Receipt        *TronReceipt `json:"receipt"`
	Log            []TronLog    `json:"log"`
}

// TronClient calls the TRON full-node HTTP API (TronGrid).
type TronClient struct {
	client  http.Client
	baseURL string
	apiKey  string
	retrier *Retrier
}

func WithTronURL(baseURL string) func(*TronClient) {
	return func(c *TronClient) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithTronAPIKey(apiKey string) func(*TronClient) {
	return func(c *TronClient) {
		c.apiKey = apiKey
	}
}

func NewTronClient(network Network, retrier *Retrier, opts ...func(*TronClient)) *TronClient {
	base := trongridTestnet
	if network == Mainnet {
		base = trongridMainnet
	}

	c := &TronClient{
		client:  http.Client{Timeout: 10 * time.Second},
		baseURL: base,
		retrier: retrier,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TransactionByID returns ErrNotFound when the node answers with an empty object.
func (c *TronClient) TransactionByID(ctx context.Context, txID string) (*TronTransaction, error) {
	return Retry(ctx, c.retrier, "trx gettransactionbyid", func(ctx context.Context) (*TronTransaction, error) {
		var tx TronTransaction
		if err := c.post(ctx, "/wallet/gettransactionbyid", txID, &tx); err != nil {
			return nil, err
		}
		if tx.TxID == "" {
			return nil, ErrNotFound
		}
		return &tx, nil
	})
}

// TransactionInfoByID returns ErrNotFound until the transaction is in a block.
func (c *TronClient) TransactionInfoByID(ctx context.Context, txID string) (*TronTransactionInfo, error) {
	return Retry(ctx, c.retrier, "trx gettransactioninfobyid", func(ctx context.Context) (*TronTransactionInfo, error) {
		var info TronTransactionInfo
		if err := c.post(ctx, "/wallet/gettransactioninfobyid", txID, &info); err != nil {
			return nil, err
		}
		if info.ID == "" {
			return nil, ErrNotFound
		}
		return &info, nil
	})
}

func (c *TronClient) post(ctx context.Context, path, txID string, out any) error {
	body, err := json.Marshal(map[string]string{"value": txID})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("response status not OK: %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
