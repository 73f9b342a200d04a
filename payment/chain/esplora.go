package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	esploraMainnet = "https://blockstream.info/api"
	esploraTestnet = "https://blockstream.info/testnet/api"
)

type BTCOutput struct {
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	Value               int64  `json:"value"`
}

type BTCInput struct {
	TxID    string     `json:"txid"`
	Vout    uint32     `json:"vout"`
	Prevout *BTCOutput `json:"prevout"`
}

type BTCStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight uint64 `json:"block_height"`
}

// BTCTransaction is the UTXO-model transaction shape returned by GET /tx/{txid}.
type BTCTransaction struct {
	TxID   string      `json:"txid"`
	Vin    []BTCInput  `json:"vin"`
	Vout   []BTCOutput `json:"vout"`
	Status BTCStatus   `json:"status"`
}

// ExplorerClient reads transactions from an Esplora-compatible block explorer.
type ExplorerClient struct {
	client  http.Client
	baseURL string
	retrier *Retrier
}

func WithExplorerURL(baseURL string) func(*ExplorerClient) {
	return func(c *ExplorerClient) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithExplorerHTTPClient(client http.Client) func(*ExplorerClient) {
	return func(c *ExplorerClient) {
		c.client = client
	}
}

func NewExplorerClient(network Network, retrier *Retrier, opts ...func(*ExplorerClient)) *ExplorerClient {
	base := esploraTestnet
	if network == Mainnet {
		base = esploraMainnet
	}

	c := &ExplorerClient{
		client:  http.Client{Timeout: 10 * time.Second},
		baseURL: base,
		retrier: retrier,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ExplorerClient) Transaction(ctx context.Context, txid string) (*BTCTransaction, error) {
	return Retry(ctx, c.retrier, "btc get tx", func(ctx context.Context) (*BTCTransaction, error) {
		return c.getTransaction(ctx, txid)
	})
}

func (c *ExplorerClient) getTransaction(ctx context.Context, txid string) (*BTCTransaction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tx/"+url.PathEscape(txid), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to get tx failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusBadRequest:
		// esplora answers 400 for hashes it cannot parse and 404 for unknown ones
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("response status not OK: %s", resp.Status)
	}

	var tx BTCTransaction
	if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &tx, nil
}
