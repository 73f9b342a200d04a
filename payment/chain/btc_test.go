package chain

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	btcPayer    = "tb1qpayer"
	btcMerchant = "tb1qmerchant"
)

type fakeExplorer struct {
	tx  *BTCTransaction
	err error
}

func (f *fakeExplorer) Transaction(context.Context, string) (*BTCTransaction, error) {
	return f.tx, f.err
}

func btcTx(sender, recipient string, sats int64) *BTCTransaction {
	return &BTCTransaction{
		TxID: "ab",
		Vin:  []BTCInput{{TxID: "cd", Prevout: &BTCOutput{ScriptPubKeyAddress: sender, Value: sats + 1000}}},
		Vout: []BTCOutput{
			{ScriptPubKeyAddress: sender, Value: 500},
			{ScriptPubKeyAddress: recipient, Value: sats},
		},
		Status: BTCStatus{Confirmed: true, BlockHeight: 100},
	}
}

func TestBTCVerifier(t *testing.T) {
	payment := Payment{OrderID: "o3", Chain: BTC, Token: Native, Sender: btcPayer, Recipient: btcMerchant, Amount: decimal.RequireFromString("1.5"), TxHash: "ab"}

	tests := []struct {
		name            string
		source          *fakeExplorer
		notFoundPending bool
		want            Verdict
		wantErr         bool
	}{
		{"exact match", &fakeExplorer{tx: btcTx(btcPayer, btcMerchant, 150_000_000)}, false, Confirmed, false},
		{"one satoshi over", &fakeExplorer{tx: btcTx(btcPayer, btcMerchant, 150_000_001)}, false, Rejected, false},
		{"wrong sender", &fakeExplorer{tx: btcTx("tb1qother", btcMerchant, 150_000_000)}, false, Rejected, false},
		{"wrong recipient", &fakeExplorer{tx: btcTx(btcPayer, "tb1qother", 150_000_000)}, false, Rejected, false},
		{"single output", &fakeExplorer{tx: &BTCTransaction{Vin: []BTCInput{{Prevout: &BTCOutput{ScriptPubKeyAddress: btcPayer}}}, Vout: []BTCOutput{{ScriptPubKeyAddress: btcMerchant, Value: 150_000_000}}}}, false, Rejected, false},
		{"not found rejects", &fakeExplorer{err: ErrNotFound}, false, Rejected, false},
		{"not found pending policy", &fakeExplorer{err: ErrNotFound}, true, Pending, false},
		{"malformed rejects", &fakeExplorer{err: ErrMalformed}, true, Rejected, false},
		{"network error", &fakeExplorer{err: &NetworkError{Op: "btc", Err: errors.New("reset")}}, false, Pending, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewBTCVerifier(tt.source, tt.notFoundPending, zap.NewNop()).Verify(context.Background(), payment)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExplorerClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tx/good":
			w.Write([]byte(`{"txid":"good","vin":[{"txid":"x","vout":0,"prevout":{"scriptpubkey_address":"tb1qpayer","value":200000000}}],` +
				`"vout":[{"scriptpubkey_address":"tb1qpayer","value":1000},{"scriptpubkey_address":"tb1qmerchant","value":150000000}],` +
				`"status":{"confirmed":true,"block_height":42}}`))
		case "/tx/garbage":
			w.Write([]byte(`{"txid":`))
		case "/tx/flaky":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	retrier := NewRetrier(2, 0, zap.NewNop())
	retrier.InitialInterval = 1
	retrier.MaxInterval = 1
	client := NewExplorerClient(Testnet, retrier, WithExplorerURL(srv.URL+"/"))

	tx, err := client.Transaction(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), tx.Status.BlockHeight)
	require.Len(t, tx.Vout, 2)
	assert.Equal(t, int64(150_000_000), tx.Vout[1].Value)

	_, err = client.Transaction(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = client.Transaction(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = client.Transaction(context.Background(), "flaky")
	assert.True(t, IsNetworkError(err))

	v := NewBTCVerifier(client, false, zap.NewNop())
	got, err := v.Verify(context.Background(), Payment{Sender: btcPayer, Recipient: btcMerchant, Amount: decimal.RequireFromString("1.5"), TxHash: "good"})
	require.NoError(t, err)
	assert.Equal(t, Confirmed, got)
}
