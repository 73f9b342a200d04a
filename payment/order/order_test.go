package order

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"go-cryptopay/payment/chain"
	"go-cryptopay/payment/db"
)

const (
	ethRecipient = "0xabcdef0123456789abcdef0123456789abcdef01"
	btcSender    = "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx"
	btcRecipient = "tb1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0gdcccefvpysxf3q0sl5k7"
)

func newTestService(t *testing.T) (*Service, *db.OrderStore) {
	t.Helper()
	store := newTestStore(t)
	svc := NewService(store, testConfig(), zap.NewNop())
	svc.now = func() time.Time { return baseTime }
	return svc, store
}

func TestCreateOrder(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, CreateOrderInput{
		OrderID:     "o1",
		Recipient:   ethRecipient,
		Chain:       "ETH",
		Amount:      decimal.RequireFromString("0.25"),
		OrderDetail: json.RawMessage(`{"sku":"plan-pro"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "eth", o.Chain)
	assert.Equal(t, "native", o.Token)
	assert.Equal(t, db.StatusPending, o.Status)
	assert.True(t, o.Timestamp.Equal(baseTime))

	png, err := base64.StdEncoding.DecodeString(o.PaymentQr)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(png[:4]))

	got, err := store.Get(ctx, "o1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"sku":"plan-pro"}`, string(got.OrderDetail))

	_, err = svc.CreateOrder(ctx, CreateOrderInput{OrderID: "o1", Recipient: ethRecipient, Chain: "eth", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, db.ErrDuplicateOrderID)
}

func TestCreateOrderGeneratesID(t *testing.T) {
	svc, _ := newTestService(t)
	o, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		Recipient: btcRecipient,
		Sender:    btcSender,
		Chain:     "btc",
		Amount:    decimal.RequireFromString("0.001"),
	})
	require.NoError(t, err)
	assert.Len(t, o.OrderID, 36)
}

func TestCreateOrderValidation(t *testing.T) {
	svc, _ := newTestService(t)
	tests := []struct {
		name string
		in   CreateOrderInput
	}{
		{"unknown chain", CreateOrderInput{Recipient: ethRecipient, Chain: "doge", Amount: decimal.NewFromInt(1)}},
		{"unknown token", CreateOrderInput{Recipient: ethRecipient, Chain: "eth", Token: "dai", Amount: decimal.NewFromInt(1)}},
		{"btc usdt", CreateOrderInput{Recipient: btcRecipient, Sender: btcSender, Chain: "btc", Token: "usdt", Amount: decimal.NewFromInt(1)}},
		{"zero amount", CreateOrderInput{Recipient: ethRecipient, Chain: "eth"}},
		{"negative amount", CreateOrderInput{Recipient: ethRecipient, Chain: "eth", Amount: decimal.NewFromInt(-1)}},
		{"bad recipient", CreateOrderInput{Recipient: "0x123", Chain: "eth", Amount: decimal.NewFromInt(1)}},
		{"btc without sender", CreateOrderInput{Recipient: btcRecipient, Chain: "btc", Amount: decimal.NewFromInt(1)}},
		{"btc mainnet address on testnet", CreateOrderInput{Recipient: "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", Sender: btcSender, Chain: "btc", Amount: decimal.NewFromInt(1)}},
		{"bad detail", CreateOrderInput{Recipient: ethRecipient, Chain: "eth", Amount: decimal.NewFromInt(1), OrderDetail: json.RawMessage(`{`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), tt.in)
			assert.ErrorIs(t, err, ErrInvalidOrder)
			assert.Equal(t, 400, HTTPStatus(err))
		})
	}
}

func TestSubmitTxHash(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, id := range []string{"o1", "o2"} {
		_, err := svc.CreateOrder(ctx, CreateOrderInput{OrderID: id, Recipient: ethRecipient, Chain: "eth", Amount: decimal.NewFromInt(1)})
		require.NoError(t, err)
	}

	o, err := svc.SubmitTxHash(ctx, "o1", " 0xABCDEF ")
	require.NoError(t, err)
	assert.Equal(t, db.StatusPaid, o.Status)
	assert.Equal(t, "0xabcdef", o.Hash())

	// resubmitting is idempotent
	_, err = svc.SubmitTxHash(ctx, "o1", "0xabcdef")
	require.NoError(t, err)

	_, err = svc.SubmitTxHash(ctx, "o2", "0xAbCdEf")
	assert.ErrorIs(t, err, db.ErrDuplicateTxHash)
	assert.Equal(t, "duplicate_tx_hash", Kind(err))

	_, err = svc.SubmitTxHash(ctx, "o2", "  ")
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = svc.SubmitTxHash(ctx, "missing", "0x01")
	assert.ErrorIs(t, err, db.ErrOrderNotFound)
}

func TestDeleteOrder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, id := range []string{"o1", "o2"} {
		_, err := svc.CreateOrder(ctx, CreateOrderInput{OrderID: id, Recipient: ethRecipient, Chain: "eth", Amount: decimal.NewFromInt(1)})
		require.NoError(t, err)
	}
	_, err := svc.SubmitTxHash(ctx, "o2", "0x02")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteOrder(ctx, "o1"))
	_, err = svc.GetOrder(ctx, "o1")
	assert.ErrorIs(t, err, db.ErrOrderNotFound)

	err = svc.DeleteOrder(ctx, "o2")
	assert.ErrorIs(t, err, db.ErrInvalidTransition)
}

func TestVerifyOnce(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, CreateOrderInput{OrderID: "o1", Recipient: ethRecipient, Chain: "eth", Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)

	d := NewDispatcher(store, routerWith(verdict(chain.Confirmed, nil)), testConfig(), nil, zap.NewNop())

	_, err = d.VerifyOnce(ctx, store, nil, "o1")
	assert.ErrorIs(t, err, db.ErrInvalidTransition)

	_, err = svc.SubmitTxHash(ctx, "o1", "0x01")
	require.NoError(t, err)

	// the scheduler of a running service holds the lock
	_, err = d.VerifyOnce(ctx, store, denyLock{}, "o1")
	assert.ErrorIs(t, err, ErrTickInProgress)
	got, err := svc.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, db.StatusPaid, got.Status)
	assert.Nil(t, got.LastCheckedAt)

	lease := &fakeLease{}
	outcome, err := d.VerifyOnce(ctx, store, &fakeLock{lease: lease}, "o1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome)
	assert.Equal(t, 1, lease.releases)

	got, err = svc.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, db.StatusSuccess, got.Status)

	_, err = d.VerifyOnce(ctx, store, nil, "o1")
	assert.ErrorIs(t, err, db.ErrInvalidTransition)
}
