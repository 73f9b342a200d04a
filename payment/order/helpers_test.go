package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"go-cryptopay/payment/config"
	"go-cryptopay/payment/db"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var baseTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		PollInterval:       10 * time.Millisecond,
		BatchLimit:         10,
		RecheckInterval:    10 * time.Second,
		MaxPendingDuration: 60 * time.Minute,
		CallTimeout:        time.Second,
		RetryMaxTries:      1,
		PendingPolicy:      config.PendingWait,
		BTCNotFoundPolicy:  config.BTCNotFoundReject,
		QRSize:             128,
		SubmitLimit:        100,
		SubmitWindow:       time.Minute,
	}
}

func newTestStore(t *testing.T) *db.OrderStore {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Sync(gdb))
	return db.NewOrderStore(gdb)
}

func paidOrder(id string, created time.Time) db.Order {
	h := "0xhash-" + id
	return db.Order{
		OrderID:   id,
		Recipient: "0xabcdef0123456789abcdef0123456789abcdef01",
		Chain:     "eth",
		Token:     "native",
		Amount:    decimal.RequireFromString("0.5"),
		Status:    db.StatusPaid,
		TxHash:    &h,
		Timestamp: created,
	}
}

// fakeStore records every write the engine makes.
type fakeStore struct {
	mu         sync.Mutex
	due        []db.Order
	dueErr     error
	limit      int
	cutoff     time.Time
	selects    int
	confirmed  []string
	failed     []string
	touched    map[string]int
	confirmErr error
}

func newFakeStore(due ...db.Order) *fakeStore {
	return &fakeStore{due: due, touched: make(map[string]int)}
}

func (s *fakeStore) SelectDueOrders(_ context.Context, limit int, checkedBefore time.Time) ([]db.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selects++
	s.limit, s.cutoff = limit, checkedBefore
	if s.dueErr != nil {
		return nil, s.dueErr
	}
	if len(s.due) > limit {
		return s.due[:limit], nil
	}
	return s.due, nil
}

func (s *fakeStore) MarkConfirmed(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.confirmErr != nil {
		return s.confirmErr
	}
	s.confirmed = append(s.confirmed, orderID)
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, orderID)
	return nil
}

func (s *fakeStore) TouchLastChecked(_ context.Context, orderID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[orderID]++
	return nil
}
