package db

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// 4 status: pending, paid, success, failed
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Order is a merchant payment request. Amount is in the chain's human-readable
// unit (ETH, BTC, TRX, USDT). TxHash stays NULL until the payer submits proof, so
// the unique index only covers submitted hashes. Timestamp is the creation time.
type Order struct {
	ID            uint            `gorm:"primaryKey" json:"-"`
	OrderID       string          `gorm:"size:64;not null;uniqueIndex" json:"orderId"`
	Sender        string          `gorm:"size:128" json:"sender"`
	Recipient     string          `gorm:"size:128;not null" json:"recipient"`
	Chain         string          `gorm:"size:8;not null" json:"chain"`
	Token         string          `gorm:"size:16;not null" json:"token"`
	Amount        decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"amount"`
	Status        string          `gorm:"size:16;not null;index:idx_due,priority:2" json:"status"`
	Verify        bool            `gorm:"not null;index:idx_due,priority:1" json:"verify"`
	TxHash        *string         `gorm:"size:128;uniqueIndex" json:"txHash,omitempty"`
	LastCheckedAt *time.Time      `gorm:"index:idx_due,priority:3" json:"lastCheckedAt,omitempty"`
	Timestamp     time.Time       `gorm:"not null;index" json:"timestamp"`
	OrderDetail   datatypes.JSON  `json:"orderDetail,omitempty"`
	PaymentQr     string          `gorm:"type:text" json:"paymentQr,omitempty"`
}

func (o *Order) Terminal() bool {
	return o.Status == StatusSuccess || o.Status == StatusFailed
}

func (o *Order) Hash() string {
	if o.TxHash == nil {
		return ""
	}
	return *o.TxHash
}
