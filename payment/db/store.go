package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrDuplicateOrderID  = errors.New("order id already exists")
	ErrDuplicateTxHash   = errors.New("transaction hash already used by another order")
	ErrInvalidTransition = errors.New("order status does not allow this change")
)

// OrderStore persists orders. Every status change is a single conditional
// UPDATE keyed by order_id, so concurrent writers cannot move an order backward.
type OrderStore struct {
	db *gorm.DB
}

func NewOrderStore(db *gorm.DB) *OrderStore {
	return &OrderStore{db: db}
}

func (s *OrderStore) Create(ctx context.Context, o *Order) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Order{}).Where("order_id = ?", o.OrderID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateOrderID
		}
		return tx.Create(o).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateOrderID
	}
	return err
}

func (s *OrderStore) Get(ctx context.Context, orderID string) (*Order, error) {
	var o Order
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

type ListFilter struct {
	Status string
	Chain  string
	Limit  int
	Offset int
}

func (s *OrderStore) List(ctx context.Context, f ListFilter) ([]Order, error) {
	q := s.db.WithContext(ctx).Model(&Order{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Chain != "" {
		q = q.Where("chain = ?", f.Chain)
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 100
	}

	var orders []Order
	err := q.Order("timestamp DESC").Limit(f.Limit).Offset(f.Offset).Find(&orders).Error
	return orders, err
}

// Delete removes an order that has not been paid yet.
func (s *OrderStore) Delete(ctx context.Context, orderID string) error {
	res := s.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, StatusPending).
		Delete(&Order{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, orderID); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

// AttachTxHash records the payer's proof of payment and moves the order from
// pending to paid. Submitting the same hash again for a paid order is a no-op.
func (s *OrderStore) AttachTxHash(ctx context.Context, orderID, txHash string) (*Order, error) {
	var order Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_id = ?", orderID).First(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}

		var count int64
		if err := tx.Model(&Order{}).
			Where("tx_hash = ? AND order_id <> ?", txHash, orderID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateTxHash
		}

		if order.Status == StatusPaid && order.Hash() == txHash {
			return nil
		}
		if order.Status != StatusPending {
			return ErrInvalidTransition
		}

		res := tx.Model(&Order{}).
			Where("order_id = ? AND status = ?", orderID, StatusPending).
			Updates(map[string]interface{}{"tx_hash": txHash, "status": StatusPaid})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}

		order.TxHash = &txHash
		order.Status = StatusPaid
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrDuplicateTxHash
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// SelectDueOrders returns up to limit paid, unverified orders that were never
// checked or were last checked before checkedBefore, oldest first.
func (s *OrderStore) SelectDueOrders(ctx context.Context, limit int, checkedBefore time.Time) ([]Order, error) {
	var orders []Order
	err := s.db.WithContext(ctx).
		Where("verify = ? AND status = ?", false, StatusPaid).
		Where("last_checked_at IS NULL OR last_checked_at < ?", checkedBefore).
		Order("timestamp ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("select due orders: %w", err)
	}
	return orders, nil
}

// MarkConfirmed sets verify=true and status=success together. Applying it to
// an order that is already confirmed changes nothing.
func (s *OrderStore) MarkConfirmed(ctx context.Context, orderID string) error {
	res := s.db.WithContext(ctx).Model(&Order{}).
		Where("order_id = ? AND status IN ?", orderID, []string{StatusPaid, StatusSuccess}).
		Updates(map[string]interface{}{"verify": true, "status": StatusSuccess})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.expectStatus(ctx, orderID, StatusSuccess)
	}
	return nil
}

// MarkFailed moves a paid, unverified order to failed.
func (s *OrderStore) MarkFailed(ctx context.Context, orderID string) error {
	res := s.db.WithContext(ctx).Model(&Order{}).
		Where("order_id = ? AND status = ? AND verify = ?", orderID, StatusPaid, false).
		Update("status", StatusFailed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.expectStatus(ctx, orderID, StatusFailed)
	}
	return nil
}

func (s *OrderStore) TouchLastChecked(ctx context.Context, orderID string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&Order{}).
		Where("order_id = ?", orderID).
		Update("last_checked_at", at).Error
}

// expectStatus is used after a conditional update matched nothing: it is fine
// when the order already has the wanted status.
func (s *OrderStore) expectStatus(ctx context.Context, orderID, want string) error {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status != want {
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, orderID, o.Status)
	}
	return nil
}
