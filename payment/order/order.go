package order

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"go-cryptopay/payment/chain"
	"go-cryptopay/payment/config"
	"go-cryptopay/payment/db"
	"go-cryptopay/payment/qrcode"
)

// Repository is the order store as seen by the CRUD side of the service.
type Repository interface {
	Create(ctx context.Context, o *db.Order) error
	Get(ctx context.Context, orderID string) (*db.Order, error)
	List(ctx context.Context, f db.ListFilter) ([]db.Order, error)
	Delete(ctx context.Context, orderID string) error
	AttachTxHash(ctx context.Context, orderID, txHash string) (*db.Order, error)
}

type CreateOrderInput struct {
	OrderID     string          `json:"orderId"`
	Sender      string          `json:"sender"`
	Recipient   string          `json:"recipient" binding:"required"`
	Chain       string          `json:"chain" binding:"required"`
	Token       string          `json:"token"`
	Amount      decimal.Decimal `json:"amount"`
	OrderDetail json.RawMessage `json:"orderDetail"`
}

type Service struct {
	repo     Repository
	networks map[chain.Chain]chain.Network
	qrSize   int
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(repo Repository, cfg *config.Config, logger *zap.Logger) *Service {
	networks := make(map[chain.Chain]chain.Network)
	for _, c := range []chain.Chain{chain.ETH, chain.BNB, chain.BTC, chain.TRX} {
		networks[c] = cfg.Chain(c).Network
	}
	return &Service{
		repo:     repo,
		networks: networks,
		qrSize:   cfg.QRSize,
		logger:   logger.With(zap.String("module", "orders")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*db.Order, error) {
	c, err := chain.ParseChain(in.Chain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	t, err := chain.ParseToken(in.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if c == chain.BTC && t != chain.Native {
		return nil, fmt.Errorf("%w: btc has no %s token", ErrInvalidOrder, t)
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidOrder)
	}

	network := s.networks[c]
	if err := chain.ValidateAddress(c, network, in.Recipient); err != nil {
		return nil, fmt.Errorf("%w: recipient: %v", ErrInvalidOrder, err)
	}
	// btc and trx payments are matched on the sender too
	if in.Sender != "" || c == chain.BTC || c == chain.TRX {
		if err := chain.ValidateAddress(c, network, in.Sender); err != nil {
			return nil, fmt.Errorf("%w: sender: %v", ErrInvalidOrder, err)
		}
	}
	if len(in.OrderDetail) > 0 && !json.Valid(in.OrderDetail) {
		return nil, fmt.Errorf("%w: orderDetail is not valid json", ErrInvalidOrder)
	}

	id := strings.TrimSpace(in.OrderID)
	if id == "" {
		id = uuid.NewString()
	}

	o := &db.Order{
		OrderID:     id,
		Sender:      strings.TrimSpace(in.Sender),
		Recipient:   strings.TrimSpace(in.Recipient),
		Chain:       string(c),
		Token:       string(t),
		Amount:      in.Amount,
		Status:      db.StatusPending,
		Timestamp:   s.now(),
		OrderDetail: datatypes.JSON(in.OrderDetail),
	}

	qr, err := qrcode.EncodeBase64(qrcode.PaymentURI(o.Chain, o.Token, o.Recipient, o.Amount), s.qrSize)
	if err != nil {
		s.logger.Warn("failed to generate payment qr", zap.String("order_id", id), zap.Error(err))
	}
	o.PaymentQr = qr

	if err := s.repo.Create(ctx, o); err != nil {
		return nil, err
	}
	s.logger.Info("order created", zap.String("order_id", o.OrderID), zap.String("chain", o.Chain), zap.String("amount", o.Amount.String()))
	return o, nil
}

// SubmitTxHash attaches the payer's proof of payment; the engine takes it from there.
func (s *Service) SubmitTxHash(ctx context.Context, orderID, txHash string) (*db.Order, error) {
	txHash = normalizeTxHash(txHash)
	if txHash == "" {
		return nil, fmt.Errorf("%w: empty transaction hash", ErrInvalidOrder)
	}

	o, err := s.repo.AttachTxHash(ctx, orderID, txHash)
	if err != nil {
		return nil, err
	}
	s.logger.Info("payment submitted", zap.String("order_id", orderID), zap.String("chain", o.Chain), zap.String("tx_hash", txHash))
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*db.Order, error) {
	return s.repo.Get(ctx, orderID)
}

func (s *Service) ListOrders(ctx context.Context, f db.ListFilter) ([]db.Order, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) DeleteOrder(ctx context.Context, orderID string) error {
	return s.repo.Delete(ctx, orderID)
}

// QRCode renders the payment QR for an existing order.
func (s *Service) QRCode(ctx context.Context, orderID string) ([]byte, error) {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(qrcode.PaymentURI(o.Chain, o.Token, o.Recipient, o.Amount), s.qrSize)
}

// VerifyOnce runs a single verification pass for one paid order, outside the
// poll loop. It holds the same lock as the scheduler while doing so.
func (d *Dispatcher) VerifyOnce(ctx context.Context, repo Repository, lock TickLock, orderID string) (Outcome, error) {
	if lock == nil {
		lock = noopLock{}
	}
	lease, ok, err := lock.Acquire(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrTickInProgress
	}
	defer releaseLease(ctx, lease, d.logger)

	o, err := repo.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	switch {
	case o.Terminal():
		return "", fmt.Errorf("%w: order is already %s", db.ErrInvalidTransition, o.Status)
	case o.Status != db.StatusPaid:
		return "", fmt.Errorf("%w: order has no payment yet", db.ErrInvalidTransition)
	}
	return d.Process(ctx, *o)
}

// normalizeTxHash lowercases hex hashes so that the uniqueness check cannot be
// bypassed by changing letter case.
func normalizeTxHash(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}
