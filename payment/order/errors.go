package order

import (
	"context"
	"errors"
	"net/http"

	"go-cryptopay/payment/chain"
	"go-cryptopay/payment/db"
)

var (
	ErrInvalidOrder = errors.New("invalid order")
	// ErrTickInProgress is returned when a poll starts while the previous batch is still running.
	ErrTickInProgress = errors.New("previous poll still running")
)

func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidOrder):
		return "invalid_order"
	case errors.Is(err, db.ErrOrderNotFound):
		return "unknown_order"
	case errors.Is(err, db.ErrDuplicateOrderID):
		return "duplicate_order_id"
	case errors.Is(err, db.ErrDuplicateTxHash):
		return "duplicate_tx_hash"
	case errors.Is(err, db.ErrInvalidTransition):
		return "invalid_transition"
	case chain.IsNetworkError(err):
		return "network"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}

func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidOrder):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrDuplicateOrderID),
		errors.Is(err, db.ErrDuplicateTxHash),
		errors.Is(err, db.ErrInvalidTransition):
		return http.StatusConflict
	case chain.IsNetworkError(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
