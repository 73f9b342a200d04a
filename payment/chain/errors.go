package chain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by a client when the data source does not know the transaction.
	ErrNotFound = errors.New("transaction not found")
	// ErrMalformed is returned when a response is missing fields the verifier needs.
	ErrMalformed = errors.New("malformed response")

	ErrUnsupportedRoute = errors.New("no verifier for chain/token")
)

// NetworkError is a data source call that kept failing after all retries.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
