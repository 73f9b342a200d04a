// Package chain verifies a submitted payment transaction against public blockchain data.
// Each supported (chain, token) pair has its own Verifier; Router picks the right one.
package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Chain string

const (
	ETH Chain = "eth"
	BNB Chain = "bnb"
	BTC Chain = "btc"
	TRX Chain = "trx"
)

func ParseChain(s string) (Chain, error) {
	switch c := Chain(strings.ToLower(strings.TrimSpace(s))); c {
	case ETH, BNB, BTC, TRX:
		return c, nil
	}
	return "", fmt.Errorf("unsupported chain %q", s)
}

type Token string

const (
	Native Token = "native"
	USDT   Token = "USDT"
)

func ParseToken(s string) (Token, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "native":
		return Native, nil
	case "usdt":
		return USDT, nil
	}
	return "", fmt.Errorf("unsupported token %q", s)
}

type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

func ParseNetwork(s string) (Network, error) {
	switch n := Network(strings.ToLower(strings.TrimSpace(s))); n {
	case Mainnet, Testnet:
		return n, nil
	case "":
		return Testnet, nil
	}
	return "", fmt.Errorf("unsupported network %q", s)
}

// Verdict is the outcome of checking one payment against chain data.
type Verdict int

const (
	// Pending means the data source does not have enough information yet.
	Pending Verdict = iota
	Confirmed
	Rejected
)

func (v Verdict) String() string {
	switch v {
	case Confirmed:
		return "confirmed"
	case Rejected:
		return "rejected"
	default:
		return "pending"
	}
}

// Payment is the part of an order a verifier looks at. Amount is in the
// chain's human-readable unit (ETH, BTC, TRX, USDT), never the smallest one.
type Payment struct {
	OrderID   string
	Chain     Chain
	Token     Token
	Sender    string
	Recipient string
	Amount    decimal.Decimal
	TxHash    string
}

type Verifier interface {
	Verify(ctx context.Context, p Payment) (Verdict, error)
}

// VerifierFunc adapts a plain function to the Verifier interface.
type VerifierFunc func(ctx context.Context, p Payment) (Verdict, error)

func (f VerifierFunc) Verify(ctx context.Context, p Payment) (Verdict, error) {
	return f(ctx, p)
}

type Route struct {
	Chain Chain
	Token Token
}

type Router struct {
	verifiers map[Route]Verifier
}

func NewRouter() *Router {
	return &Router{verifiers: make(map[Route]Verifier)}
}

func (r *Router) Register(c Chain, t Token, v Verifier) {
	r.verifiers[Route{Chain: c, Token: t}] = v
}

// For returns the verifier for the pair, or ErrUnsupportedRoute.
func (r *Router) For(c Chain, t Token) (Verifier, error) {
	v, ok := r.verifiers[Route{Chain: c, Token: t}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedRoute, c, t)
	}
	return v, nil
}

func sameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
