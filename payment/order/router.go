package order

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"go-cryptopay/payment/chain"
	"go-cryptopay/payment/config"
)

// Clients holds the open data source connections so they can be closed on shutdown.
type Clients struct {
	evm []*chain.EVMClient
}

func (c *Clients) Close() {
	for _, client := range c.evm {
		client.Close()
	}
}

func newRetrier(cfg *config.Config, logger *zap.Logger) *chain.Retrier {
	r := chain.NewRetrier(cfg.RetryMaxTries, cfg.CallTimeout, logger)
	r.InitialInterval = cfg.RetryInitialInterval
	r.MaxInterval = cfg.RetryMaxInterval
	if cfg.RateLimitPerSecond > 0 {
		r.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), 1)
	}
	return r
}

// BuildRouter wires one verifier per supported (chain, token) pair from the
// resolved configuration. Each chain gets its own retrier and rate limiter.
func BuildRouter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*chain.Router, *Clients, error) {
	router := chain.NewRouter()
	clients := &Clients{}
	logger = logger.With(zap.String("module", "verifier"))

	for _, c := range []chain.Chain{chain.ETH, chain.BNB} {
		cc := cfg.Chain(c)
		client, err := chain.DialEVM(ctx, c, cc.URL, newRetrier(cfg, logger))
		if err != nil {
			clients.Close()
			return nil, nil, err
		}
		clients.evm = append(clients.evm, client)

		router.Register(c, chain.Native, chain.NewNativeVerifier(client, logger))
		router.Register(c, chain.USDT, chain.NewTokenVerifier(client, cc.USDTDecimals, cc.USDTContract, logger))
	}

	btc := cfg.Chain(chain.BTC)
	explorer := chain.NewExplorerClient(btc.Network, newRetrier(cfg, logger), chain.WithExplorerURL(btc.URL))
	router.Register(chain.BTC, chain.Native, chain.NewBTCVerifier(explorer, cfg.BTCNotFoundPolicy == config.BTCNotFoundPending, logger))

	trx := cfg.Chain(chain.TRX)
	tron := chain.NewTronClient(trx.Network, newRetrier(cfg, logger), chain.WithTronURL(trx.URL), chain.WithTronAPIKey(trx.APIKey))
	tronVerifier := chain.NewTronVerifier(tron, logger)
	router.Register(chain.TRX, chain.Native, tronVerifier)
	router.Register(chain.TRX, chain.USDT, tronVerifier)

	return router, clients, nil
}
