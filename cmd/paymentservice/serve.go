package main

import (
	"context"
	"net"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go-cryptopay/payment/config"
	"go-cryptopay/payment/db"
	"go-cryptopay/payment/order"
	"go-cryptopay/service"
)

const tickLockKey = "cryptopay:verify-tick"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the order API and the verification scheduler",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()

		gdb, err := openDB(cfg)
		if err != nil {
			return err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return err
		}
		store := db.NewOrderStore(gdb)

		router, clients, err := order.BuildRouter(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer clients.Close()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics := order.NewMetrics(reg)

		lock, closeLock, err := openTickLock(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeLock()

		dispatcher := order.NewDispatcher(store, router, cfg, metrics, logger)
		scheduler := order.NewScheduler(store, dispatcher, cfg, lock, metrics, logger)
		svc := order.NewService(store, cfg, logger)

		gin.SetMode(gin.ReleaseMode)
		engine := gin.New()
		engine.Use(gin.Recovery())
		order.RegisterHandlers(engine, svc, cfg, reg, sqlDB.PingContext, logger)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return service.Start(ctx, net.JoinHostPort("", cfg.Port), engine, logger)
		})
		g.Go(func() error {
			scheduler.Start(ctx)
			<-ctx.Done()
			scheduler.GracefulStop()
			return nil
		})

		err = g.Wait()
		logger.Info("payment service stopped", zap.Error(err))
		return err
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <orderId>",
	Short: "verify one paid order now and print the outcome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		gdb, err := openDB(cfg)
		if err != nil {
			return err
		}
		store := db.NewOrderStore(gdb)

		router, clients, err := order.BuildRouter(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer clients.Close()

		// shares the scheduler's lock so a running service and the CLI never race
		lock, closeLock, err := openTickLock(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeLock()

		dispatcher := order.NewDispatcher(store, router, cfg, nil, logger)
		outcome, err := dispatcher.VerifyOnce(ctx, store, lock, args[0])
		if err != nil {
			return err
		}
		cmd.Printf("%s: %s\n", args[0], outcome)
		return nil
	},
}

// openTickLock returns a nil lock when no redis address is configured.
func openTickLock(ctx context.Context, cfg *config.Config, logger *zap.Logger) (order.TickLock, func(), error) {
	if cfg.RedisAddr == "" {
		return nil, func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, err
	}
	logger.Info("using redis tick lock", zap.String("addr", cfg.RedisAddr))
	return order.NewRedisLock(rdb, tickLockKey, order.LockTTL(cfg)), func() { rdb.Close() }, nil
}
