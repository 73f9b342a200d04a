package main

import (
	"context"
	"fmt"
	stlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-cryptopay/payment/config"
	"go-cryptopay/payment/db"
	"go-cryptopay/utils"
)

var rootCmd = &cobra.Command{
	Use:          "paymentservice",
	Short:        "verify crypto payments for merchant orders",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, verifyCmd)
}

func main() {
	if err := utils.LoadEnv(); err != nil {
		stlog.Fatalln("Error loading .env:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// bootstrap loads the configuration and builds the logger every command needs.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	gdb, err := db.Connect(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.Sync(gdb); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return gdb, nil
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "create or update the orders table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()

		if _, err := openDB(cfg); err != nil {
			return err
		}
		logger.Info("database schema is up to date")
		return nil
	},
}
