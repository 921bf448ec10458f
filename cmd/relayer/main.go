package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/scroll-tech/cloak-fast-withdraw/internal/chain"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/config"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/db"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/events"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/handlers"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/repository"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/router"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/services"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML configuration file")
	flag.Parse()

	logger := logrus.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Fatal("Invalid log level")
	}
	logger.SetLevel(level)

	gdb, err := db.Open(&cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open database")
	}

	withdrawalRepo := repository.NewWithdrawalRepository(gdb)
	messageRepo := repository.NewMessageRepository(gdb)
	transactionRepo := repository.NewTransactionRepository(gdb)
	stateRepo := repository.NewIndexerStateRepository(gdb)

	gateway := common.HexToAddress(cfg.Contracts.ValidiumERC20Gateway)
	vault := common.HexToAddress(cfg.Contracts.HostFastWithdrawVault)

	validiumClient, err := chain.DialValidium(cfg.Endpoints.Validium, gateway)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect validium endpoint")
	}

	hostClient, err := chain.DialHost(cfg.Endpoints.Host)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect host endpoint")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	hostChainID, err := hostClient.ChainID(ctx)
	cancel()
	if err != nil {
		logger.WithError(err).Fatal("Failed to query host chain id")
	}
	if hostChainID.Int64() != cfg.Contracts.HostChainID {
		logger.WithFields(logrus.Fields{
			"configured": cfg.Contracts.HostChainID,
			"reported":   hostChainID.Int64(),
		}).Fatal("Host chain id mismatch")
	}

	permitSigner, err := chain.NewPermitSigner(cfg.Signers.PermitPrivateKey, cfg.Contracts.HostChainID, vault)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize permit signer")
	}

	txSigner, err := chain.NewTxSigner(cfg.Signers.HostPrivateKey, hostChainID, vault)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize transaction signer")
	}

	publisher, err := events.Connect(cfg.NATS.URL, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect NATS")
	}
	defer publisher.Close()

	indexer := services.NewIndexerService(validiumClient, withdrawalRepo, stateRepo, cfg, logger)
	withdrawals := services.NewWithdrawalService(validiumClient, permitSigner, withdrawalRepo, publisher, cfg, logger)
	messages := services.NewMessageService(hostClient, txSigner, messageRepo, publisher, cfg, logger)
	transactions := services.NewTransactionService(hostClient, transactionRepo, messageRepo, messages, publisher, cfg, logger)

	indexer.Start()
	withdrawals.Start()
	messages.Start()
	transactions.Start()

	inspection := handlers.NewInspectionHandler(withdrawalRepo, messageRepo, transactionRepo, logger)
	engine := router.Setup(cfg, inspection, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: engine,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.WithField("signal", sig.String()).Info("Shutting down")

	indexer.Stop()
	withdrawals.Stop()
	messages.Stop()
	transactions.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
	}
	logger.Info("Shutdown complete")
}
