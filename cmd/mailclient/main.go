package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-client/internal/cache"
	"github.com/brandon/mail-client/internal/config"
	"github.com/brandon/mail-client/internal/email"
	"github.com/brandon/mail-client/internal/mcp"
	"github.com/brandon/mail-client/internal/store"
	"github.com/brandon/mail-client/internal/tools"
)

var (
	version      = "dev"
	showVersion  = flag.Bool("version", false, "Show version information")
	accountsFile = flag.String("accounts", "", "Path to the accounts file (overrides ACCOUNTS_FILE)")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("mail-client version %s\n", version)
		os.Exit(0)
	}

	// stdout carries the protocol
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if *accountsFile != "" {
		cfg.AccountsPath = *accountsFile
	}

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.Info("Starting mail client")

	viewCache, err := cache.NewCache(logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize message view")
	}
	defer viewCache.Close()

	accountStore := store.NewAccountStore(cfg.AccountsPath, logger)
	accounts, err := email.NewAccountManager(accountStore, cache.NewView(viewCache, logger), logger)
	if err != nil {
		logger.WithError(err).WithField("accounts_file", accountStore.Path()).Fatal("Failed to load accounts")
	}

	manager := email.NewManager(cfg, accounts, logger)
	server := mcp.NewServer(tools.NewRegistry(manager, logger), version, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Run(ctx, os.Stdin, os.Stdout)
	}()

	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	case err := <-errChan:
		if err != nil {
			logger.WithError(err).Error("Server error")
		}
		cancel()
	}

	logger.Info("Shutting down mail client")
}
