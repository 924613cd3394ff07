package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/omochice/chatlink/internal/auth"
	"github.com/omochice/chatlink/internal/chat"
	"github.com/omochice/chatlink/internal/config"
	"github.com/omochice/chatlink/internal/history"
	"github.com/omochice/chatlink/internal/logging"
	"github.com/omochice/chatlink/internal/transport/ws"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", config.DefaultPath(), "Path to a TOML config file")
	addr := flag.String("addr", "", "Address to listen on (overrides config, e.g. :8000)")
	issueToken := flag.Int64("issue-token", 0, "Print a signed token for this user id and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail("Failed to load configuration", err)
	}
	if *addr != "" {
		cfg.Gateway.Address = *addr
	}
	if err := cfg.ValidateGateway(); err != nil {
		fail("Invalid gateway configuration", err)
	}

	logger, closer, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: "stderr"})
	if err != nil {
		fail("Failed to create logger", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	signer, err := auth.NewSigner(cfg.Gateway.TokenSecret, cfg.Gateway.TokenTTL)
	if err != nil {
		fail("Failed to create token signer", err)
	}

	if *issueToken != 0 {
		token, err := signer.Issue(*issueToken, "chatlink-dev")
		if err != nil {
			fail("Failed to issue token", err)
		}
		fmt.Println(token)
		return
	}

	repo, err := history.NewSQLite(cfg.Gateway.DBPath)
	if err != nil {
		fail("Failed to open message history", err)
	}
	defer repo.Close()

	srv := ws.New(cfg.Gateway.Address, chat.NewHub(logger), signer, repo, repo, logger)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting gateway", "addr", cfg.Gateway.Address, "db", cfg.Gateway.DBPath)
		errChan <- srv.Start()
	}()

	// Wait for either error or shutdown signal
	select {
	case err := <-errChan:
		if err != nil {
			logger.Error("Server error", "error", err)
			srv.Stop()
			os.Exit(1)
		}
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", "signal", sig)
		srv.Stop()
	}

	logger.Info("Gateway stopped")
}

func fail(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
