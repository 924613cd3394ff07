package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/omochice/chatlink/internal/client"
	"github.com/omochice/chatlink/internal/config"
	"github.com/omochice/chatlink/internal/logging"
	"github.com/omochice/chatlink/internal/session"
	"github.com/omochice/chatlink/internal/transport/ws"
	"github.com/omochice/chatlink/internal/ui"
)

const loginHint = "Login required. Run with -token and -user-id, or set CHATLINK_TOKEN and CHATLINK_USER_ID."

func main() {
	// Parse command-line flags
	configPath := flag.String("config", config.DefaultPath(), "Path to a TOML config file")
	serverURL := flag.String("server", "", "WebSocket endpoint (overrides config, e.g. ws://localhost:8000/ws)")
	token := flag.String("token", "", "Save this token to the session file")
	userID := flag.Int64("user-id", 0, "Save this user id to the session file")
	logout := flag.Bool("logout", false, "Remove the session file and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		exit(fmt.Errorf("failed to load configuration: %w", err))
	}
	if *serverURL != "" {
		cfg.Client.ServerURL = *serverURL
	}

	// The terminal belongs to the UI, so logs go to a file.
	logger, closer, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Client.LogFile})
	if err != nil {
		exit(err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	sess := session.NewFile(cfg.Client.SessionPath, logger)
	if *logout {
		if err := sess.Clear(); err != nil {
			exit(err)
		}
		fmt.Println("Logged out.")
		return
	}
	if *token != "" || *userID != 0 {
		if *token == "" || *userID == 0 {
			exit(errors.New("-token and -user-id must be given together"))
		}
		if err := sess.Save(session.Session{Token: *token, UserID: *userID}); err != nil {
			exit(err)
		}
	}

	redirect := ui.NewRedirector()
	manager, err := client.New(
		client.Config{
			URL:          cfg.Client.ServerURL,
			Backoff:      client.Backoff{Base: cfg.Client.BaseDelay, Max: cfg.Client.MaxDelay},
			DialTimeout:  cfg.Client.DialTimeout,
			WriteTimeout: cfg.Client.WriteTimeout,
		},
		sess,
		redirect,
		ws.NewDialer(cfg.Client.DialTimeout, cfg.Client.WriteTimeout),
		client.WithLogger(logger),
	)
	if err != nil {
		exit(err)
	}
	defer manager.Teardown()

	if err := manager.Connect(); err != nil {
		manager.Teardown()
		if errors.Is(err, client.ErrUnauthenticated) {
			exit(errors.New(loginHint))
		}
		exit(err)
	}

	self, _ := sess.UserID()
	model := ui.New(manager, self, redirect.C())
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		manager.Teardown()
		exit(err)
	}

	if model.LoginRequired() {
		manager.Teardown()
		exit(errors.New(loginHint))
	}
}

func exit(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
