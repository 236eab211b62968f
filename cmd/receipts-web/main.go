package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/receipts-web/internal/backend"
	"github.com/zombor/receipts-web/internal/receipt"
	"github.com/zombor/receipts-web/internal/upload"
	"github.com/zombor/receipts-web/internal/web"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("receipts-web")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		backendURL     = fs.StringLong("backend-url", backend.DefaultBaseURL, "Receipt processing backend base URL")
		backendTimeout = fs.DurationLong("backend-timeout", backend.DefaultTimeout, "Timeout for each backend request")
		dbPath         = fs.StringLong("db", "receipts-web.db", "Upload session database file path")
		stagingPath    = fs.StringLong("staging", "./staging", "Directory for files waiting to be uploaded")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPTS_WEB"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	slog.Info("Initializing session database...", "path", *dbPath)
	sessions, err := upload.NewBoltStore(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize session database", "error", err)
		os.Exit(1)
	}
	defer sessions.Close()

	slog.Info("Initializing staging storage...", "path", *stagingPath)
	staging, err := upload.NewLocalStorage(*stagingPath)
	if err != nil {
		slog.Error("Failed to initialize staging storage", "error", err)
		os.Exit(1)
	}

	slog.Info("Using receipt backend", "url", *backendURL, "timeout", *backendTimeout)
	client := backend.New(backend.Config{
		BaseURL:    *backendURL,
		Timeout:    *backendTimeout,
		Normalizer: receipt.NewNormalizer(),
	})

	wizard := upload.NewWizard(client, sessions, staging, upload.FitzPreviewer{})

	basicAuth := web.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := web.NewServer(client, wizard, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
}
