package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/docent/internal/api"
	"github.com/kalambet/docent/internal/assistant"
	"github.com/kalambet/docent/internal/config"
	"github.com/kalambet/docent/internal/document"
	"github.com/kalambet/docent/internal/feedback"
	"github.com/kalambet/docent/internal/genai"
	"github.com/kalambet/docent/internal/prompt"
	"github.com/kalambet/docent/internal/session"
	"github.com/kalambet/docent/internal/speech"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the docent server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running docent server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show docent system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(feedbackPath string) string {
	return filepath.Join(filepath.Dir(feedbackPath), "docent.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := parseLogLevel(cfg.Log.Level)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse to start without a readable document: the whole assistant is
	// scoped to it.
	docStore := document.New(cfg.Document.Path)
	info, err := docStore.Load()
	if err != nil {
		return err
	}
	slog.Info("document loaded", "path", info.Path, "pages", info.Pages, "bytes", info.Bytes)

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Feedback.Path)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("docent is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("docent is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Build the per-turn components.
	builder := prompt.NewBuilder(prompt.Policy{
		Subject:       cfg.Document.Subject,
		Refusal:       cfg.Policy.Refusal,
		Greeting:      cfg.Policy.Greeting,
		HistoryWindow: cfg.Policy.HistoryWindow,
	})
	generator := genai.New(cfg.GenAI.APIKey, cfg.GenAI.Model)

	var tts assistant.Synthesizer
	if cfg.Speech.Enabled {
		tts = speech.New()
	} else {
		slog.Info("speech synthesis disabled by config")
	}

	svc := assistant.New(docStore, builder, generator, tts)
	sessions := session.NewManager(session.StyleOptions{
		Language: cfg.Policy.DefaultLanguage,
		Length:   session.Length(cfg.Policy.DefaultLength),
	})
	feedbackLog := feedback.NewLog(cfg.Feedback.Path)

	handler := api.NewHandler(api.Deps{
		Sessions:  sessions,
		Assistant: svc,
		Feedback:  feedbackLog,
		Document:  docStore,
		Token:     cfg.Server.APIToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Sessions:  sessions,
		Assistant: svc,
		Document:  docStore,
		Subject:   cfg.Document.Subject,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "docent listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Feedback.Path)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printWarning("docent does not appear to be running (no PID file)")
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		removePIDFile(pidPath)
		printWarning("stale PID file removed (process %d not found)", pid)
		return nil
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		removePIDFile(pidPath)
		printWarning("stale PID file removed (process %d not running)", pid)
		return nil
	}

	printSuccess("sent shutdown signal to docent (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	fmt.Fprintln(os.Stderr, colorize(colorBold, "docent status"))

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		printStatus("server", "running on port %d", cfg.Server.Port)
	} else {
		printStatus("server", "not running")
	}

	docStore := document.New(cfg.Document.Path)
	if info, err := docStore.Load(); err != nil {
		printStatus("document", "unreadable: %v", err)
	} else {
		printStatus("document", "%s (%d pages, %d bytes of text)", info.Path, info.Pages, info.Bytes)
	}

	rows, err := feedback.NewLog(cfg.Feedback.Path).Rows()
	if err != nil {
		printStatus("feedback", "unreadable: %v", err)
	} else {
		printStatus("feedback", "%d records in %s", len(rows), cfg.Feedback.Path)
	}

	return nil
}
