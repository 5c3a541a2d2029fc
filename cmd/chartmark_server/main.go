package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgnsrekt/chartmark/internal/api"
	"github.com/dgnsrekt/chartmark/internal/app"
	"github.com/dgnsrekt/chartmark/internal/config"
	"github.com/dgnsrekt/chartmark/internal/netutil"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("failed to load server config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("chartmark_server config loaded",
		"bind_addr", cfg.BindAddr,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
		"http_max_body_bytes", cfg.HTTPMaxBodyBytes,
		"data_dir", cfg.DataDir,
		"export_format", cfg.ExportFormat,
		"history_limit", cfg.HistoryLimit,
		"gemini_configured", cfg.GeminiAPIKey != "",
		"capture_cdp_url", cfg.CaptureCDPURL,
		"notify", cfg.NotifyEndpoint != "",
	)

	binding, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "busy", binding.Busy, "error", err)
		os.Exit(1)
	}
	if binding.Fallback {
		slog.Warn("preferred bind address busy, using fallback", "preferred", cfg.BindAddr, "addr", binding.Addr, "busy", binding.Busy)
	}
	bindAddr := binding.Addr

	a, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to build service", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Debug("journal close failed", "error", err)
		}
	}()

	h := api.NewServer(a.Service, a.Broker, api.WithMaxBodyBytes(int64(cfg.HTTPMaxBodyBytes)))
	srv := &http.Server{Addr: bindAddr, Handler: h}

	go func() {
		slog.Info("chartmark_server listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("chartmark_server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("chartmark_server shutdown failed", "error", err)
	}
	st := a.Broker.Stats()
	slog.Info("chartmark_server stopped", "stream_clients", st.Clients, "published_events", st.Published, "dropped_events", st.Dropped)
}

// setupLogger sends text logs to stdout and to a rotating file. Unknown
// levels fall back to info.
func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	var slogLevel slog.Level
	if err := slogLevel.UnmarshalText([]byte(level)); err != nil {
		slogLevel = slog.LevelInfo
	}

	rotating := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}
	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, rotating), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h).With("service", "chartmark_server"))
	return nil
}
