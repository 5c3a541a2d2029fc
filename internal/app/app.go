// Package app assembles the canvas service from configuration for the
// chartmark binaries.
package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dgnsrekt/chartmark/internal/analysis"
	"github.com/dgnsrekt/chartmark/internal/annotate"
	"github.com/dgnsrekt/chartmark/internal/capture"
	"github.com/dgnsrekt/chartmark/internal/config"
	"github.com/dgnsrekt/chartmark/internal/controller"
	"github.com/dgnsrekt/chartmark/internal/events"
	"github.com/dgnsrekt/chartmark/internal/history"
	"github.com/dgnsrekt/chartmark/internal/journal"
	"github.com/dgnsrekt/chartmark/internal/notify"
	"github.com/dgnsrekt/chartmark/internal/snapshot"
)

// App is a wired service plus the resources it owns.
type App struct {
	Service *controller.Service
	Broker  *events.Broker
	Gemini  *analysis.GeminiClient

	exports  *journal.Writer
	analyses *journal.Writer
}

// New builds the service described by cfg.
func New(cfg *config.ServerConfig) (*App, error) {
	snaps, err := snapshot.NewStore(cfg.SnapshotDir())
	if err != nil {
		return nil, fmt.Errorf("snapshot store: %w", err)
	}
	stateStore, err := history.NewFileStateStore(cfg.HistoryPath())
	if err != nil {
		return nil, err
	}
	recorder := history.NewRecorder(stateStore, snaps, cfg.HistoryLimit)

	profile := analysis.DefaultProfile()
	if strings.TrimSpace(cfg.AnalysisProfile) != "" {
		profile, err = analysis.LoadProfile(cfg.AnalysisProfile)
		if err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(cfg.GeminiModel) != "" {
		profile.Model = strings.TrimSpace(cfg.GeminiModel)
	}

	geminiOpts := []analysis.GeminiOption{
		analysis.WithHTTPClient(&http.Client{Timeout: cfg.GeminiTimeout()}),
		analysis.WithRatePerMinute(cfg.GeminiRatePerMinute),
	}
	if strings.TrimSpace(cfg.GeminiBaseURL) != "" {
		geminiOpts = append(geminiOpts, analysis.WithBaseURL(cfg.GeminiBaseURL))
	}
	gemini := analysis.NewGeminiClient(cfg.GeminiAPIKey, profile, geminiOpts...)
	if !gemini.Configured() {
		slog.Warn("GEMINI_API_KEY not set; analysis and chat will report unavailable")
	}

	format, err := annotate.ParseFormat(cfg.ExportFormat)
	if err != nil {
		return nil, err
	}

	a := &App{
		Broker:   events.NewBroker(),
		Gemini:   gemini,
		exports:  journal.NewWriter(cfg.JournalDir(), "exports", cfg.JournalBufferSize, cfg.JournalMaxSizeMB),
		analyses: journal.NewWriter(cfg.JournalDir(), "analyses", cfg.JournalBufferSize, cfg.JournalMaxSizeMB),
	}

	deps := controller.Deps{
		Snapshots: snaps,
		History:   recorder,
		Analyzer:  gemini,
		Chatter:   gemini,
		Capturer: capture.New(capture.Options{
			CDPURL:  cfg.CaptureCDPURL,
			Width:   cfg.DefaultWidth,
			Height:  cfg.DefaultHeight,
			Timeout: cfg.CaptureTimeout(),
			Settle:  cfg.CaptureSettle(),
		}),
		Broker:   a.Broker,
		Exports:  a.exports,
		Analyses: a.analyses,
	}
	if n := notify.New(&http.Client{Timeout: 10 * time.Second}, cfg.NotifyEndpoint, cfg.NotifyMinConfidence); n != nil {
		deps.Notifier = n
	}

	a.Service = controller.NewService(deps, controller.Options{
		ExportFormat:  format,
		ExportQuality: cfg.ExportQuality,
		DefaultWidth:  cfg.DefaultWidth,
		DefaultHeight: cfg.DefaultHeight,
		HitTolerance:  cfg.HitTolerance,
		Model:         profile.Model,
	})
	return a, nil
}

// Close drains the journals.
func (a *App) Close() error {
	var firstErr error
	for _, w := range []*journal.Writer{a.exports, a.analyses} {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
