package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgnsrekt/chartmark/internal/annotate"
	"github.com/dgnsrekt/chartmark/internal/history"
)

// ServerConfig holds configuration for the chartmark service and CLI.
type ServerConfig struct {
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool
	LogLevel         string
	LogFile          string
	HTTPMaxBodyBytes int

	DataDir string

	GeminiAPIKey        string
	GeminiModel         string
	GeminiBaseURL       string
	GeminiTimeoutMS     int
	GeminiRatePerMinute int
	AnalysisProfile     string

	ExportFormat  string
	ExportQuality int
	DefaultWidth  int
	DefaultHeight int
	HitTolerance  float64
	HistoryLimit  int

	CaptureCDPURL    string
	CaptureTimeoutMS int
	CaptureSettleMS  int

	JournalBufferSize int
	JournalMaxSizeMB  int

	NotifyEndpoint      string
	NotifyMinConfidence float64
}

// LoadServer reads configuration from environment variables and an optional
// .env file.
func LoadServer() (*ServerConfig, error) {
	loadDotEnv()

	cfg := &ServerConfig{
		BindAddr:         getEnvOrDefault("CHARTMARK_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:   getEnvListOrDefault("CHARTMARK_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192", "127.0.0.1:8193"}),
		PortAutoFallback: getEnvBoolOrDefault("CHARTMARK_PORT_AUTO_FALLBACK", true),
		LogLevel:         strings.ToLower(getEnvOrDefault("CHARTMARK_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("CHARTMARK_LOG_FILE", "logs/chartmark.log"),
		HTTPMaxBodyBytes: getEnvIntOrDefault("CHARTMARK_HTTP_MAX_BODY_BYTES", 50*1024*1024),

		DataDir: getEnvOrDefault("CHARTMARK_DATA_DIR", "./chartmark_data"),

		GeminiAPIKey:        getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:         getEnvOrDefault("GEMINI_MODEL", ""),
		GeminiBaseURL:       getEnvOrDefault("GEMINI_BASE_URL", ""),
		GeminiTimeoutMS:     getEnvIntOrDefault("GEMINI_TIMEOUT_MS", 60000),
		GeminiRatePerMinute: getEnvIntOrDefault("GEMINI_RATE_PER_MINUTE", 15),
		AnalysisProfile:     getEnvOrDefault("ANALYSIS_PROFILE", ""),

		ExportFormat:  strings.ToLower(getEnvOrDefault("CHARTMARK_EXPORT_FORMAT", "png")),
		ExportQuality: getEnvIntOrDefault("CHARTMARK_EXPORT_QUALITY", annotate.DefaultJPEGQuality),
		DefaultWidth:  getEnvIntOrDefault("CHARTMARK_DEFAULT_WIDTH", 1280),
		DefaultHeight: getEnvIntOrDefault("CHARTMARK_DEFAULT_HEIGHT", 720),
		HitTolerance:  getEnvFloatOrDefault("CHARTMARK_HIT_TOLERANCE", annotate.DefaultHitTolerance),
		HistoryLimit:  getEnvIntOrDefault("CHARTMARK_HISTORY_LIMIT", history.MaxEntries),

		CaptureCDPURL:    getEnvOrDefault("CAPTURE_CDP_URL", ""),
		CaptureTimeoutMS: getEnvIntOrDefault("CAPTURE_TIMEOUT_MS", 30000),
		CaptureSettleMS:  getEnvIntOrDefault("CAPTURE_SETTLE_MS", 2000),

		JournalBufferSize: getEnvIntOrDefault("CHARTMARK_JOURNAL_BUFFER_SIZE", 1000),
		JournalMaxSizeMB:  getEnvIntOrDefault("CHARTMARK_JOURNAL_MAX_SIZE_MB", 50),

		NotifyEndpoint:      getEnvOrDefault("NOTIFY_ENDPOINT", ""),
		NotifyMinConfidence: getEnvFloatOrDefault("NOTIFY_MIN_CONFIDENCE", 75),
	}

	if _, err := annotate.ParseFormat(cfg.ExportFormat); err != nil {
		return nil, fmt.Errorf("CHARTMARK_EXPORT_FORMAT: %w", err)
	}
	if cfg.HistoryLimit < 1 || cfg.HistoryLimit > history.MaxEntries {
		cfg.HistoryLimit = history.MaxEntries
	}
	if cfg.GeminiTimeoutMS < 1000 {
		cfg.GeminiTimeoutMS = 1000
	}
	if cfg.CaptureTimeoutMS < 1000 {
		cfg.CaptureTimeoutMS = 1000
	}
	if cfg.HitTolerance <= annotate.StrokeWidth/2 {
		cfg.HitTolerance = annotate.DefaultHitTolerance
	}
	return cfg, nil
}

func (c *ServerConfig) SnapshotDir() string { return filepath.Join(c.DataDir, "snapshots") }
func (c *ServerConfig) HistoryPath() string { return filepath.Join(c.DataDir, "history.json") }
func (c *ServerConfig) JournalDir() string  { return filepath.Join(c.DataDir, "journal") }

func (c *ServerConfig) GeminiTimeout() time.Duration {
	return time.Duration(c.GeminiTimeoutMS) * time.Millisecond
}

func (c *ServerConfig) CaptureTimeout() time.Duration {
	return time.Duration(c.CaptureTimeoutMS) * time.Millisecond
}

func (c *ServerConfig) CaptureSettle() time.Duration {
	return time.Duration(c.CaptureSettleMS) * time.Millisecond
}
