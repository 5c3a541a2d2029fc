package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"strings"
	"testing"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(old) })
	return &buf
}

func TestRequestLoggerLevelsAndCanvas(t *testing.T) {
	h := NewServer(&stubService{}, nil)

	tests := []struct {
		method, path, body string
		want               []string
	}{
		{http.MethodGet, "/health", "", []string{"level=DEBUG", "status=200"}},
		{http.MethodPost, "/api/v1/canvases/c1/pointer/down", `{"x":1,"y":2}`, []string{"level=INFO", "canvas_id=c1"}},
		{http.MethodGet, "/api/v1/canvases/missing", "", []string{"level=WARN", "status=404", "canvas_id=missing"}},
		{http.MethodPost, "/api/v1/canvases/c1/analyze", `{}`, []string{"level=ERROR", "status=502"}},
	}
	for _, tt := range tests {
		buf := captureLogs(t)
		do(t, h, tt.method, tt.path, tt.body)
		line := buf.String()
		for _, w := range tt.want {
			if !strings.Contains(line, w) {
				t.Fatalf("%s %s log = %q; missing %q", tt.method, tt.path, line, w)
			}
		}
	}
}
