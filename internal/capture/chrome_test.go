package capture

import (
	"context"
	"testing"
	"time"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{in: "https://www.tradingview.com/chart/abc/", wantErr: false},
		{in: " http://127.0.0.1:8080/chart ", wantErr: false},
		{in: "", wantErr: true},
		{in: "file:///etc/passwd", wantErr: true},
		{in: "javascript:alert(1)", wantErr: true},
		{in: "https://", wantErr: true},
	}
	for _, tt := range tests {
		_, err := validateURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("validateURL(%q) error = %v; wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

func TestCaptureRejectsBadURLWithoutBrowser(t *testing.T) {
	c := New(Options{})
	if _, err := c.Capture(context.Background(), "ftp://example.com/chart.png"); err == nil {
		t.Fatal("Capture() error = nil; want error")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	c := New(Options{Settle: -time.Second})
	if c.opts.Width != 1280 || c.opts.Height != 720 {
		t.Fatalf("viewport = %dx%d; want 1280x720", c.opts.Width, c.opts.Height)
	}
	if c.opts.Timeout != 30*time.Second || c.opts.Settle != 0 {
		t.Fatalf("timeout = %v settle = %v", c.opts.Timeout, c.opts.Settle)
	}
}
