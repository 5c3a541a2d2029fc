package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dgnsrekt/chartmark/internal/analysis"
)

// Notifier posts verdict summaries to an ntfy-style endpoint.
type Notifier struct {
	client        *http.Client
	endpoint      string
	minConfidence float64
}

// New returns nil when endpoint is empty; a nil Notifier ignores verdicts.
func New(client *http.Client, endpoint string, minConfidence float64) *Notifier {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}
	return &Notifier{client: client, endpoint: endpoint, minConfidence: minConfidence}
}

// Verdict sends a one-line summary when the confidence reaches the
// threshold. It reports whether a message was sent.
func (n *Notifier) Verdict(ctx context.Context, canvasID string, v analysis.Verdict) (bool, error) {
	if n == nil || v.Confidence < n.minConfidence {
		return false, nil
	}
	msg := v.Summary()
	if canvasID != "" {
		msg += " canvas=" + canvasID
	}
	if err := Send(ctx, n.client, n.endpoint, msg); err != nil {
		slog.Warn("verdict notification failed", "endpoint", n.endpoint, "error", err)
		return false, err
	}
	return true, nil
}

// Send sends a message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	if strings.TrimSpace(endpoint) == "" {
		return errors.New("ntfy endpoint is required")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
