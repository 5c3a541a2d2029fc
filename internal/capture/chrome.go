package capture

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Options configures headless chart screenshots.
type Options struct {
	// CDPURL attaches to a running browser; empty launches a headless one.
	CDPURL  string
	Width   int
	Height  int
	Timeout time.Duration
	// Settle is the wait after navigation so charts finish drawing.
	Settle time.Duration
}

// Capturer screenshots chart pages through Chrome DevTools.
type Capturer struct {
	opts Options
}

func New(opts Options) *Capturer {
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 720
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	}
	return &Capturer{opts: opts}
}

// Capture navigates to rawURL and returns a PNG of the viewport.
func (c *Capturer) Capture(ctx context.Context, rawURL string) ([]byte, error) {
	target, err := validateURL(rawURL)
	if err != nil {
		return nil, err
	}

	allocCtx, allocCancel := c.allocator(ctx)
	defer allocCancel()

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()

	runCtx, cancel := context.WithTimeout(tabCtx, c.opts.Timeout)
	defer cancel()

	start := time.Now()
	var buf []byte
	err = chromedp.Run(runCtx,
		chromedp.EmulateViewport(int64(c.opts.Width), int64(c.opts.Height)),
		chromedp.Navigate(target),
		chromedp.Sleep(c.opts.Settle),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, err = page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", target, err)
	}
	slog.Info("chart captured",
		"url", target,
		"bytes", len(buf),
		"remote", c.opts.CDPURL != "",
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return buf, nil
}

func (c *Capturer) allocator(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.CDPURL != "" {
		return chromedp.NewRemoteAllocator(ctx, c.opts.CDPURL)
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(c.opts.Width, c.opts.Height),
		chromedp.Flag("hide-scrollbars", true),
	)
	return chromedp.NewExecAllocator(ctx, opts...)
}

func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url host is required")
	}
	return u.String(), nil
}
