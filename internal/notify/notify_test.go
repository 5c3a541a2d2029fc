package notify

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/dgnsrekt/chartmark/internal/analysis"
)

const testMessage = "BUY 82% entry=1.0850 tp=1.0950 sl=1.0800"

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestSendPostsMessage(t *testing.T) {
	ctx := context.Background()

	var receivedMethod string
	var receivedPath string
	var receivedBody string
	var receivedContentType string

	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			receivedMethod = r.Method
			receivedPath = r.URL.Path
			receivedContentType = r.Header.Get("Content-Type")
			rawBody, err := io.ReadAll(r.Body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			receivedBody = string(rawBody)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader("ok")),
				Header:     make(http.Header),
			}, nil
		}),
	}

	if err := Send(ctx, client, "http://example.com/notifications", testMessage); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if got, want := receivedMethod, http.MethodPost; got != want {
		t.Fatalf("method = %q; want %q", got, want)
	}
	if got, want := receivedPath, "/notifications"; got != want {
		t.Fatalf("path = %q; want %q", got, want)
	}
	if got, want := receivedContentType, "text/plain"; got != want {
		t.Fatalf("content-type = %q; want %q", got, want)
	}
	if got, want := receivedBody, testMessage; got != want {
		t.Fatalf("body = %q; want %q", got, want)
	}
}

func TestSendReturnsErrorForServerError(t *testing.T) {
	ctx := context.Background()

	client := &http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusInternalServerError,
				Body:       io.NopCloser(strings.NewReader("server failure")),
				Header:     make(http.Header),
			}, nil
		}),
	}

	err := Send(ctx, client, "http://example.com/notifications", testMessage)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "ntfy notification failed") {
		t.Fatalf("error = %q; want to contain %q", err, "ntfy notification failed")
	}
}

func TestSendDisallowsMissingEndpoint(t *testing.T) {
	ctx := context.Background()
	err := Send(ctx, http.DefaultClient, "", testMessage)
	if err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}

func TestNotifierVerdictThreshold(t *testing.T) {
	ctx := context.Background()

	var bodies []string
	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			raw, _ := io.ReadAll(r.Body)
			bodies = append(bodies, string(raw))
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader("ok")),
				Header:     make(http.Header),
			}, nil
		}),
	}
	n := New(client, "http://example.com/signals", 75)

	low := analysis.Verdict{Signal: analysis.SignalSell, Entry: "1", TP: "0.9", SL: "1.1", Confidence: 60}
	if sent, err := n.Verdict(ctx, "c1", low); sent || err != nil {
		t.Fatalf("Verdict(low) = %v, %v; want false, nil", sent, err)
	}

	high := analysis.Verdict{Signal: analysis.SignalBuy, Entry: "1.0850", TP: "1.0950", SL: "1.0800", Confidence: 82}
	sent, err := n.Verdict(ctx, "c1", high)
	if err != nil || !sent {
		t.Fatalf("Verdict(high) = %v, %v; want true, nil", sent, err)
	}
	if len(bodies) != 1 {
		t.Fatalf("requests = %d; want 1", len(bodies))
	}
	if got, want := bodies[0], testMessage+" canvas=c1"; got != want {
		t.Fatalf("body = %q; want %q", got, want)
	}
}

func TestNilNotifierIgnoresVerdicts(t *testing.T) {
	n := New(nil, "  ", 0)
	if n != nil {
		t.Fatalf("New() with empty endpoint = %v; want nil", n)
	}
	if sent, err := n.Verdict(context.Background(), "c", analysis.Verdict{Confidence: 100}); sent || err != nil {
		t.Fatalf("nil Verdict() = %v, %v; want false, nil", sent, err)
	}
}
