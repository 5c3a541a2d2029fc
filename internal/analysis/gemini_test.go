package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/dgnsrekt/chartmark/internal/annotate"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func candidateBody(t *testing.T, text string) string {
	t.Helper()
	resp := map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{"text": text}},
				},
			},
		},
	}
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("json.Marshal() failed: %v", err)
	}
	return string(b)
}

func testImage() annotate.StillImage {
	return annotate.StillImage{Seq: 1, MIME: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
}

func TestAnalyzeSendsImageAndSchema(t *testing.T) {
	var gotPath, gotKey string
	var gotReq generateRequest

	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			gotPath = r.URL.Path
			gotKey = r.Header.Get("x-goog-api-key")
			raw, err := io.ReadAll(r.Body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if err := json.Unmarshal(raw, &gotReq); err != nil {
				t.Fatalf("unmarshal request: %v", err)
			}
			return jsonResponse(http.StatusOK, candidateBody(t,
				`{"signal":"buy","entry":"1.0850","tp":"1.0950","sl":"1.0800","reasoning":"OB retest","confidence":82}`)), nil
		}),
	}

	g := NewGeminiClient("k-123", DefaultProfile(), WithHTTPClient(client), WithBaseURL("http://gemini.test/"))
	v, err := g.Analyze(context.Background(), testImage())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if got, want := gotPath, "/v1beta/models/"+DefaultModel+":generateContent"; got != want {
		t.Fatalf("path = %q; want %q", got, want)
	}
	if gotKey != "k-123" {
		t.Fatalf("api key header = %q; want %q", gotKey, "k-123")
	}
	parts := gotReq.Contents[0].Parts
	if len(parts) != 2 || parts[0].InlineData == nil || parts[0].InlineData.MimeType != "image/png" {
		t.Fatalf("parts = %+v; want inline image then prompt", parts)
	}
	if !strings.Contains(parts[1].Text, "SMC (Smart Money Concepts)") {
		t.Fatalf("prompt = %q", parts[1].Text)
	}
	if gotReq.GenerationConfig == nil || gotReq.GenerationConfig.ResponseMimeType != "application/json" {
		t.Fatalf("generationConfig = %+v; want JSON response", gotReq.GenerationConfig)
	}
	if len(gotReq.GenerationConfig.ResponseSchema.Required) != 6 {
		t.Fatalf("schema required = %v", gotReq.GenerationConfig.ResponseSchema.Required)
	}

	if v.Signal != SignalBuy || v.Confidence != 82 || v.Entry != "1.0850" {
		t.Fatalf("Analyze() = %+v", v)
	}
}

func TestAnalyzeWithoutKeyIsUnavailable(t *testing.T) {
	g := NewGeminiClient("", DefaultProfile(), WithHTTPClient(&http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			t.Fatal("unexpected outbound request")
			return nil, nil
		}),
	}))
	if _, err := g.Analyze(context.Background(), testImage()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Analyze() error = %v; want ErrUnavailable", err)
	}
}

func TestAnalyzeFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantMsg string
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{}`, wantErr: ErrRateLimited},
		{name: "server error", status: http.StatusInternalServerError, body: `boom`, wantMsg: "status=500"},
		{name: "no candidates", status: http.StatusOK, body: `{"candidates":[]}`, wantErr: ErrNoVerdict},
		{name: "blocked", status: http.StatusOK, body: `{"promptFeedback":{"blockReason":"SAFETY"}}`, wantErr: ErrNoVerdict},
		{name: "not json", status: http.StatusOK, body: `{"candidates":[{"content":{"parts":[{"text":"hold"}]}}]}`, wantErr: ErrNoVerdict},
		{name: "bad signal", status: http.StatusOK, body: `{"candidates":[{"content":{"parts":[{"text":"{\"signal\":\"HOLD\",\"entry\":\"1\",\"tp\":\"2\",\"sl\":\"0\",\"reasoning\":\"x\",\"confidence\":10}"}]}}]}`, wantErr: ErrNoVerdict},
		{name: "confidence out of range", status: http.StatusOK, body: `{"candidates":[{"content":{"parts":[{"text":"{\"signal\":\"SELL\",\"entry\":\"1\",\"tp\":\"2\",\"sl\":\"0\",\"reasoning\":\"x\",\"confidence\":140}"}]}}]}`, wantErr: ErrNoVerdict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
				return jsonResponse(tt.status, tt.body), nil
			})}
			g := NewGeminiClient("key", DefaultProfile(), WithHTTPClient(client))
			_, err := g.Analyze(context.Background(), testImage())
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Analyze() error = %v; want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("Analyze() error = %q; want to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestAnalyzeAcceptsFencedJSON(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, candidateBody(t,
			"```json\n{\"signal\":\"NEUTRAL\",\"entry\":\"-\",\"tp\":\"-\",\"sl\":\"-\",\"reasoning\":\"range\",\"confidence\":40}\n```")), nil
	})}
	g := NewGeminiClient("key", DefaultProfile(), WithHTTPClient(client))
	v, err := g.Analyze(context.Background(), testImage())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if v.Signal != SignalNeutral {
		t.Fatalf("Signal = %q; want NEUTRAL", v.Signal)
	}
}

func TestChatSendsSystemInstruction(t *testing.T) {
	var gotReq generateRequest
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &gotReq); err != nil {
			t.Fatalf("unmarshal request: %v", err)
		}
		return jsonResponse(http.StatusOK, candidateBody(t, "An order block is ...")), nil
	})}
	g := NewGeminiClient("key", DefaultProfile(), WithHTTPClient(client))

	answer, err := g.Chat(context.Background(), "What is an order block?")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if answer != "An order block is ..." {
		t.Fatalf("Chat() = %q", answer)
	}
	if gotReq.SystemInstruction == nil || !strings.HasPrefix(gotReq.SystemInstruction.Parts[0].Text, "You are Vertex AI") {
		t.Fatalf("systemInstruction = %+v", gotReq.SystemInstruction)
	}
	if gotReq.GenerationConfig != nil {
		t.Fatalf("generationConfig = %+v; want nil for chat", gotReq.GenerationConfig)
	}

	if _, err := g.Chat(context.Background(), "  "); err == nil {
		t.Fatal("Chat(empty) error = nil; want error")
	}
}

func TestLimiterBurst(t *testing.T) {
	tests := []struct {
		perMinute int
		burst     int
	}{
		{0, 1},
		{5, 1},
		{30, 3},
		{600, 5},
	}
	for _, tt := range tests {
		if got := newLimiter(tt.perMinute).Burst(); got != tt.burst {
			t.Fatalf("newLimiter(%d).Burst() = %d; want %d", tt.perMinute, got, tt.burst)
		}
	}
}
