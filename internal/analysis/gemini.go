package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgnsrekt/chartmark/internal/annotate"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	maxErrorBody = 512
)

var (
	// ErrUnavailable means no credential is configured.
	ErrUnavailable = errors.New("analysis collaborator not configured")
	// ErrRateLimited is returned for HTTP 429 responses.
	ErrRateLimited = errors.New("analysis collaborator rate limited")
	// ErrNoVerdict means the model answered without a usable verdict.
	ErrNoVerdict = errors.New("no verdict available")
)

// GeminiClient calls the Gemini generateContent REST endpoint.
type GeminiClient struct {
	apiKey  string
	baseURL string
	profile Profile
	client  *http.Client
	limiter *rate.Limiter
}

type GeminiOption func(*GeminiClient)

func WithHTTPClient(c *http.Client) GeminiOption {
	return func(g *GeminiClient) {
		if c != nil {
			g.client = c
		}
	}
}

func WithBaseURL(u string) GeminiOption {
	return func(g *GeminiClient) {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			g.baseURL = u
		}
	}
}

// WithRatePerMinute caps outbound requests. Zero or less disables the cap.
func WithRatePerMinute(perMinute int) GeminiOption {
	return func(g *GeminiClient) {
		g.limiter = newLimiter(perMinute)
	}
}

func NewGeminiClient(apiKey string, profile Profile, opts ...GeminiOption) *GeminiClient {
	g := &GeminiClient{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: DefaultBaseURL,
		profile: profile,
		client:  &http.Client{Timeout: 60 * time.Second},
		limiter: newLimiter(0),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	if burst > 5 {
		burst = 5
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)
}

func (g *GeminiClient) Model() string { return g.profile.Model }

// Configured reports whether a credential is present.
func (g *GeminiClient) Configured() bool { return g.apiKey != "" }

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiSchema struct {
	Type       string                  `json:"type"`
	Enum       []string                `json:"enum,omitempty"`
	Properties map[string]geminiSchema `json:"properties,omitempty"`
	Required   []string                `json:"required,omitempty"`
}

type generationConfig struct {
	ResponseMimeType string        `json:"responseMimeType,omitempty"`
	ResponseSchema   *geminiSchema `json:"responseSchema,omitempty"`
	Temperature      *float64      `json:"temperature,omitempty"`
}

type generateRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

var verdictSchema = &geminiSchema{
	Type: "OBJECT",
	Properties: map[string]geminiSchema{
		"signal":     {Type: "STRING", Enum: []string{string(SignalBuy), string(SignalSell), string(SignalNeutral)}},
		"entry":      {Type: "STRING"},
		"tp":         {Type: "STRING"},
		"sl":         {Type: "STRING"},
		"reasoning":  {Type: "STRING"},
		"confidence": {Type: "NUMBER"},
	},
	Required: []string{"signal", "entry", "tp", "sl", "reasoning", "confidence"},
}

// Analyze sends the image with the profile prompt and decodes the JSON
// verdict.
func (g *GeminiClient) Analyze(ctx context.Context, img annotate.StillImage) (Verdict, error) {
	if len(img.Data) == 0 {
		return Verdict{}, fmt.Errorf("analyze: empty image")
	}
	mime := img.MIME
	if mime == "" {
		mime = "image/png"
	}
	req := generateRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{InlineData: &geminiInlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(img.Data)}},
				{Text: g.profile.Prompt},
			},
		}},
		GenerationConfig: &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   verdictSchema,
			Temperature:      g.profile.Temperature,
		},
	}

	text, err := g.generate(ctx, req)
	if err != nil {
		return Verdict{}, err
	}

	var v Verdict
	if err := json.Unmarshal([]byte(stripFence(text)), &v); err != nil {
		return Verdict{}, fmt.Errorf("%w: decode verdict: %v", ErrNoVerdict, err)
	}
	if err := v.Validate(); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrNoVerdict, err)
	}
	return v, nil
}

// Chat answers a free-form prompt under the profile's system instruction.
func (g *GeminiClient) Chat(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("chat: prompt is required")
	}
	req := generateRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	if g.profile.ChatSystemInstruction != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: g.profile.ChatSystemInstruction}}}
	}
	if g.profile.Temperature != nil {
		req.GenerationConfig = &generationConfig{Temperature: g.profile.Temperature}
	}
	return g.generate(ctx, req)
}

func (g *GeminiClient) generate(ctx context.Context, body generateRequest) (string, error) {
	if !g.Configured() {
		return "", ErrUnavailable
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := g.baseURL + "/v1beta/models/" + url.PathEscape(g.profile.Model) + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini read body: %w", err)
	}
	slog.Debug("gemini response",
		"model", g.profile.Model,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(raw)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return "", fmt.Errorf("gemini request failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(msg))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("gemini decode response: %w", err)
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked: %s", ErrNoVerdict, out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("%w: empty candidates", ErrNoVerdict)
	}
	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: empty response text", ErrNoVerdict)
	}
	return text, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
