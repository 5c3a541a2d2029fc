package analysis

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dgnsrekt/chartmark/internal/annotate"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Signal is the directional call of a verdict.
type Signal string

const (
	SignalBuy     Signal = "BUY"
	SignalSell    Signal = "SELL"
	SignalNeutral Signal = "NEUTRAL"
)

// Verdict is the structured answer of the analysis collaborator. Price
// levels are kept as the model wrote them.
type Verdict struct {
	Signal     Signal  `json:"signal" yaml:"signal" validate:"required,oneof=BUY SELL NEUTRAL"`
	Entry      string  `json:"entry" yaml:"entry" validate:"required"`
	TP         string  `json:"tp" yaml:"tp" validate:"required"`
	SL         string  `json:"sl" yaml:"sl" validate:"required"`
	Reasoning  string  `json:"reasoning" yaml:"reasoning" validate:"required"`
	Confidence float64 `json:"confidence" yaml:"confidence" validate:"gte=0,lte=100"`
}

// Analyzer turns one exported still image into a verdict.
type Analyzer interface {
	Analyze(ctx context.Context, img annotate.StillImage) (Verdict, error)
}

// Chatter answers free-form questions about trading methods.
type Chatter interface {
	Chat(ctx context.Context, prompt string) (string, error)
}

var validate = validator.New()

// Validate normalizes the signal case and checks every field.
func (v *Verdict) Validate() error {
	v.Signal = Signal(strings.ToUpper(strings.TrimSpace(string(v.Signal))))
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid verdict: %w", err)
	}
	return nil
}

var levelRe = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?`)

// ParseLevel extracts the first number from a price level such as
// "$64,250.5" or "1.0850 (H4 OB)".
func ParseLevel(s string) (decimal.Decimal, bool) {
	m := levelRe.FindString(s)
	if m == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// RiskReward returns reward/risk from the entry, take-profit and stop-loss
// levels, rounded to two places. It reports false when a level is not
// numeric or the stop equals the entry.
func (v Verdict) RiskReward() (decimal.Decimal, bool) {
	entry, ok1 := ParseLevel(v.Entry)
	tp, ok2 := ParseLevel(v.TP)
	sl, ok3 := ParseLevel(v.SL)
	if !ok1 || !ok2 || !ok3 {
		return decimal.Zero, false
	}
	risk := entry.Sub(sl).Abs()
	if risk.IsZero() {
		return decimal.Zero, false
	}
	return tp.Sub(entry).Abs().Div(risk).Round(2), true
}

// Summary is the one-line form used by notifications and the CLI.
func (v Verdict) Summary() string {
	return fmt.Sprintf("%s %.0f%% entry=%s tp=%s sl=%s", v.Signal, v.Confidence, v.Entry, v.TP, v.SL)
}
