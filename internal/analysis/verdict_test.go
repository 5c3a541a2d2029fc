package analysis

import (
	"os"
	"path/filepath"
	"testing"
)

func TestVerdictRiskReward(t *testing.T) {
	tests := []struct {
		name   string
		v      Verdict
		want   string
		wantOK bool
	}{
		{name: "buy", v: Verdict{Entry: "100", TP: "130", SL: "90"}, want: "3", wantOK: true},
		{name: "sell with symbols", v: Verdict{Entry: "$64,200", TP: "$61,000", SL: "$65,800"}, want: "2", wantOK: true},
		{name: "annotated", v: Verdict{Entry: "1.0850 (H4 OB)", TP: "1.0950", SL: "1.0800"}, want: "2", wantOK: true},
		{name: "non numeric", v: Verdict{Entry: "market", TP: "1.2", SL: "1.1"}},
		{name: "zero risk", v: Verdict{Entry: "10", TP: "12", SL: "10"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.v.RiskReward()
			if ok != tt.wantOK {
				t.Fatalf("RiskReward() ok = %v; want %v", ok, tt.wantOK)
			}
			if ok && got.String() != tt.want {
				t.Fatalf("RiskReward() = %s; want %s", got, tt.want)
			}
		})
	}
}

func TestVerdictValidateNormalizesSignal(t *testing.T) {
	v := Verdict{Signal: " sell ", Entry: "1", TP: "0.9", SL: "1.1", Reasoning: "BOS", Confidence: 55}
	if err := v.Validate(); err != nil {
		t.Fatalf("Validate() = %v; want nil", err)
	}
	if v.Signal != SignalSell {
		t.Fatalf("Signal = %q; want SELL", v.Signal)
	}

	bad := Verdict{Signal: "BUY", Entry: "1", TP: "2", SL: "0", Reasoning: "", Confidence: 50}
	if err := bad.Validate(); err == nil {
		t.Fatal("Validate() with empty reasoning = nil; want error")
	}
}

func TestVerdictSummary(t *testing.T) {
	v := Verdict{Signal: SignalBuy, Entry: "1.0850", TP: "1.0950", SL: "1.0800", Confidence: 82.4}
	if got, want := v.Summary(), "BUY 82% entry=1.0850 tp=1.0950 sl=1.0800"; got != want {
		t.Fatalf("Summary() = %q; want %q", got, want)
	}
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	if err := os.WriteFile(path, []byte("model: gemini-2.5-pro\ntemperature: 0.2\n"), 0o644); err != nil {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}
	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}
	if p.Model != "gemini-2.5-pro" {
		t.Fatalf("Model = %q", p.Model)
	}
	if p.Prompt != DefaultProfile().Prompt {
		t.Fatalf("Prompt not defaulted")
	}
	if p.Temperature == nil || *p.Temperature != 0.2 {
		t.Fatalf("Temperature = %v; want 0.2", p.Temperature)
	}

	if err := os.WriteFile(path, []byte("temperature: 3\n"), 0o644); err != nil {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}
	if _, err := LoadProfile(path); err == nil {
		t.Fatal("LoadProfile() with temperature 3 = nil error; want error")
	}
	if _, err := LoadProfile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("LoadProfile(missing) = nil error; want error")
	}
}
