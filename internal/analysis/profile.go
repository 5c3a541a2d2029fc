package analysis

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultModel = "gemini-3-flash-preview"

	defaultPrompt = "Analyze this trading chart. Use SMC (Smart Money Concepts), SNR (Support & Resistance), " +
		"Fundamental Macro, Alchemist, and STD (Standard Deviation) methods. Provide a direct trading signal " +
		"(BUY/SELL/NEUTRAL) with Entry, TP, and SL. Be extremely concise and professional."

	defaultChatInstruction = "You are Vertex AI, a professional trading assistant. You help users understand " +
		"SMC, SNR, Macro fundamentals, and quantitative trading strategies. Be concise, technical, and professional."
)

// Profile holds the model and prompts sent with every request.
type Profile struct {
	Model                 string   `yaml:"model"`
	Prompt                string   `yaml:"prompt"`
	ChatSystemInstruction string   `yaml:"chat_system_instruction"`
	Temperature           *float64 `yaml:"temperature,omitempty"`
}

// DefaultProfile returns the built-in chart-analysis profile.
func DefaultProfile() Profile {
	return Profile{
		Model:                 DefaultModel,
		Prompt:                defaultPrompt,
		ChatSystemInstruction: defaultChatInstruction,
	}
}

// LoadProfile reads a YAML profile. Missing fields fall back to
// DefaultProfile.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("analysis profile: %w", err)
	}
	p := DefaultProfile()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("analysis profile: %w", err)
	}
	if strings.TrimSpace(p.Model) == "" {
		return Profile{}, fmt.Errorf("analysis profile: model must not be empty")
	}
	if strings.TrimSpace(p.Prompt) == "" {
		return Profile{}, fmt.Errorf("analysis profile: prompt must not be empty")
	}
	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
		return Profile{}, fmt.Errorf("analysis profile: temperature %.2f out of range [0,2]", *p.Temperature)
	}
	return p, nil
}
