package annotate

import (
	"fmt"
	"strings"
)

// Tool is the active authoring mode of a canvas.
type Tool int

const (
	ToolTrend Tool = iota
	ToolRuler
	ToolEraser
)

var toolNames = [...]string{
	ToolTrend:  "trend",
	ToolRuler:  "snr",
	ToolEraser: "eraser",
}

func (t Tool) String() string {
	if t < 0 || int(t) >= len(toolNames) {
		return fmt.Sprintf("tool(%d)", int(t))
	}
	return toolNames[t]
}

// ParseTool accepts the wire names trend, snr and eraser. "ruler" is an
// alias for snr.
func ParseTool(s string) (Tool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trend":
		return ToolTrend, nil
	case "snr", "ruler":
		return ToolRuler, nil
	case "eraser":
		return ToolEraser, nil
	}
	return 0, fmt.Errorf("unknown tool %q", s)
}

func (t Tool) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tool) UnmarshalText(b []byte) error {
	v, err := ParseTool(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Authoring returns the shape kind created by the tool, or false for the
// eraser.
func (t Tool) Authoring() (Kind, bool) {
	switch t {
	case ToolTrend:
		return KindTrend, true
	case ToolRuler:
		return KindRuler, true
	}
	return "", false
}

// ToolMode holds the current tool. It only changes through Select.
type ToolMode struct {
	current Tool
}

// Current returns the active tool. The zero value is ToolTrend.
func (m *ToolMode) Current() Tool { return m.current }

// Select switches the active tool and reports whether it changed.
func (m *ToolMode) Select(t Tool) bool {
	changed := m.current != t
	m.current = t
	return changed
}

func (m *ToolMode) Erasing() bool { return m.current == ToolEraser }
