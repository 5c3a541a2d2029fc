package annotate

import (
	"fmt"
	"strings"
)

// Op names a gesture command on the wire.
type Op string

const (
	OpTool  Op = "tool"
	OpDown  Op = "down"
	OpMove  Op = "move"
	OpUp    Op = "up"
	OpHit   Op = "hit"
	OpErase Op = "erase"
	OpClear Op = "clear"
)

// Command is one input event as carried by the stream socket and render
// scripts.
type Command struct {
	Op      Op      `json:"op" yaml:"op"`
	Tool    string  `json:"tool,omitempty" yaml:"tool,omitempty"`
	X       float64 `json:"x,omitempty" yaml:"x,omitempty"`
	Y       float64 `json:"y,omitempty" yaml:"y,omitempty"`
	ShapeID string  `json:"shape_id,omitempty" yaml:"shape_id,omitempty"`
}

// Apply dispatches cmd. The only errors are malformed commands; ignored
// events return a zero Result and nil.
func (s *Session) Apply(cmd Command) (Result, error) {
	p := Point{X: cmd.X, Y: cmd.Y}
	switch Op(strings.ToLower(string(cmd.Op))) {
	case OpTool:
		t, err := ParseTool(cmd.Tool)
		if err != nil {
			return Result{}, err
		}
		return s.SetTool(t), nil
	case OpDown:
		return s.PointerDown(p), nil
	case OpMove:
		return s.PointerMove(p), nil
	case OpUp:
		return s.PointerUp(), nil
	case OpHit:
		if strings.TrimSpace(cmd.ShapeID) == "" {
			return Result{}, fmt.Errorf("shape_id is required for hit")
		}
		return s.ShapeHit(strings.TrimSpace(cmd.ShapeID)), nil
	case OpErase:
		return s.EraseAt(p), nil
	case OpClear:
		return s.Clear(), nil
	}
	return Result{}, fmt.Errorf("unknown op %q", cmd.Op)
}
