package types

import "time"

// ExportRecord is the journal line written for every canvas export.
type ExportRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	CanvasID   string    `json:"canvas_id"`
	Seq        uint64    `json:"seq"`
	Format     string    `json:"format"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	SizeBytes  int       `json:"size_bytes"`
	ShapeCount int       `json:"shape_count"`
}

// AnalysisRecord is the journal line written for every analysis attempt,
// successful or not.
type AnalysisRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	CanvasID   string    `json:"canvas_id"`
	Seq        uint64    `json:"seq"`
	Model      string    `json:"model,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Signal     string    `json:"signal,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	HistoryID  string    `json:"history_id,omitempty"`
	Error      string    `json:"error,omitempty"`
}
