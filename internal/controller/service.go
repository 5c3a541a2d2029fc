package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/chartmark/internal/analysis"
	"github.com/dgnsrekt/chartmark/internal/annotate"
	"github.com/dgnsrekt/chartmark/internal/events"
	"github.com/dgnsrekt/chartmark/internal/history"
	"github.com/dgnsrekt/chartmark/internal/snapshot"
	"github.com/dgnsrekt/chartmark/internal/types"
	"github.com/google/uuid"
)

const (
	maxSurfaceSide = 8192
	// maxSourceSide caps uploads that are scaled onto an explicit surface size.
	maxSourceSide = 2 * maxSurfaceSide
)

// Capturer screenshots a chart page.
type Capturer interface {
	Capture(ctx context.Context, url string) ([]byte, error)
}

// Journal receives export and analysis records. Write must not block.
type Journal interface {
	Write(record any) error
}

// Notifier forwards confident verdicts.
type Notifier interface {
	Verdict(ctx context.Context, canvasID string, v analysis.Verdict) (bool, error)
}

// Deps are the collaborators of a Service. Only Snapshots and History are
// required.
type Deps struct {
	Snapshots *snapshot.Store
	History   *history.Recorder
	Analyzer  analysis.Analyzer
	Chatter   analysis.Chatter
	Capturer  Capturer
	Broker    *events.Broker
	Exports   Journal
	Analyses  Journal
	Notifier  Notifier
}

// Options tune new canvases.
type Options struct {
	ExportFormat  annotate.Format
	ExportQuality int
	DefaultWidth  int
	DefaultHeight int
	HitTolerance  float64
	Model         string
}

type canvas struct {
	id        string
	source    string
	createdAt time.Time
	session   *annotate.Session
}

// CanvasInfo summarizes a registered canvas.
type CanvasInfo struct {
	ID         string        `json:"id"`
	Source     string        `json:"source,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	Tool       annotate.Tool `json:"tool"`
	ShapeCount int           `json:"shape_count"`
	ExportSeq  uint64        `json:"export_seq"`
}

// CanvasState is the full observable state of a canvas.
type CanvasState struct {
	ID        string    `json:"id"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	annotate.State
}

// AnalysisResult is a recorded verdict for one export.
type AnalysisResult struct {
	CanvasID   string                `json:"canvas_id"`
	Seq        uint64                `json:"seq"`
	Verdict    analysis.Verdict      `json:"verdict"`
	RiskReward string                `json:"risk_reward,omitempty"`
	HistoryID  string                `json:"history_id"`
	Snapshot   snapshot.SnapshotMeta `json:"snapshot"`
	Notified   bool                  `json:"notified"`
}

// Service owns the canvas registry and wires canvases to analysis,
// persistence and event streams.
type Service struct {
	mu       sync.RWMutex
	canvases map[string]*canvas

	deps Deps
	opts Options
}

func NewService(deps Deps, opts Options) *Service {
	if opts.ExportFormat == "" {
		opts.ExportFormat = annotate.FormatPNG
	}
	if opts.DefaultWidth <= 0 {
		opts.DefaultWidth = 1280
	}
	if opts.DefaultHeight <= 0 {
		opts.DefaultHeight = 720
	}
	return &Service{
		canvases: make(map[string]*canvas),
		deps:     deps,
		opts:     opts,
	}
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &types.CodedError{Code: types.CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

func validationError(msg string, cause error) error {
	return &types.CodedError{Code: types.CodeValidation, Message: msg, Cause: cause}
}

// --- Canvas lifecycle ---

// CreateCanvas opens a canvas over the given image. image may be a data URI
// or bare base64; empty gives a blank surface. Zero width/height use the
// image size, or the defaults for a blank surface.
func (s *Service) CreateCanvas(ctx context.Context, image string, width, height int, source string) (CanvasInfo, error) {
	var raw []byte
	if strings.TrimSpace(image) != "" {
		_, data, err := annotate.ParseDataURI(image)
		if err != nil {
			return CanvasInfo{}, validationError("image is not a valid data URI or base64 payload", err)
		}
		raw = data
	}
	return s.createCanvas(raw, width, height, source)
}

// CreateCanvasFromBytes is CreateCanvas for already decoded image bytes.
func (s *Service) CreateCanvasFromBytes(ctx context.Context, data []byte, width, height int, source string) (CanvasInfo, error) {
	if len(data) == 0 {
		return CanvasInfo{}, validationError("image is required", nil)
	}
	return s.createCanvas(data, width, height, source)
}

// CaptureCanvas screenshots url in headless Chrome and opens a canvas on it.
func (s *Service) CaptureCanvas(ctx context.Context, url string, width, height int) (CanvasInfo, error) {
	if err := s.requireNonEmpty(url, "url"); err != nil {
		return CanvasInfo{}, err
	}
	if s.deps.Capturer == nil {
		return CanvasInfo{}, &types.CodedError{Code: types.CodeCaptureFailed, Message: "chart capture is not configured"}
	}
	data, err := s.deps.Capturer.Capture(ctx, strings.TrimSpace(url))
	if err != nil {
		return CanvasInfo{}, &types.CodedError{Code: types.CodeCaptureFailed, Message: "chart capture failed", Cause: err}
	}
	return s.createCanvas(data, width, height, strings.TrimSpace(url))
}

func (s *Service) createCanvas(raw []byte, width, height int, source string) (CanvasInfo, error) {
	if width < 0 || height < 0 || width > maxSurfaceSide || height > maxSurfaceSide {
		return CanvasInfo{}, validationError(fmt.Sprintf("width and height must be within 0..%d", maxSurfaceSide), nil)
	}

	var surface *annotate.Surface
	if len(raw) > 0 {
		limit := maxSourceSide
		if width == 0 || height == 0 {
			limit = maxSurfaceSide
		}
		img, _, err := annotate.DecodeImageLimit(raw, limit)
		if errors.Is(err, annotate.ErrImageTooLarge) {
			if limit == maxSurfaceSide {
				return CanvasInfo{}, validationError(fmt.Sprintf("image larger than %dpx; pass width and height", maxSurfaceSide), err)
			}
			return CanvasInfo{}, validationError(fmt.Sprintf("image larger than %dpx", maxSourceSide), err)
		}
		if err != nil {
			return CanvasInfo{}, validationError("image could not be decoded", err)
		}
		surface = annotate.NewSurface(img, width, height)
	} else {
		if width == 0 {
			width = s.opts.DefaultWidth
		}
		if height == 0 {
			height = s.opts.DefaultHeight
		}
		surface = annotate.NewSurface(nil, width, height)
	}

	c := &canvas{
		id:        uuid.NewString(),
		source:    strings.TrimSpace(source),
		createdAt: time.Now().UTC(),
	}
	c.session = annotate.NewSession(surface,
		annotate.WithExporter(annotate.NewExporter(s.opts.ExportFormat, s.opts.ExportQuality)),
		annotate.WithHitTolerance(s.opts.HitTolerance),
		annotate.WithSink(s.exportSink(c.id)),
		annotate.WithLogger(slog.Default().With("canvas_id", c.id)),
	)

	s.mu.Lock()
	s.canvases[c.id] = c
	s.mu.Unlock()

	slog.Info("canvas created", "canvas_id", c.id, "width", surface.Width(), "height", surface.Height(), "source", c.source)
	return c.info(), nil
}

func (s *Service) ListCanvases(ctx context.Context) ([]CanvasInfo, error) {
	s.mu.RLock()
	out := make([]CanvasInfo, 0, len(s.canvases))
	for _, c := range s.canvases {
		out = append(out, c.info())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Service) GetCanvas(ctx context.Context, id string) (CanvasState, error) {
	c, err := s.canvas(id)
	if err != nil {
		return CanvasState{}, err
	}
	return CanvasState{ID: c.id, Source: c.source, CreatedAt: c.createdAt, State: c.session.State()}, nil
}

// DeleteCanvas drops a canvas. An analysis still in flight for it finishes
// but its result is discarded.
func (s *Service) DeleteCanvas(ctx context.Context, id string) error {
	if err := s.requireNonEmpty(id, "canvas_id"); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	s.mu.Lock()
	_, ok := s.canvases[id]
	delete(s.canvases, id)
	s.mu.Unlock()
	if !ok {
		return canvasNotFound(id)
	}
	if s.deps.Broker != nil {
		s.deps.Broker.CloseCanvas(id, fmt.Sprintf(`{"canvas_id":%q}`, id))
	}
	slog.Info("canvas deleted", "canvas_id", id)
	return nil
}

// --- Input events ---

func (s *Service) SetTool(ctx context.Context, id, tool string) (annotate.Result, error) {
	if err := s.requireNonEmpty(tool, "tool"); err != nil {
		return annotate.Result{}, err
	}
	t, err := annotate.ParseTool(tool)
	if err != nil {
		return annotate.Result{}, validationError("tool must be one of trend, snr, eraser", err)
	}
	c, err := s.canvas(id)
	if err != nil {
		return annotate.Result{}, err
	}
	return c.session.SetTool(t), nil
}

func (s *Service) PointerDown(ctx context.Context, id string, p annotate.Point) (annotate.Result, error) {
	c, err := s.canvas(id)
	if err != nil {
		return annotate.Result{}, err
	}
	return c.session.PointerDown(p), nil
}

func (s *Service) PointerMove(ctx context.Context, id string, p annotate.Point) (annotate.Result, error) {
	c, err := s.canvas(id)
	if err != nil {
		return annotate.Result{}, err
	}
	return c.session.PointerMove(p), nil
}

func (s *Service) PointerUp(ctx context.Context, id string) (annotate.Result, error) {
	c, err := s.canvas(id)
	if err != nil {
		return annotate.Result{}, err
	}
	return c.session.PointerUp(), nil
}

func (s *Service) HitShape(ctx context.Context, id, shapeID string) (annotate.Result, error) {
	if err := s.requireNonEmpty(shapeID, "shape_id"); err != nil {
		return annotate.Result{}, err
	}
	c, err := s.canvas(id)
	if err != nil {
		return annotate.Result{}, err
	}
	return c.session.ShapeHit(strings.TrimSpace(shapeID)), nil
}

func (s *Service) EraseAt(ctx context.Context, id string, p annotate.Point) (annotate.Result, error) {
	c, err := s.canvas(id)
	if err != nil {
		return annotate.Result{}, err
	}
	return c.session.EraseAt(p), nil
}

func (s *Service) Clear(ctx context.Context, id string) (annotate.Result, error) {
	c, err := s.canvas(id)
	if err != nil {
		return annotate.Result{}, err
	}
	return c.session.Clear(), nil
}

// Apply runs one decoded stream command.
func (s *Service) Apply(ctx context.Context, id string, cmd annotate.Command) (annotate.Result, error) {
	c, err := s.canvas(id)
	if err != nil {
		return annotate.Result{}, err
	}
	res, err := c.session.Apply(cmd)
	if err != nil {
		return annotate.Result{}, validationError(err.Error(), nil)
	}
	return res, nil
}

func (s *Service) LatestExport(ctx context.Context, id string) (annotate.StillImage, error) {
	c, err := s.canvas(id)
	if err != nil {
		return annotate.StillImage{}, err
	}
	img, err := c.session.LatestExport()
	if err != nil {
		return annotate.StillImage{}, &types.CodedError{Code: types.CodeStorageFailure, Message: "render export", Cause: err}
	}
	return img, nil
}

// --- Analysis ---

// Analyze sends the canvas's latest export to the analysis collaborator.
// The canvas stays usable while the request is in flight. On success the
// export is stored and prepended to the history.
func (s *Service) Analyze(ctx context.Context, id, notes string) (AnalysisResult, error) {
	c, err := s.canvas(id)
	if err != nil {
		return AnalysisResult{}, err
	}
	if s.deps.Analyzer == nil {
		return AnalysisResult{}, &types.CodedError{Code: types.CodeAnalysisUnavailable, Message: "analysis is not configured"}
	}

	img, err := c.session.LatestExport()
	if err != nil {
		return AnalysisResult{}, &types.CodedError{Code: types.CodeStorageFailure, Message: "render export", Cause: err}
	}

	start := time.Now()
	record := types.AnalysisRecord{Timestamp: start.UTC(), CanvasID: c.id, Seq: img.Seq, Model: s.opts.Model}

	v, err := s.deps.Analyzer.Analyze(ctx, img)
	record.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		record.Error = err.Error()
		s.journal(s.deps.Analyses, record)
		slog.Warn("analysis failed", "canvas_id", c.id, "seq", img.Seq, "error", err)
		if errors.Is(err, analysis.ErrUnavailable) {
			return AnalysisResult{}, &types.CodedError{Code: types.CodeAnalysisUnavailable, Message: "no verdict available", Cause: err}
		}
		return AnalysisResult{}, &types.CodedError{Code: types.CodeAnalysisFailed, Message: "no verdict available", Cause: err}
	}

	if !s.registered(c) {
		record.Error = "canvas closed before verdict arrived"
		s.journal(s.deps.Analyses, record)
		slog.Info("analysis result discarded", "canvas_id", c.id, "seq", img.Seq)
		return AnalysisResult{}, &types.CodedError{Code: types.CodeCanvasNotFound, Message: "canvas closed during analysis; result discarded"}
	}

	meta := snapshot.SnapshotMeta{
		ID:         uuid.NewString(),
		CanvasID:   c.id,
		Seq:        img.Seq,
		Format:     string(img.Format),
		Width:      img.Width,
		Height:     img.Height,
		SizeBytes:  len(img.Data),
		ShapeCount: img.ShapeCount,
		CreatedAt:  time.Now().UTC(),
		Notes:      strings.TrimSpace(notes),
	}
	if err := s.deps.Snapshots.Save(meta, img.Data); err != nil {
		return AnalysisResult{}, &types.CodedError{Code: types.CodeStorageFailure, Message: "save snapshot", Cause: err}
	}
	entry, err := s.deps.History.Record(ctx, c.id, meta.ID, v)
	if err != nil {
		if delErr := s.deps.Snapshots.Delete(meta.ID); delErr != nil {
			slog.Debug("orphan snapshot cleanup failed", "snapshot_id", meta.ID, "error", delErr)
		}
		return AnalysisResult{}, &types.CodedError{Code: types.CodeStorageFailure, Message: "record history", Cause: err}
	}

	out := AnalysisResult{
		CanvasID:  c.id,
		Seq:       img.Seq,
		Verdict:   v,
		HistoryID: entry.ID,
		Snapshot:  meta,
	}
	if rr, ok := v.RiskReward(); ok {
		out.RiskReward = rr.String()
	}
	if s.deps.Notifier != nil {
		sent, err := s.deps.Notifier.Verdict(ctx, c.id, v)
		if err != nil {
			slog.Debug("verdict notification skipped", "canvas_id", c.id, "error", err)
		}
		out.Notified = sent
	}

	record.Signal = string(v.Signal)
	record.Confidence = v.Confidence
	record.HistoryID = entry.ID
	s.journal(s.deps.Analyses, record)
	s.publish(c.id, events.KindAnalysis, out)

	slog.Info("analysis recorded",
		"canvas_id", c.id,
		"seq", img.Seq,
		"signal", v.Signal,
		"confidence", v.Confidence,
		"history_id", entry.ID,
		"duration_ms", record.DurationMS,
	)
	return out, nil
}

// Chat forwards a free-form question to the assistant.
func (s *Service) Chat(ctx context.Context, prompt string) (string, error) {
	if err := s.requireNonEmpty(prompt, "prompt"); err != nil {
		return "", err
	}
	if s.deps.Chatter == nil {
		return "", &types.CodedError{Code: types.CodeAnalysisUnavailable, Message: "assistant is not configured"}
	}
	answer, err := s.deps.Chatter.Chat(ctx, strings.TrimSpace(prompt))
	if err != nil {
		if errors.Is(err, analysis.ErrUnavailable) {
			return "", &types.CodedError{Code: types.CodeAnalysisUnavailable, Message: "assistant is not configured", Cause: err}
		}
		return "", &types.CodedError{Code: types.CodeAnalysisFailed, Message: "assistant request failed", Cause: err}
	}
	return answer, nil
}

// ListSnapshots returns the analysed exports of a canvas, latest export
// first. Snapshots outlive their canvas, so a closed canvas is not an error.
func (s *Service) ListSnapshots(ctx context.Context, canvasID string) ([]snapshot.SnapshotMeta, error) {
	if err := s.requireNonEmpty(canvasID, "canvas_id"); err != nil {
		return nil, err
	}
	return s.deps.Snapshots.ForCanvas(canvasID), nil
}

// --- History ---

func (s *Service) ListHistory(ctx context.Context) ([]history.Entry, error) {
	entries, err := s.deps.History.List(ctx)
	if err != nil {
		return nil, &types.CodedError{Code: types.CodeStorageFailure, Message: "load history", Cause: err}
	}
	return entries, nil
}

func (s *Service) GetHistory(ctx context.Context, id string) (history.Entry, error) {
	if err := s.requireNonEmpty(id, "history_id"); err != nil {
		return history.Entry{}, err
	}
	e, err := s.deps.History.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return history.Entry{}, historyErr(err)
	}
	return e, nil
}

func (s *Service) DeleteHistory(ctx context.Context, id string) error {
	if err := s.requireNonEmpty(id, "history_id"); err != nil {
		return err
	}
	if err := s.deps.History.Delete(ctx, strings.TrimSpace(id)); err != nil {
		return historyErr(err)
	}
	return nil
}

// ReadHistoryImage returns the stored export of a history entry.
func (s *Service) ReadHistoryImage(ctx context.Context, id string) ([]byte, string, error) {
	e, err := s.GetHistory(ctx, id)
	if err != nil {
		return nil, "", err
	}
	data, format, err := s.deps.Snapshots.ReadImage(e.SnapshotID)
	if err != nil {
		return nil, "", &types.CodedError{Code: types.CodeSnapshotNotFound, Message: err.Error()}
	}
	return data, format, nil
}

// --- helpers ---

func (s *Service) canvas(id string) (*canvas, error) {
	if err := s.requireNonEmpty(id, "canvas_id"); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	s.mu.RLock()
	c, ok := s.canvases[id]
	s.mu.RUnlock()
	if !ok {
		return nil, canvasNotFound(id)
	}
	return c, nil
}

func (s *Service) registered(c *canvas) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canvases[c.id] == c
}

func (s *Service) exportSink(canvasID string) annotate.ExportSink {
	return annotate.ExportFunc(func(img annotate.StillImage) {
		s.journal(s.deps.Exports, types.ExportRecord{
			Timestamp:  img.CreatedAt,
			CanvasID:   canvasID,
			Seq:        img.Seq,
			Format:     string(img.Format),
			Width:      img.Width,
			Height:     img.Height,
			SizeBytes:  len(img.Data),
			ShapeCount: img.ShapeCount,
		})
		s.publish(canvasID, events.KindExport, struct {
			CanvasID string `json:"canvas_id"`
			annotate.Info
		}{canvasID, img.Info()})
	})
}

func (s *Service) publish(canvasID, kind string, payload any) {
	if s.deps.Broker == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Debug("event marshal failed", "kind", kind, "error", err)
		return
	}
	if n := s.deps.Broker.Publish(events.Event{Canvas: canvasID, Kind: kind, Payload: string(data)}); n > 0 {
		slog.Debug("event published", "canvas_id", canvasID, "kind", kind, "subscribers", n)
	}
}

func (s *Service) journal(j Journal, record any) {
	if j == nil {
		return
	}
	if err := j.Write(record); err != nil {
		slog.Debug("journal write skipped", "error", err)
	}
}

func (c *canvas) info() CanvasInfo {
	st := c.session.State()
	return CanvasInfo{
		ID:         c.id,
		Source:     c.source,
		CreatedAt:  c.createdAt,
		Width:      st.Width,
		Height:     st.Height,
		Tool:       st.Tool,
		ShapeCount: len(st.Shapes),
		ExportSeq:  st.ExportSeq,
	}
}

func canvasNotFound(id string) error {
	return &types.CodedError{Code: types.CodeCanvasNotFound, Message: "canvas not found: " + id}
}

func historyErr(err error) error {
	if errors.Is(err, history.ErrNotFound) {
		return &types.CodedError{Code: types.CodeHistoryNotFound, Message: err.Error()}
	}
	return &types.CodedError{Code: types.CodeStorageFailure, Message: "history store", Cause: err}
}
