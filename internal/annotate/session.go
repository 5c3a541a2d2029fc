package annotate

import (
	"log/slog"
	"sync"
)

// ExportSink receives every export in mutation order. Deliver runs while the
// session lock is held and must not call back into the session.
type ExportSink interface {
	Deliver(StillImage)
}

// ExportFunc adapts a function to ExportSink.
type ExportFunc func(StillImage)

func (f ExportFunc) Deliver(img StillImage) { f(img) }

// gesture is the handle of the single shape a pointer drag may mutate.
type gesture struct {
	shapeID string
}

// Result describes the effect of one input event.
type Result struct {
	Applied bool        `json:"applied"`
	Shape   *Shape      `json:"shape,omitempty"`
	Removed string      `json:"removed,omitempty"`
	Export  *StillImage `json:"export,omitempty"`
}

// State is a point-in-time view of a session.
type State struct {
	Tool        Tool    `json:"tool"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Shapes      []Shape `json:"shapes"`
	Drawing     bool    `json:"drawing"`
	OpenShapeID string  `json:"open_shape_id,omitempty"`
	ExportSeq   uint64  `json:"export_seq"`
}

type Option func(*Session)

func WithSink(sink ExportSink) Option {
	return func(s *Session) { s.sink = sink }
}

func WithExporter(e *Exporter) Option {
	return func(s *Session) {
		if e != nil {
			s.exporter = e
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithHitTolerance(px float64) Option {
	return func(s *Session) { s.surface.SetHitTolerance(px) }
}

// Session is one annotation canvas: the shape collection, the active tool,
// the open gesture and the export pipeline. Each method runs to completion
// under the session mutex, so exports are delivered in mutation order.
type Session struct {
	mu       sync.Mutex
	surface  *Surface
	shapes   Collection
	mode     ToolMode
	open     *gesture
	exporter *Exporter
	sink     ExportSink
	seq      uint64
	last     *StillImage
	logger   *slog.Logger
}

func NewSession(surface *Surface, opts ...Option) *Session {
	s := &Session{
		surface:  surface,
		exporter: NewExporter(FormatPNG, 0),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Surface() *Surface { return s.surface }

// SetTool switches the authoring mode. An open gesture is closed without an
// export and its shape keeps its last geometry.
func (s *Session) SetTool(t Tool) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open != nil {
		s.logger.Debug("gesture closed by tool change", "shape_id", s.open.shapeID, "tool", t.String())
		s.open = nil
	}
	return Result{Applied: s.mode.Select(t)}
}

// PointerDown starts an authoring gesture and appends one degenerate shape.
// It is ignored in eraser mode.
func (s *Session) PointerDown(p Point) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind, ok := s.mode.Current().Authoring()
	if !ok {
		return Result{}
	}
	if s.open != nil {
		s.logger.Debug("gesture superseded by pointer down", "shape_id", s.open.shapeID)
	}
	sh := s.shapes.Create(kind, p, float64(s.surface.Width()))
	s.open = &gesture{shapeID: sh.ID}
	return Result{Applied: true, Shape: &sh}
}

// PointerMove updates the open gesture's shape. Without an open gesture it
// is ignored, so finalized shapes are never touched.
func (s *Session) PointerMove(p Point) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open == nil || s.mode.Erasing() {
		return Result{}
	}
	sh, ok := s.shapes.Update(s.open.shapeID, p, float64(s.surface.Width()))
	if !ok {
		s.open = nil
		return Result{}
	}
	return Result{Applied: true, Shape: &sh}
}

// PointerUp finalizes the open gesture and exports once. Repeated calls are
// no-ops.
func (s *Session) PointerUp() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open == nil {
		return Result{}
	}
	id := s.open.shapeID
	s.open = nil
	res := Result{Applied: true}
	if sh, ok := s.shapes.Get(id); ok {
		res.Shape = &sh
	}
	res.Export = s.exportLocked()
	return res
}

// ShapeHit removes the shape in eraser mode and exports. Unknown ids and
// other modes are ignored.
func (s *Session) ShapeHit(id string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eraseLocked(id)
}

// EraseAt resolves p to the topmost shape within the hit tolerance and
// erases it like ShapeHit.
func (s *Session) EraseAt(p Point) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mode.Erasing() {
		return Result{}
	}
	id, ok := s.surface.HitTest(s.shapes.shapes, p)
	if !ok {
		return Result{}
	}
	return s.eraseLocked(id)
}

func (s *Session) eraseLocked(id string) Result {
	if !s.mode.Erasing() {
		return Result{}
	}
	if !s.shapes.Remove(id) {
		return Result{}
	}
	if s.open != nil && s.open.shapeID == id {
		s.open = nil
	}
	return Result{Applied: true, Removed: id, Export: s.exportLocked()}
}

// Clear empties the collection, drops any open gesture and exports once.
func (s *Session) Clear() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.open = nil
	n := s.shapes.Clear()
	s.logger.Debug("canvas cleared", "removed", n)
	return Result{Applied: true, Export: s.exportLocked()}
}

// LatestExport returns the most recent export. Before the first export it
// renders the current composite as sequence 0 without delivering it.
func (s *Session) LatestExport() (StillImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last != nil {
		return *s.last, nil
	}
	return s.exporter.Encode(s.surface.Compose(s.shapes.shapes), 0, s.shapes.Len())
}

// State returns a copy of the session's observable state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Tool:      s.mode.Current(),
		Width:     s.surface.Width(),
		Height:    s.surface.Height(),
		Shapes:    s.shapes.Shapes(),
		Drawing:   s.open != nil,
		ExportSeq: s.seq,
	}
	if s.open != nil {
		st.OpenShapeID = s.open.shapeID
	}
	return st
}

func (s *Session) exportLocked() *StillImage {
	img, err := s.exporter.Encode(s.surface.Compose(s.shapes.shapes), s.seq+1, s.shapes.Len())
	if err != nil {
		s.logger.Error("canvas export failed", "error", err)
		return nil
	}
	s.seq = img.Seq
	s.last = &img
	if s.sink != nil {
		s.sink.Deliver(img)
	}
	out := img
	return &out
}
