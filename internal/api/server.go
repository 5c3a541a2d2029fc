package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/chartmark/internal/annotate"
	"github.com/dgnsrekt/chartmark/internal/controller"
	"github.com/dgnsrekt/chartmark/internal/events"
	"github.com/dgnsrekt/chartmark/internal/history"
	"github.com/dgnsrekt/chartmark/internal/snapshot"
	"github.com/dgnsrekt/chartmark/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Service interface {
	CreateCanvas(ctx context.Context, image string, width, height int, source string) (controller.CanvasInfo, error)
	CaptureCanvas(ctx context.Context, url string, width, height int) (controller.CanvasInfo, error)
	ListCanvases(ctx context.Context) ([]controller.CanvasInfo, error)
	GetCanvas(ctx context.Context, id string) (controller.CanvasState, error)
	DeleteCanvas(ctx context.Context, id string) error
	SetTool(ctx context.Context, id, tool string) (annotate.Result, error)
	PointerDown(ctx context.Context, id string, p annotate.Point) (annotate.Result, error)
	PointerMove(ctx context.Context, id string, p annotate.Point) (annotate.Result, error)
	PointerUp(ctx context.Context, id string) (annotate.Result, error)
	HitShape(ctx context.Context, id, shapeID string) (annotate.Result, error)
	EraseAt(ctx context.Context, id string, p annotate.Point) (annotate.Result, error)
	Clear(ctx context.Context, id string) (annotate.Result, error)
	Apply(ctx context.Context, id string, cmd annotate.Command) (annotate.Result, error)
	LatestExport(ctx context.Context, id string) (annotate.StillImage, error)
	Analyze(ctx context.Context, id, notes string) (controller.AnalysisResult, error)
	Chat(ctx context.Context, prompt string) (string, error)
	ListSnapshots(ctx context.Context, canvasID string) ([]snapshot.SnapshotMeta, error)
	ListHistory(ctx context.Context) ([]history.Entry, error)
	GetHistory(ctx context.Context, id string) (history.Entry, error)
	DeleteHistory(ctx context.Context, id string) error
	ReadHistoryImage(ctx context.Context, id string) ([]byte, string, error)
}

type canvasIDInput struct {
	CanvasID string `path:"canvas_id"`
}

type statusOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// DefaultMaxBodyBytes bounds request bodies that carry chart images.
const DefaultMaxBodyBytes int64 = 50 * 1024 * 1024

type serverOptions struct {
	maxBodyBytes int64
}

// ServerOption tunes NewServer.
type ServerOption func(*serverOptions)

// WithMaxBodyBytes sets the body limit for image uploads. Non-positive
// values keep DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) ServerOption {
	return func(o *serverOptions) {
		if n > 0 {
			o.maxBodyBytes = n
		}
	}
}

// NewServer mounts the REST API, the docs page and the canvas event streams.
// broker may be nil, in which case the SSE route is not mounted.
func NewServer(svc Service, broker *events.Broker, opts ...ServerOption) http.Handler {
	o := serverOptions{maxBodyBytes: DefaultMaxBodyBytes}
	for _, opt := range opts {
		opt(&o)
	}

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("chartmark API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	if broker != nil {
		router.Get("/api/v1/canvases/{canvas_id}/events", events.SSEHandler(broker, func(r *http.Request) string {
			return chi.URLParam(r, "canvas_id")
		}))
	}
	router.Get("/api/v1/canvases/{canvas_id}/stream", streamHandler(svc))

	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			out := &statusOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	registerCanvasHandlers(api, svc, o.maxBodyBytes)
	registerAnalysisHandlers(api, svc)
	registerHistoryHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *types.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case types.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case types.CodeCanvasNotFound, types.CodeSnapshotNotFound, types.CodeHistoryNotFound:
			return huma.Error404NotFound(coded.Message)
		case types.CodeAnalysisUnavailable, types.CodeAnalysisFailed, types.CodeCaptureFailed:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}

func imageResponses(description string) map[string]*huma.Response {
	return map[string]*huma.Response{
		"200": {
			Description: description,
			Content: map[string]*huma.MediaType{
				"image/png":  {Schema: &huma.Schema{Type: "string", Format: "binary"}},
				"image/jpeg": {Schema: &huma.Schema{Type: "string", Format: "binary"}},
			},
		},
	}
}
