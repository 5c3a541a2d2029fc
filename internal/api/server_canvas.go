package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/chartmark/internal/annotate"
	"github.com/dgnsrekt/chartmark/internal/controller"
)

type pointInput struct {
	CanvasID string `path:"canvas_id"`
	Body     struct {
		X float64 `json:"x" doc:"Horizontal position in surface pixels"`
		Y float64 `json:"y" doc:"Vertical position in surface pixels"`
	}
}

type resultOutput struct {
	Body struct {
		CanvasID string          `json:"canvas_id"`
		Result   annotate.Result `json:"result"`
	}
}

func newResultOutput(canvasID string, res annotate.Result) *resultOutput {
	out := &resultOutput{}
	out.Body.CanvasID = canvasID
	out.Body.Result = res
	return out
}

func registerCanvasHandlers(api huma.API, svc Service, maxBodyBytes int64) {
	type canvasOutput struct {
		Body controller.CanvasInfo
	}
	huma.Register(api, huma.Operation{OperationID: "create-canvas", Method: http.MethodPost, Path: "/api/v1/canvases", Summary: "Open a canvas over a chart image", Tags: []string{"Canvases"}, MaxBodyBytes: maxBodyBytes},
		func(ctx context.Context, input *struct {
			Body struct {
				Image  string `json:"image,omitempty" doc:"Chart image as a data URI or bare base64. Omit for a blank surface."`
				Width  int    `json:"width,omitempty" doc:"Surface width in pixels. 0 uses the image width."`
				Height int    `json:"height,omitempty" doc:"Surface height in pixels. 0 uses the image height."`
				Source string `json:"source,omitempty" doc:"Free-form origin label"`
			}
		}) (*canvasOutput, error) {
			info, err := svc.CreateCanvas(ctx, input.Body.Image, input.Body.Width, input.Body.Height, input.Body.Source)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &canvasOutput{}
			out.Body = info
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "capture-canvas", Method: http.MethodPost, Path: "/api/v1/canvases/capture", Summary: "Screenshot a chart page and open a canvas on it", Tags: []string{"Canvases"}},
		func(ctx context.Context, input *struct {
			Body struct {
				URL    string `json:"url" doc:"http(s) URL of the chart page"`
				Width  int    `json:"width,omitempty"`
				Height int    `json:"height,omitempty"`
			}
		}) (*canvasOutput, error) {
			info, err := svc.CaptureCanvas(ctx, input.Body.URL, input.Body.Width, input.Body.Height)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &canvasOutput{}
			out.Body = info
			return out, nil
		})

	type listCanvasesOutput struct {
		Body struct {
			Canvases []controller.CanvasInfo `json:"canvases"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-canvases", Method: http.MethodGet, Path: "/api/v1/canvases", Summary: "List open canvases", Tags: []string{"Canvases"}},
		func(ctx context.Context, input *struct{}) (*listCanvasesOutput, error) {
			list, err := svc.ListCanvases(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listCanvasesOutput{}
			out.Body.Canvases = list
			if out.Body.Canvases == nil {
				out.Body.Canvases = []controller.CanvasInfo{}
			}
			return out, nil
		})

	type canvasStateOutput struct {
		Body controller.CanvasState
	}
	huma.Register(api, huma.Operation{OperationID: "get-canvas", Method: http.MethodGet, Path: "/api/v1/canvases/{canvas_id}", Summary: "Get canvas state", Tags: []string{"Canvases"}},
		func(ctx context.Context, input *canvasIDInput) (*canvasStateOutput, error) {
			st, err := svc.GetCanvas(ctx, input.CanvasID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &canvasStateOutput{}
			out.Body = st
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "delete-canvas", Method: http.MethodDelete, Path: "/api/v1/canvases/{canvas_id}", Summary: "Close a canvas", Tags: []string{"Canvases"}},
		func(ctx context.Context, input *canvasIDInput) (*statusOutput, error) {
			if err := svc.DeleteCanvas(ctx, input.CanvasID); err != nil {
				return nil, mapErr(err)
			}
			out := &statusOutput{}
			out.Body.Status = "deleted"
			return out, nil
		})

	// --- Tool and pointer events ---

	huma.Register(api, huma.Operation{OperationID: "set-tool", Method: http.MethodPut, Path: "/api/v1/canvases/{canvas_id}/tool", Summary: "Select the active tool", Description: "Tool is one of \"trend\", \"snr\" or \"eraser\". An open gesture is closed without an export.", Tags: []string{"Input"}},
		func(ctx context.Context, input *struct {
			CanvasID string `path:"canvas_id"`
			Body     struct {
				Tool string `json:"tool" enum:"trend,snr,ruler,eraser"`
			}
		}) (*resultOutput, error) {
			res, err := svc.SetTool(ctx, input.CanvasID, input.Body.Tool)
			if err != nil {
				return nil, mapErr(err)
			}
			return newResultOutput(input.CanvasID, res), nil
		})

	huma.Register(api, huma.Operation{OperationID: "pointer-down", Method: http.MethodPost, Path: "/api/v1/canvases/{canvas_id}/pointer/down", Summary: "Start a gesture", Tags: []string{"Input"}},
		func(ctx context.Context, input *pointInput) (*resultOutput, error) {
			res, err := svc.PointerDown(ctx, input.CanvasID, annotate.Point{X: input.Body.X, Y: input.Body.Y})
			if err != nil {
				return nil, mapErr(err)
			}
			return newResultOutput(input.CanvasID, res), nil
		})

	huma.Register(api, huma.Operation{OperationID: "pointer-move", Method: http.MethodPost, Path: "/api/v1/canvases/{canvas_id}/pointer/move", Summary: "Drag the open gesture", Tags: []string{"Input"}},
		func(ctx context.Context, input *pointInput) (*resultOutput, error) {
			res, err := svc.PointerMove(ctx, input.CanvasID, annotate.Point{X: input.Body.X, Y: input.Body.Y})
			if err != nil {
				return nil, mapErr(err)
			}
			return newResultOutput(input.CanvasID, res), nil
		})

	huma.Register(api, huma.Operation{OperationID: "pointer-up", Method: http.MethodPost, Path: "/api/v1/canvases/{canvas_id}/pointer/up", Summary: "Finish the open gesture and export", Tags: []string{"Input"}},
		func(ctx context.Context, input *canvasIDInput) (*resultOutput, error) {
			res, err := svc.PointerUp(ctx, input.CanvasID)
			if err != nil {
				return nil, mapErr(err)
			}
			return newResultOutput(input.CanvasID, res), nil
		})

	huma.Register(api, huma.Operation{OperationID: "hit-shape", Method: http.MethodPost, Path: "/api/v1/canvases/{canvas_id}/shapes/{shape_id}/hit", Summary: "Hit a shape", Description: "Removes the shape when the eraser is active; ignored otherwise.", Tags: []string{"Input"}},
		func(ctx context.Context, input *struct {
			CanvasID string `path:"canvas_id"`
			ShapeID  string `path:"shape_id"`
		}) (*resultOutput, error) {
			res, err := svc.HitShape(ctx, input.CanvasID, input.ShapeID)
			if err != nil {
				return nil, mapErr(err)
			}
			return newResultOutput(input.CanvasID, res), nil
		})

	huma.Register(api, huma.Operation{OperationID: "erase-at", Method: http.MethodPost, Path: "/api/v1/canvases/{canvas_id}/erase", Summary: "Erase the topmost shape under a point", Tags: []string{"Input"}},
		func(ctx context.Context, input *pointInput) (*resultOutput, error) {
			res, err := svc.EraseAt(ctx, input.CanvasID, annotate.Point{X: input.Body.X, Y: input.Body.Y})
			if err != nil {
				return nil, mapErr(err)
			}
			return newResultOutput(input.CanvasID, res), nil
		})

	huma.Register(api, huma.Operation{OperationID: "clear-canvas", Method: http.MethodPost, Path: "/api/v1/canvases/{canvas_id}/clear", Summary: "Remove every shape and export", Tags: []string{"Input"}},
		func(ctx context.Context, input *canvasIDInput) (*resultOutput, error) {
			res, err := svc.Clear(ctx, input.CanvasID)
			if err != nil {
				return nil, mapErr(err)
			}
			return newResultOutput(input.CanvasID, res), nil
		})

	// --- Export ---

	type exportOutput struct {
		Body struct {
			CanvasID string        `json:"canvas_id"`
			Export   annotate.Info `json:"export"`
			DataURI  string        `json:"data_uri"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "get-export", Method: http.MethodGet, Path: "/api/v1/canvases/{canvas_id}/export", Summary: "Latest export as a data URI", Tags: []string{"Export"}},
		func(ctx context.Context, input *canvasIDInput) (*exportOutput, error) {
			img, err := svc.LatestExport(ctx, input.CanvasID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &exportOutput{}
			out.Body.CanvasID = input.CanvasID
			out.Body.Export = img.Info()
			out.Body.DataURI = img.DataURI()
			return out, nil
		})

	type exportImageOutput struct {
		ContentType string `header:"Content-Type"`
		ExportSeq   string `header:"X-Export-Seq"`
		Body        []byte
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-export-image",
		Method:      http.MethodGet,
		Path:        "/api/v1/canvases/{canvas_id}/export/image",
		Summary:     "Latest export image",
		Tags:        []string{"Export"},
		Responses:   imageResponses("Latest export image"),
	}, func(ctx context.Context, input *canvasIDInput) (*exportImageOutput, error) {
		img, err := svc.LatestExport(ctx, input.CanvasID)
		if err != nil {
			return nil, mapErr(err)
		}
		return &exportImageOutput{ContentType: img.MIME, ExportSeq: formatSeq(img.Seq), Body: img.Data}, nil
	})
}

func formatSeq(seq uint64) string {
	return strconv.FormatUint(seq, 10)
}
