package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/chartmark/internal/controller"
)

func registerAnalysisHandlers(api huma.API, svc Service) {
	type analyzeOutput struct {
		Body struct {
			controller.AnalysisResult
			ImageURL string `json:"image_url"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "analyze-canvas", Method: http.MethodPost, Path: "/api/v1/canvases/{canvas_id}/analyze", Summary: "Analyze the latest export", Description: "Sends the most recent export to the analysis model. Successful verdicts are stored in the history, which keeps the 20 most recent entries.", Tags: []string{"Analysis"}},
		func(ctx context.Context, input *struct {
			CanvasID string `path:"canvas_id"`
			Body     struct {
				Notes string `json:"notes,omitempty" doc:"Free-form annotation stored with the snapshot"`
			}
		}) (*analyzeOutput, error) {
			res, err := svc.Analyze(ctx, input.CanvasID, input.Body.Notes)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &analyzeOutput{}
			out.Body.AnalysisResult = res
			out.Body.ImageURL = "/api/v1/history/" + res.HistoryID + "/image"
			return out, nil
		})

	type chatOutput struct {
		Body struct {
			Answer string `json:"answer"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "chat", Method: http.MethodPost, Path: "/api/v1/chat", Summary: "Ask the trading assistant", Tags: []string{"Analysis"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Prompt string `json:"prompt" minLength:"1"`
			}
		}) (*chatOutput, error) {
			answer, err := svc.Chat(ctx, input.Body.Prompt)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &chatOutput{}
			out.Body.Answer = answer
			return out, nil
		})
}
