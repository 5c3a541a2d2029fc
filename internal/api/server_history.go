package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/chartmark/internal/history"
	"github.com/dgnsrekt/chartmark/internal/snapshot"
)

func registerHistoryHandlers(api huma.API, svc Service) {
	type listSnapshotsOutput struct {
		Body struct {
			CanvasID  string                  `json:"canvas_id"`
			Snapshots []snapshot.SnapshotMeta `json:"snapshots"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-canvas-snapshots", Method: http.MethodGet, Path: "/api/v1/canvases/{canvas_id}/snapshots", Summary: "List analysed exports of a canvas, latest first", Tags: []string{"History"}},
		func(ctx context.Context, input *canvasIDInput) (*listSnapshotsOutput, error) {
			metas, err := svc.ListSnapshots(ctx, input.CanvasID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listSnapshotsOutput{}
			out.Body.CanvasID = input.CanvasID
			out.Body.Snapshots = metas
			if out.Body.Snapshots == nil {
				out.Body.Snapshots = []snapshot.SnapshotMeta{}
			}
			return out, nil
		})

	type listHistoryOutput struct {
		Body struct {
			Entries []history.Entry `json:"entries"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-history", Method: http.MethodGet, Path: "/api/v1/history", Summary: "List analysis history, newest first", Tags: []string{"History"}},
		func(ctx context.Context, input *struct{}) (*listHistoryOutput, error) {
			entries, err := svc.ListHistory(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listHistoryOutput{}
			out.Body.Entries = entries
			if out.Body.Entries == nil {
				out.Body.Entries = []history.Entry{}
			}
			return out, nil
		})

	type historyIDInput struct {
		HistoryID string `path:"history_id"`
	}
	type getHistoryOutput struct {
		Body history.Entry
	}
	huma.Register(api, huma.Operation{OperationID: "get-history", Method: http.MethodGet, Path: "/api/v1/history/{history_id}", Summary: "Get a history entry", Tags: []string{"History"}},
		func(ctx context.Context, input *historyIDInput) (*getHistoryOutput, error) {
			e, err := svc.GetHistory(ctx, input.HistoryID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &getHistoryOutput{}
			out.Body = e
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "delete-history", Method: http.MethodDelete, Path: "/api/v1/history/{history_id}", Summary: "Delete a history entry and its image", Tags: []string{"History"}},
		func(ctx context.Context, input *historyIDInput) (*statusOutput, error) {
			if err := svc.DeleteHistory(ctx, input.HistoryID); err != nil {
				return nil, mapErr(err)
			}
			out := &statusOutput{}
			out.Body.Status = "deleted"
			return out, nil
		})

	type historyImageOutput struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-history-image",
		Method:      http.MethodGet,
		Path:        "/api/v1/history/{history_id}/image",
		Summary:     "Get the analysed image of a history entry",
		Tags:        []string{"History"},
		Responses:   imageResponses("Analysed export"),
	}, func(ctx context.Context, input *historyIDInput) (*historyImageOutput, error) {
		data, format, err := svc.ReadHistoryImage(ctx, input.HistoryID)
		if err != nil {
			return nil, mapErr(err)
		}
		ct := "image/png"
		if format == "jpeg" {
			ct = "image/jpeg"
		}
		return &historyImageOutput{ContentType: ct, Body: data}, nil
	})
}
