package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/anomaly_dashboard/internal/dashboard"
	"github.com/dgnsrekt/anomaly_dashboard/internal/export"
)

type stateOutput struct {
	Body dashboard.State
}

type statusOutput struct {
	Body dashboard.StreamStatus
}

func registerHealthHandlers(api huma.API, det Detector) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status" example:"ok"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	if det == nil {
		return
	}
	huma.Register(api, huma.Operation{OperationID: "detector-health", Method: http.MethodGet, Path: "/api/v1/detector/health", Summary: "Check the detector server", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			if err := det.Health(ctx); err != nil {
				return nil, huma.Error502BadGateway("detector unavailable", err)
			}
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type datasetsOutput struct {
		Body struct {
			Datasets []string `json:"datasets"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "detector-datasets", Method: http.MethodGet, Path: "/api/v1/detector/datasets", Summary: "List datasets known to the detector", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*datasetsOutput, error) {
			names, err := det.Datasets(ctx)
			if err != nil {
				return nil, huma.Error502BadGateway("detector unavailable", err)
			}
			out := &datasetsOutput{}
			out.Body.Datasets = names
			return out, nil
		})
}

func registerSeriesHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "get-state", Method: http.MethodGet, Path: "/api/v1/state", Summary: "Get the plotted series, options and socket state", Tags: []string{"Series"}},
		func(ctx context.Context, input *struct{}) (*stateOutput, error) {
			return &stateOutput{Body: svc.State()}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "paste-csv", Method: http.MethodPost, Path: "/api/v1/paste", Summary: "Score pasted CSV text and replace the series", Tags: []string{"Series"}},
		func(ctx context.Context, input *struct{ Body dashboard.TextInput }) (*stateOutput, error) {
			st, err := dispatch[dashboard.TextInput, dashboard.State](ctx, svc, dashboard.EventPaste, input.Body)
			if err != nil {
				return nil, err
			}
			return &stateOutput{Body: st}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "analyze", Method: http.MethodPost, Path: "/api/v1/analyze", Summary: "Ask the detector to describe the plotted series", Tags: []string{"Series"}},
		func(ctx context.Context, input *struct{}) (*struct{ Body dashboard.AnalyzeResult }, error) {
			res, err := dispatch[dashboard.Empty, dashboard.AnalyzeResult](ctx, svc, dashboard.EventAnalyze, dashboard.Empty{})
			if err != nil {
				return nil, err
			}
			return &struct{ Body dashboard.AnalyzeResult }{Body: res}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-threshold", Method: http.MethodPut, Path: "/api/v1/threshold", Summary: "Set the alarm threshold and recolor all points", Tags: []string{"Series"}},
		func(ctx context.Context, input *struct{ Body dashboard.ThresholdInput }) (*stateOutput, error) {
			st, err := dispatch[dashboard.ThresholdInput, dashboard.State](ctx, svc, dashboard.EventSetThreshold, input.Body)
			if err != nil {
				return nil, err
			}
			return &stateOutput{Body: st}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "select-channel", Method: http.MethodPut, Path: "/api/v1/channel", Summary: "Select the plotted channel", Tags: []string{"Series"}},
		func(ctx context.Context, input *struct{ Body dashboard.ChannelInput }) (*stateOutput, error) {
			st, err := dispatch[dashboard.ChannelInput, dashboard.State](ctx, svc, dashboard.EventSelectChannel, input.Body)
			if err != nil {
				return nil, err
			}
			return &stateOutput{Body: st}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-smoothing", Method: http.MethodPut, Path: "/api/v1/smoothing", Summary: "Toggle the moving average", Tags: []string{"Series"}},
		func(ctx context.Context, input *struct{ Body dashboard.SmoothingInput }) (*stateOutput, error) {
			st, err := dispatch[dashboard.SmoothingInput, dashboard.State](ctx, svc, dashboard.EventSetSmoothing, input.Body)
			if err != nil {
				return nil, err
			}
			return &stateOutput{Body: st}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "preview-csv", Method: http.MethodPost, Path: "/api/v1/preview", Summary: "Tokenize CSV text and render a table preview", Tags: []string{"Series"}},
		func(ctx context.Context, input *struct{ Body dashboard.PreviewInput }) (*struct{ Body dashboard.PreviewResult }, error) {
			res, err := dispatch[dashboard.PreviewInput, dashboard.PreviewResult](ctx, svc, dashboard.EventPreview, input.Body)
			if err != nil {
				return nil, err
			}
			return &struct{ Body dashboard.PreviewResult }{Body: res}, nil
		})

	type noticesOutput struct {
		Body struct {
			Notices []dashboard.Notice `json:"notices"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-notices", Method: http.MethodGet, Path: "/api/v1/notices", Summary: "List recent user notices", Tags: []string{"Series"}},
		func(ctx context.Context, input *struct{}) (*noticesOutput, error) {
			out := &noticesOutput{}
			out.Body.Notices = svc.Notices()
			return out, nil
		})
}

func registerStreamHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "stream-connect", Method: http.MethodPost, Path: "/api/v1/stream/connect", Summary: "Open the socket session", Tags: []string{"Stream"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			// The session outlives the request.
			st, err := dispatch[dashboard.Empty, dashboard.StreamStatus](context.WithoutCancel(ctx), svc, dashboard.EventConnect, dashboard.Empty{})
			if err != nil {
				return nil, err
			}
			return &statusOutput{Body: st}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "stream-disconnect", Method: http.MethodPost, Path: "/api/v1/stream/disconnect", Summary: "Close the socket session", Tags: []string{"Stream"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			st, err := dispatch[dashboard.Empty, dashboard.StreamStatus](ctx, svc, dashboard.EventDisconnect, dashboard.Empty{})
			if err != nil {
				return nil, err
			}
			return &statusOutput{Body: st}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "stream-send", Method: http.MethodPost, Path: "/api/v1/stream/send", Summary: "Send text over the socket, or upload it when the socket is closed", Tags: []string{"Stream"}},
		func(ctx context.Context, input *struct{ Body dashboard.TextInput }) (*statusOutput, error) {
			st, err := dispatch[dashboard.TextInput, dashboard.StreamStatus](ctx, svc, dashboard.EventSend, input.Body)
			if err != nil {
				return nil, err
			}
			return &statusOutput{Body: st}, nil
		})
}

func registerSessionHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "save-session", Method: http.MethodPost, Path: "/api/v1/session/save", Summary: "Save the series to local storage", Tags: []string{"Session"}},
		func(ctx context.Context, input *struct{}) (*struct{ Body dashboard.Notice }, error) {
			n, err := dispatch[dashboard.Empty, dashboard.Notice](ctx, svc, dashboard.EventSaveSession, dashboard.Empty{})
			if err != nil {
				return nil, err
			}
			return &struct{ Body dashboard.Notice }{Body: n}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "load-session", Method: http.MethodPost, Path: "/api/v1/session/load", Summary: "Replace the series with the saved session", Tags: []string{"Session"}},
		func(ctx context.Context, input *struct{}) (*stateOutput, error) {
			st, err := dispatch[dashboard.Empty, dashboard.State](ctx, svc, dashboard.EventLoadSession, dashboard.Empty{})
			if err != nil {
				return nil, err
			}
			return &stateOutput{Body: st}, nil
		})
}

type exportIDInput struct {
	ExportID string `path:"export_id" doc:"Export UUID"`
}

type fileOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

func registerExportHandlers(api huma.API, svc Service, exports Exports) {
	binary := map[string]*huma.Response{
		"200": {
			Description: "Exported file",
			Content: map[string]*huma.MediaType{
				"image/png":        {Schema: &huma.Schema{Type: "string", Format: "binary"}},
				"text/csv":         {Schema: &huma.Schema{Type: "string"}},
				"application/json": {Schema: &huma.Schema{Type: "object"}},
			},
		},
	}

	huma.Register(api, huma.Operation{OperationID: "render-export", Method: http.MethodGet, Path: "/api/v1/render", Summary: "Render the series without storing it", Tags: []string{"Export"}, Responses: binary},
		func(ctx context.Context, input *struct {
			Format string `query:"format" default:"png" enum:"csv,json,png"`
		}) (*fileOutput, error) {
			format, err := export.ParseFormat(input.Format)
			if err != nil {
				return nil, huma.Error400BadRequest(err.Error())
			}
			data, _, err := svc.Render(format)
			if err != nil {
				return nil, mapErr(err)
			}
			return &fileOutput{
				ContentType:        format.ContentType(),
				ContentDisposition: `inline; filename="series.` + string(format) + `"`,
				Body:               data,
			}, nil
		})

	type exportOutput struct {
		Body struct {
			export.Meta
			URL string `json:"url"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "create-export", Method: http.MethodPost, Path: "/api/v1/exports", Summary: "Export the series to a stored file", Tags: []string{"Export"}},
		func(ctx context.Context, input *struct{ Body dashboard.ExportInput }) (*exportOutput, error) {
			meta, err := dispatch[dashboard.ExportInput, export.Meta](ctx, svc, dashboard.EventExport, input.Body)
			if err != nil {
				return nil, err
			}
			out := &exportOutput{}
			out.Body.Meta = meta
			out.Body.URL = "/api/v1/exports/" + meta.ID + "/file"
			return out, nil
		})

	if exports == nil {
		return
	}

	type listOutput struct {
		Body struct {
			Exports []export.Meta `json:"exports"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-exports", Method: http.MethodGet, Path: "/api/v1/exports", Summary: "List stored exports", Tags: []string{"Export"}},
		func(ctx context.Context, input *struct{}) (*listOutput, error) {
			metas, err := exports.List()
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listOutput{}
			out.Body.Exports = metas
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-export", Method: http.MethodGet, Path: "/api/v1/exports/{export_id}", Summary: "Get export metadata", Tags: []string{"Export"}},
		func(ctx context.Context, input *exportIDInput) (*struct{ Body export.Meta }, error) {
			meta, err := exports.Get(input.ExportID)
			if err != nil {
				return nil, mapExportErr(err)
			}
			return &struct{ Body export.Meta }{Body: meta}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-export-file", Method: http.MethodGet, Path: "/api/v1/exports/{export_id}/file", Summary: "Download an export", Tags: []string{"Export"}, Responses: binary},
		func(ctx context.Context, input *exportIDInput) (*fileOutput, error) {
			data, meta, err := exports.Read(input.ExportID)
			if err != nil {
				return nil, mapExportErr(err)
			}
			return &fileOutput{
				ContentType:        meta.Format.ContentType(),
				ContentDisposition: `attachment; filename="` + meta.ID + "." + string(meta.Format) + `"`,
				Body:               data,
			}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "delete-export", Method: http.MethodDelete, Path: "/api/v1/exports/{export_id}", Summary: "Delete an export", Tags: []string{"Export"}},
		func(ctx context.Context, input *exportIDInput) (*struct {
			Body struct {
				Status string `json:"status"`
			}
		}, error) {
			if err := exports.Delete(input.ExportID); err != nil {
				return nil, mapExportErr(err)
			}
			out := &struct {
				Body struct {
					Status string `json:"status"`
				}
			}{}
			out.Body.Status = "deleted"
			return out, nil
		})
}

// dispatch runs a typed operation through the dashboard dispatch table so
// every route shares its decoding, notices and event counting.
func dispatch[In, Out any](ctx context.Context, svc Service, kind dashboard.EventKind, in In) (Out, error) {
	var zero Out
	payload, err := json.Marshal(in)
	if err != nil {
		return zero, huma.Error500InternalServerError("encode payload", err)
	}
	res, err := svc.Dispatch(ctx, kind, payload)
	if err != nil {
		return zero, mapErr(err)
	}
	out, ok := res.(Out)
	if !ok {
		return zero, huma.Error500InternalServerError(fmt.Sprintf("%s: unexpected result %T", kind, res))
	}
	return out, nil
}

func mapExportErr(err error) error {
	if errors.Is(err, export.ErrInvalidID) {
		return huma.Error400BadRequest(err.Error())
	}
	return mapErr(err)
}

func registerDispatchHandlers(api huma.API, svc Service) {
	type kindsOutput struct {
		Body struct {
			Kinds []dashboard.EventKind `json:"kinds"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-event-kinds", Method: http.MethodGet, Path: "/api/v1/dispatch", Summary: "List dispatchable event kinds", Tags: []string{"Dispatch"}},
		func(ctx context.Context, input *struct{}) (*kindsOutput, error) {
			out := &kindsOutput{}
			out.Body.Kinds = svc.Kinds()
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "dispatch-event", Method: http.MethodPost, Path: "/api/v1/dispatch/{kind}", Summary: "Dispatch a dashboard event with a JSON payload", Tags: []string{"Dispatch"}},
		func(ctx context.Context, input *struct {
			Kind    string `path:"kind"`
			RawBody []byte `contentType:"application/json"`
		}) (*struct{ Body any }, error) {
			kind := dashboard.EventKind(input.Kind)
			if kind == dashboard.EventConnect {
				ctx = context.WithoutCancel(ctx)
			}
			res, err := svc.Dispatch(ctx, kind, json.RawMessage(input.RawBody))
			if err != nil {
				return nil, mapErr(err)
			}
			return &struct{ Body any }{Body: res}, nil
		})
}
