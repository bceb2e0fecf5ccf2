// Package api exposes the dashboard session over HTTP: huma operations for
// every dashboard event, a multipart upload route, server-sent events and
// export downloads.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/anomaly_dashboard/internal/dashboard"
	"github.com/dgnsrekt/anomaly_dashboard/internal/export"
	"github.com/dgnsrekt/anomaly_dashboard/internal/feed"
)

// Service is the dashboard surface the API drives; *dashboard.Dashboard
// implements it. Every dashboard event goes through Dispatch.
type Service interface {
	State() dashboard.State
	Notices() []dashboard.Notice
	Kinds() []dashboard.EventKind
	InitialEvents() []feed.Event
	Dispatch(ctx context.Context, kind dashboard.EventKind, payload json.RawMessage) (any, error)

	Render(format export.Format) ([]byte, export.Document, error)
}

// Exports lists and serves stored export files; *export.Store implements it.
type Exports interface {
	List() ([]export.Meta, error)
	Get(id string) (export.Meta, error)
	Read(id string) ([]byte, export.Meta, error)
	Delete(id string) error
}

// Detector reports upstream liveness; *detector.Client implements it.
type Detector interface {
	Health(ctx context.Context) error
	Datasets(ctx context.Context) ([]string, error)
}

// Options carries the optional collaborators of NewServer.
type Options struct {
	Exports  Exports
	Detector Detector
	Broker   *feed.Broker
	Metrics  http.Handler
}

// NewServer builds the router.
func NewServer(svc Service, opts Options) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Anomaly Dashboard API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Post("/api/v1/upload", uploadHandler(svc))
	if opts.Broker != nil {
		router.Get("/api/v1/events", feed.SSEHandler(opts.Broker, svc.InitialEvents))
	}
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics)
	}

	registerHealthHandlers(api, opts.Detector)
	registerSeriesHandlers(api, svc)
	registerStreamHandlers(api, svc)
	registerSessionHandlers(api, svc)
	registerExportHandlers(api, svc, opts.Exports)
	registerDispatchHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *dashboard.CodedError
	if errors.As(err, &coded) {
		msg := coded.Message
		if coded.Cause != nil {
			msg = fmt.Sprintf("%s: %v", coded.Message, coded.Cause)
		}
		switch coded.Code {
		case dashboard.CodeValidation:
			return huma.Error400BadRequest(msg)
		case dashboard.CodeNotFound:
			return huma.Error404NotFound(msg)
		case dashboard.CodeUpstream:
			return huma.Error502BadGateway(msg)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, msg))
		}
	}
	if errors.Is(err, export.ErrNotFound) {
		return huma.Error404NotFound(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}
