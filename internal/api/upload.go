package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dgnsrekt/anomaly_dashboard/internal/dashboard"
)

const maxUploadBytes = 32 << 20

// uploadHandler accepts a multipart CSV under form field "file". It sits
// outside huma because the file is forwarded verbatim to the detector.
func uploadHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		file, header, err := r.FormFile("file")
		if err != nil {
			// Mirrors the "select a CSV file" notice raised for an empty upload.
			_, uerr := svc.Dispatch(r.Context(), dashboard.EventUpload, json.RawMessage(`{}`))
			writeJSONError(w, uerr)
			return
		}
		defer func() {
			if err := file.Close(); err != nil {
				slog.Debug("upload file close failed", "error", err)
			}
		}()

		content, err := io.ReadAll(file)
		if err != nil {
			writeJSONError(w, err)
			return
		}

		payload, err := json.Marshal(dashboard.UploadInput{
			Filename: header.Filename,
			Content:  string(content),
		})
		if err != nil {
			writeJSONError(w, err)
			return
		}
		st, err := svc.Dispatch(r.Context(), dashboard.EventUpload, payload)
		if err != nil {
			writeJSONError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(st); err != nil {
			slog.Debug("upload response write failed", "error", err)
		}
	}
}

func writeJSONError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	detail := "upload failed"
	if err != nil {
		detail = err.Error()
	}
	var coded *dashboard.CodedError
	if errors.As(err, &coded) {
		detail = coded.Message
		if coded.Cause != nil {
			detail += ": " + coded.Cause.Error()
		}
		switch coded.Code {
		case dashboard.CodeValidation:
			status = http.StatusBadRequest
		case dashboard.CodeNotFound:
			status = http.StatusNotFound
		case dashboard.CodeUpstream:
			status = http.StatusBadGateway
		}
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status = http.StatusRequestEntityTooLarge
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	body := map[string]any{
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("error response write failed", "error", err)
	}
}
