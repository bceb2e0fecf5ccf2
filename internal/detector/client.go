// Package detector talks to the anomaly-detection server over HTTP.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

const maxErrorBody = 4096

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("detector %s: status=%d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("detector %s: status=%d: %s", e.Endpoint, e.StatusCode, e.Detail)
}

// Client calls the detector endpoints relative to a base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for baseURL. A nil httpClient selects
// http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// BaseURL returns the detector origin this client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// Predict uploads a CSV file as multipart field "file" and returns the
// per-row anomaly scores.
func (c *Client) Predict(ctx context.Context, filename string, content io.Reader) ([]float64, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("detector predict: form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("detector predict: copy content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("detector predict: close form: %w", err)
	}

	var out struct {
		Scores []float64 `json:"scores"`
	}
	if err := c.do(ctx, http.MethodPost, "/predict", mw.FormDataContentType(), &body, &out); err != nil {
		return nil, err
	}
	return out.Scores, nil
}

// AnalyzeRequest is the /analyze request body.
type AnalyzeRequest struct {
	Values []float64 `json:"values"`
	Scores []float64 `json:"scores"`
}

// Analyze requests a textual summary of the given series.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (string, error) {
	if req.Values == nil {
		req.Values = []float64{}
	}
	if req.Scores == nil {
		req.Scores = []float64{}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("detector analyze: marshal: %w", err)
	}
	var out struct {
		Analysis string `json:"analysis"`
	}
	if err := c.do(ctx, http.MethodPost, "/analyze", "application/json", bytes.NewReader(payload), &out); err != nil {
		return "", err
	}
	return out.Analysis, nil
}

// Health checks the detector liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", "", nil, &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("detector health: status %q", out.Status)
	}
	return nil
}

// Datasets lists the example CSV files the detector ships with.
func (c *Client) Datasets(ctx context.Context) ([]string, error) {
	var out struct {
		Datasets []string `json:"datasets"`
	}
	if err := c.do(ctx, http.MethodGet, "/datasets", "", nil, &out); err != nil {
		return nil, err
	}
	return out.Datasets, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("detector %s: url: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("detector %s: request: %w", path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("detector %s: %w", path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Endpoint: path, StatusCode: resp.StatusCode, Detail: errorDetail(raw)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("detector %s: decode: %w", path, err)
	}
	slog.Debug("detector call ok", "method", method, "path", path, "status", resp.StatusCode)
	return nil
}

// errorDetail extracts {"detail": "..."} from an error body, falling back to
// the trimmed body text.
func errorDetail(raw []byte) string {
	var obj struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Detail != nil {
		if s, ok := obj.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(obj.Detail); err == nil {
			return string(b)
		}
	}
	return strings.TrimSpace(string(raw))
}
