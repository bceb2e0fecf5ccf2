package detector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestPredictUploadsMultipartFile(t *testing.T) {
	var gotName, gotContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/predict" {
			t.Errorf("request = %s %s; want POST /predict", r.Method, r.URL.Path)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile() = %v", err)
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotName, gotContent = hdr.Filename, string(b)
		_ = json.NewEncoder(w).Encode(map[string]any{"scores": []float64{0.1, 0.2}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", nil)
	scores, err := c.Predict(context.Background(), "sample.csv", strings.NewReader("v\n1\n2\n"))
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if want := []float64{0.1, 0.2}; !reflect.DeepEqual(scores, want) {
		t.Fatalf("Predict() = %v; want %v", scores, want)
	}
	if gotName != "sample.csv" {
		t.Fatalf("filename = %q; want %q", gotName, "sample.csv")
	}
	if gotContent != "v\n1\n2\n" {
		t.Fatalf("content = %q; want %q", gotContent, "v\n1\n2\n")
	}
}

func TestPredictSurfacesStatusError(t *testing.T) {
	client := &http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusBadRequest,
				Body:       io.NopCloser(strings.NewReader(`{"detail":"No columns to parse from file"}`)),
				Header:     make(http.Header),
			}, nil
		}),
	}

	_, err := NewClient("http://detector.local", client).Predict(context.Background(), "x.csv", strings.NewReader(""))
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Predict() error = %T; want *StatusError", err)
	}
	if se.StatusCode != http.StatusBadRequest {
		t.Fatalf("StatusCode = %d; want %d", se.StatusCode, http.StatusBadRequest)
	}
	if se.Detail != "No columns to parse from file" {
		t.Fatalf("Detail = %q; want %q", se.Detail, "No columns to parse from file")
	}
}

func TestAnalyzePostsSeries(t *testing.T) {
	var got AnalyzeRequest
	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("content-type = %q; want application/json", ct)
			}
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decode body: %v", err)
			}
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(`{"analysis":"No significant anomalies detected."}`)),
				Header:     make(http.Header),
			}, nil
		}),
	}

	text, err := NewClient("http://detector.local", client).Analyze(context.Background(), AnalyzeRequest{
		Values: []float64{1, 2},
		Scores: []float64{0.1, 0.2},
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if text != "No significant anomalies detected." {
		t.Fatalf("Analyze() = %q", text)
	}
	if !reflect.DeepEqual(got.Values, []float64{1, 2}) || !reflect.DeepEqual(got.Scores, []float64{0.1, 0.2}) {
		t.Fatalf("request body = %+v", got)
	}
}

func TestAnalyzeSendsEmptyArraysNotNull(t *testing.T) {
	var raw string
	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			b, _ := io.ReadAll(r.Body)
			raw = string(b)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(`{"analysis":""}`)),
				Header:     make(http.Header),
			}, nil
		}),
	}
	if _, err := NewClient("http://detector.local", client).Analyze(context.Background(), AnalyzeRequest{}); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if raw != `{"values":[],"scores":[]}` {
		t.Fatalf("body = %s; want empty arrays", raw)
	}
}

func TestHealthAndDatasets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_, _ = io.WriteString(w, `{"status":"ok"}`)
		case "/datasets":
			_, _ = io.WriteString(w, `{"datasets":["pump.csv","fan.csv"]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health() = %v; want nil", err)
	}
	ds, err := c.Datasets(context.Background())
	if err != nil {
		t.Fatalf("Datasets() error = %v", err)
	}
	if want := []string{"pump.csv", "fan.csv"}; !reflect.DeepEqual(ds, want) {
		t.Fatalf("Datasets() = %v; want %v", ds, want)
	}
}
