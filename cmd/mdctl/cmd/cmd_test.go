package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/dgnsrekt/anomaly_dashboard/internal/series"
	"github.com/dgnsrekt/anomaly_dashboard/internal/session"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func detectorServer(t *testing.T, scores []float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/predict":
			if _, _, err := r.FormFile("file"); err != nil {
				http.Error(w, "missing file", http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"scores": scores})
		case "/analyze":
			_ = json.NewEncoder(w).Encode(map[string]string{"analysis": "one spike"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPreviewCommand(t *testing.T) {
	path := writeCSV(t, "a,b\n1,2\n3,4\n5,6\n")
	out, err := runCommand(t, "preview", path, "--rows", "2")
	if err != nil {
		t.Fatalf("preview error = %v", err)
	}
	if !strings.Contains(out, "1 more row") {
		t.Fatalf("preview output missing footer:\n%s", out)
	}
}

func TestPredictCommand(t *testing.T) {
	srv := detectorServer(t, []float64{0.1, 2.5})
	path := writeCSV(t, "value\n10\n20\n")

	out, err := runCommand(t, "--url", srv.URL, "predict", path)
	if err != nil {
		t.Fatalf("predict error = %v", err)
	}
	var got scoredSeries
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if !reflect.DeepEqual(got.Values, []float64{10, 20}) {
		t.Fatalf("Values = %v; want [10 20]", got.Values)
	}
	if got.Alarms != 1 || got.Colors[1] != series.DefaultAlarmColor {
		t.Fatalf("Alarms, Colors = %d, %v", got.Alarms, got.Colors)
	}
}

func TestAnalyzeCommand(t *testing.T) {
	srv := detectorServer(t, []float64{0.1})
	path := writeCSV(t, "7\n")

	out, err := runCommand(t, "--url", srv.URL, "analyze", path)
	if err != nil {
		t.Fatalf("analyze error = %v", err)
	}
	if !strings.Contains(out, `"analysis": "one spike"`) {
		t.Fatalf("output = %s", out)
	}
}

func TestPredictUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	path := writeCSV(t, "1\n")

	if _, err := runCommand(t, "--url", srv.URL, "predict", path); err == nil {
		t.Fatal("predict error = nil; want status error")
	}
}

func TestSessionShowAndClear(t *testing.T) {
	db := filepath.Join(t.TempDir(), "session.db")

	if _, err := runCommand(t, "session", "show", "--db", db); err == nil || !strings.Contains(err.Error(), "no session saved") {
		t.Fatalf("show on empty db error = %v", err)
	}

	store, err := session.Open(db)
	if err != nil {
		t.Fatalf("session.Open() error = %v", err)
	}
	if err := store.Save(session.Snapshot{Values: series.Scalars([]float64{1, 2}), Scores: []float64{0.5, 0.7}}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	out, err := runCommand(t, "session", "show", "--db", db)
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	if !strings.Contains(out, "0.7") {
		t.Fatalf("show output = %s", out)
	}

	if _, err := runCommand(t, "session", "clear", "--db", db); err != nil {
		t.Fatalf("clear error = %v", err)
	}
	if _, err := runCommand(t, "session", "show", "--db", db); err == nil {
		t.Fatal("show after clear error = nil")
	}
}

func TestPrintSinkCountsAlarms(t *testing.T) {
	var out bytes.Buffer
	opts := series.DefaultOptions()
	sink := &printSink{w: &out, buf: series.NewBuffer(series.DefaultCapacity), opts: opts}

	sink.ResetSeries(series.Scalars([]float64{1, 2, 3}), []float64{0.2, 1.5, 2.5})
	sink.AppendPoint(4, 3.0)

	want := "reset points=3 alarms=2\npoint label=3 value=4 score=3 ALARM\n"
	if out.String() != want {
		t.Fatalf("output = %q; want %q", out.String(), want)
	}
}
