package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/dgnsrekt/anomaly_dashboard/internal/detector"
	"github.com/dgnsrekt/anomaly_dashboard/internal/export"
	"github.com/dgnsrekt/anomaly_dashboard/internal/feed"
	"github.com/dgnsrekt/anomaly_dashboard/internal/notify"
	"github.com/dgnsrekt/anomaly_dashboard/internal/series"
	"github.com/dgnsrekt/anomaly_dashboard/internal/session"
	"github.com/dgnsrekt/anomaly_dashboard/internal/stream"
)

type fakeDetector struct {
	mu         sync.Mutex
	scores     []float64
	analysis   string
	err        error
	uploads    []string
	analyzeReq detector.AnalyzeRequest
}

func (f *fakeDetector) Predict(_ context.Context, filename string, content io.Reader) ([]float64, error) {
	body, _ := io.ReadAll(content)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, filename+":"+string(body))
	return f.scores, f.err
}

func (f *fakeDetector) Analyze(_ context.Context, req detector.AnalyzeRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzeReq = req
	return f.analysis, f.err
}

type alarmRecorder struct {
	ch chan notify.Alarm
}

func (a *alarmRecorder) Alarm(_ context.Context, al notify.Alarm) error {
	a.ch <- al
	return nil
}

func newTestDashboard(t *testing.T, det *fakeDetector, mutate func(*Config)) *Dashboard {
	t.Helper()
	sessions, err := session.Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("session.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = sessions.Close() })
	exports, err := export.NewStore(filepath.Join(t.TempDir(), "exports"))
	if err != nil {
		t.Fatalf("export.NewStore() error = %v", err)
	}
	cfg := Config{
		Detector: det,
		Sessions: sessions,
		Exports:  exports,
		Broker:   feed.NewBroker(),
		Options:  series.DefaultOptions(),
		Chart:    export.ChartStyle{Width: 320, Height: 240, LineColor: "#000000"},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	d := New(cfg)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	var ce *CodedError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v (%T); want *CodedError %s", err, err, code)
	}
	if ce.Code != code {
		t.Fatalf("error code = %q; want %q", ce.Code, code)
	}
}

func TestUploadResetsBufferWithScores(t *testing.T) {
	det := &fakeDetector{scores: []float64{0.1, 2.0, 0.3}}
	d := newTestDashboard(t, det, nil)

	st, err := d.Upload(context.Background(), UploadInput{Filename: "data.csv", Content: "value\n10\n20\n30\n"})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !reflect.DeepEqual(st.Values, []float64{10, 20, 30}) {
		t.Fatalf("Values = %v; want [10 20 30]", st.Values)
	}
	want := []string{"rgba(0,0,0,0.1)", "red", "rgba(0,0,0,0.1)"}
	if !reflect.DeepEqual(st.Colors, want) {
		t.Fatalf("Colors = %v; want %v", st.Colors, want)
	}
	if st.Alarms != 1 || st.Source != "upload" {
		t.Fatalf("Alarms, Source = %d, %q; want 1, upload", st.Alarms, st.Source)
	}
	if len(det.uploads) != 1 || !strings.HasPrefix(det.uploads[0], "data.csv:value") {
		t.Fatalf("uploads = %v", det.uploads)
	}
}

func TestUploadValidationIsBlocking(t *testing.T) {
	det := &fakeDetector{}
	d := newTestDashboard(t, det, nil)

	_, err := d.Upload(context.Background(), UploadInput{})
	wantCode(t, err, CodeValidation)
	if len(det.uploads) != 0 {
		t.Fatalf("Predict called %d times; want 0", len(det.uploads))
	}
	notices := d.Notices()
	if len(notices) != 1 || !notices[0].Blocking || notices[0].Text != "select a CSV file" {
		t.Fatalf("Notices() = %+v", notices)
	}

	_, err = d.Paste(context.Background(), TextInput{Text: "   "})
	wantCode(t, err, CodeValidation)
}

func TestUpstreamErrorLeavesStateUnchanged(t *testing.T) {
	det := &fakeDetector{scores: []float64{0.5}}
	d := newTestDashboard(t, det, nil)
	if _, err := d.Paste(context.Background(), TextInput{Text: "7"}); err != nil {
		t.Fatalf("Paste() error = %v", err)
	}

	det.err = &detector.StatusError{Endpoint: "/predict", StatusCode: 500, Detail: "boom"}
	_, err := d.Paste(context.Background(), TextInput{Text: "1\n2\n"})
	wantCode(t, err, CodeUpstream)

	st := d.State()
	if !reflect.DeepEqual(st.Values, []float64{7}) {
		t.Fatalf("Values = %v; want unchanged [7]", st.Values)
	}
	notices := d.Notices()
	if last := notices[len(notices)-1]; last.Blocking {
		t.Fatalf("upstream notice = %+v; want non-blocking", last)
	}
}

func TestAnalyzeSendsPlottedSeries(t *testing.T) {
	det := &fakeDetector{scores: []float64{0, 3}, analysis: "one spike"}
	d := newTestDashboard(t, det, nil)
	if _, err := d.Paste(context.Background(), TextInput{Text: "1,9\n2,8\n"}); err != nil {
		t.Fatalf("Paste() error = %v", err)
	}

	res, err := d.Analyze(context.Background(), Empty{})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if res.Analysis != "one spike" || d.State().Analysis != "one spike" {
		t.Fatalf("Analyze() = %+v", res)
	}
	if !reflect.DeepEqual(det.analyzeReq.Values, []float64{1, 2}) || !reflect.DeepEqual(det.analyzeReq.Scores, []float64{0, 3}) {
		t.Fatalf("analyze request = %+v", det.analyzeReq)
	}
}

func TestThresholdChannelAndSmoothing(t *testing.T) {
	det := &fakeDetector{scores: []float64{0.5, 1.5, 2.5}}
	d := newTestDashboard(t, det, nil)
	ctx := context.Background()
	if _, err := d.Paste(ctx, TextInput{Text: "a,b\n1,10\n2,20\n3,30\n"}); err != nil {
		t.Fatalf("Paste() error = %v", err)
	}

	st, err := d.SetThreshold(ctx, ThresholdInput{Threshold: 2})
	if err != nil {
		t.Fatalf("SetThreshold() error = %v", err)
	}
	if st.Alarms != 1 || st.Colors[1] != "rgba(0,0,0,0.1)" || st.Colors[2] != "red" {
		t.Fatalf("after SetThreshold colors = %v", st.Colors)
	}

	st, err = d.SelectChannel(ctx, ChannelInput{Channel: 1})
	if err != nil {
		t.Fatalf("SelectChannel() error = %v", err)
	}
	if !reflect.DeepEqual(st.Values, []float64{10, 20, 30}) {
		t.Fatalf("Values = %v; want channel 1", st.Values)
	}
	if !reflect.DeepEqual(st.ChannelNames, []string{"channel_0", "channel_1"}) {
		t.Fatalf("ChannelNames = %v", st.ChannelNames)
	}
	_, err = d.SelectChannel(ctx, ChannelInput{Channel: 2})
	wantCode(t, err, CodeValidation)

	st, err = d.SetSmoothing(ctx, SmoothingInput{Enabled: true, Window: 2})
	if err != nil {
		t.Fatalf("SetSmoothing() error = %v", err)
	}
	if !reflect.DeepEqual(st.Values, []float64{10, 15, 25}) {
		t.Fatalf("smoothed Values = %v; want [10 15 25]", st.Values)
	}
}

func TestSessionSaveAndLoad(t *testing.T) {
	det := &fakeDetector{scores: []float64{0.2, 1.2}}
	d := newTestDashboard(t, det, nil)
	ctx := context.Background()

	_, err := d.LoadSession(ctx, Empty{})
	wantCode(t, err, CodeNotFound)

	if _, err := d.Paste(ctx, TextInput{Text: "1,2\n3,4\n"}); err != nil {
		t.Fatalf("Paste() error = %v", err)
	}
	n, err := d.SaveSession(ctx, Empty{})
	if err != nil || n.Text != "session saved" {
		t.Fatalf("SaveSession() = %+v, %v", n, err)
	}

	det.scores = []float64{9}
	if _, err := d.Paste(ctx, TextInput{Text: "100"}); err != nil {
		t.Fatalf("Paste() error = %v", err)
	}
	st, err := d.LoadSession(ctx, Empty{})
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if !reflect.DeepEqual(st.Values, []float64{1, 3}) || !reflect.DeepEqual(st.Scores, []float64{0.2, 1.2}) {
		t.Fatalf("loaded state = %v / %v", st.Values, st.Scores)
	}
	if st.Source != "session" {
		t.Fatalf("Source = %q; want session", st.Source)
	}
}

func TestExportStoresFile(t *testing.T) {
	det := &fakeDetector{scores: []float64{0.1, 2.0, 0.3}}
	d := newTestDashboard(t, det, nil)
	ctx := context.Background()

	_, err := d.Export(ctx, ExportInput{Format: "csv"})
	wantCode(t, err, CodeValidation)

	if _, err := d.Paste(ctx, TextInput{Text: "10\n20\n30\n"}); err != nil {
		t.Fatalf("Paste() error = %v", err)
	}
	for _, format := range []string{"csv", "json", "png"} {
		meta, err := d.Export(ctx, ExportInput{Format: format})
		if err != nil {
			t.Fatalf("Export(%s) error = %v", format, err)
		}
		if meta.Points != 3 || string(meta.Format) != format || meta.SizeBytes == 0 {
			t.Fatalf("Export(%s) meta = %+v", format, meta)
		}
	}
	_, err = d.Export(ctx, ExportInput{Format: "gif"})
	wantCode(t, err, CodeValidation)
}

func TestPreview(t *testing.T) {
	d := newTestDashboard(t, &fakeDetector{}, nil)
	res, err := d.Preview(context.Background(), PreviewInput{Text: "ts value\n1 2\n3 4\n5 6\n", MaxRows: 2})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if res.Rows != 3 || res.Channels != 2 || !reflect.DeepEqual(res.Header, []string{"ts", "value"}) {
		t.Fatalf("Preview() = %+v", res)
	}
	if !strings.Contains(res.Table, "1 more row") {
		t.Fatalf("Preview().Table missing footer:\n%s", res.Table)
	}
}

func TestDispatch(t *testing.T) {
	det := &fakeDetector{scores: []float64{0.9}}
	d := newTestDashboard(t, det, nil)
	ctx := context.Background()

	if got := len(d.Kinds()); got != 13 {
		t.Fatalf("Kinds() = %d entries; want 13", got)
	}

	out, err := d.Dispatch(ctx, EventPaste, json.RawMessage(`{"text":"5"}`))
	if err != nil {
		t.Fatalf("Dispatch(paste) error = %v", err)
	}
	if st, ok := out.(State); !ok || st.Points != 1 {
		t.Fatalf("Dispatch(paste) = %#v", out)
	}

	_, err = d.Dispatch(ctx, "bogus", nil)
	wantCode(t, err, CodeValidation)

	_, err = d.Dispatch(ctx, EventSetThreshold, json.RawMessage(`{"threshold":"high"}`))
	wantCode(t, err, CodeValidation)

	_, err = d.Dispatch(ctx, EventSetThreshold, json.RawMessage(`{"threshold":1,"extra":true}`))
	wantCode(t, err, CodeValidation)

	if _, err := d.Dispatch(ctx, EventAnalyze, nil); err != nil {
		t.Fatalf("Dispatch(analyze, nil) error = %v", err)
	}
}

func TestSendWithoutSocketFallsBackToUpload(t *testing.T) {
	det := &fakeDetector{scores: []float64{0.4}}
	d := newTestDashboard(t, det, nil)

	st, err := d.Send(context.Background(), TextInput{Text: "42"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if st.Connection != "disconnected" {
		t.Fatalf("Connection = %q", st.Connection)
	}
	if len(det.uploads) != 1 || det.uploads[0] != "pasted.csv:42" {
		t.Fatalf("uploads = %v", det.uploads)
	}
	if got := d.State().Values; !reflect.DeepEqual(got, []float64{42}) {
		t.Fatalf("Values = %v; want [42]", got)
	}

	_, err = d.Connect(context.Background(), Empty{})
	wantCode(t, err, CodeValidation)
}

func TestStreamedScoresAppendAndAlarm(t *testing.T) {
	pushed := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = wsutil.WriteServerText(conn, []byte(`{"scores":[0.9]}`))
		_ = wsutil.WriteServerText(conn, []byte(`not json`))
		_ = wsutil.WriteServerText(conn, []byte(`{"values":[4],"scores":[0.2,1.7]}`))
		_ = wsutil.WriteServerText(conn, []byte(`{"scores":[3.0]}`))
		close(pushed)
		for {
			if _, err := wsutil.ReadClientText(conn); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	alarms := &alarmRecorder{ch: make(chan notify.Alarm, 4)}
	url, err := stream.EndpointURL(srv.URL)
	if err != nil {
		t.Fatalf("EndpointURL() error = %v", err)
	}
	d := newTestDashboard(t, &fakeDetector{}, func(c *Config) {
		c.StreamURL = url
		c.Alarms = alarms
	})

	status, err := d.Connect(context.Background(), Empty{})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if status.Connection != "open" || !status.Controls.Send || status.Controls.Connect {
		t.Fatalf("Connect() status = %+v", status)
	}

	<-pushed
	deadline := time.Now().Add(3 * time.Second)
	for d.State().Points < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	st := d.State()
	if !reflect.DeepEqual(st.Values, []float64{4, 0}) || !reflect.DeepEqual(st.Scores, []float64{0.2, 3.0}) {
		t.Fatalf("state = %v / %v; want [4 0] / [0.2 3]", st.Values, st.Scores)
	}
	if !reflect.DeepEqual(st.Labels, []string{"0", "1"}) {
		t.Fatalf("Labels = %v", st.Labels)
	}

	select {
	case al := <-alarms.ch:
		if al.Label != 1 || al.Score != 3.0 {
			t.Fatalf("alarm = %+v; want label 1 score 3", al)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for alarm")
	}

	status, err = d.Disconnect(context.Background(), Empty{})
	if err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if status.Connection != "disconnected" || !status.Controls.Connect {
		t.Fatalf("Disconnect() status = %+v", status)
	}
}
