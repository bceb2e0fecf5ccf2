package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dgnsrekt/anomaly_dashboard/internal/csvtok"
	"github.com/dgnsrekt/anomaly_dashboard/internal/detector"
	"github.com/dgnsrekt/anomaly_dashboard/internal/export"
	"github.com/dgnsrekt/anomaly_dashboard/internal/feed"
	"github.com/dgnsrekt/anomaly_dashboard/internal/session"
	"github.com/dgnsrekt/anomaly_dashboard/internal/stream"
)

const pastedFilename = "pasted.csv"

// UploadInput carries a CSV file chosen by the user.
type UploadInput struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// TextInput carries pasted or typed text.
type TextInput struct {
	Text string `json:"text"`
}

// ThresholdInput sets the alarm threshold.
type ThresholdInput struct {
	Threshold float64 `json:"threshold"`
}

// ChannelInput selects the plotted channel.
type ChannelInput struct {
	Channel int `json:"channel"`
}

// SmoothingInput toggles smoothing; Window 0 keeps the current window.
type SmoothingInput struct {
	Enabled bool `json:"enabled"`
	Window  int  `json:"window,omitempty"`
}

// PreviewInput asks for a table rendering of CSV text.
type PreviewInput struct {
	Text    string `json:"text"`
	MaxRows int    `json:"max_rows,omitempty"`
}

// PreviewResult is a tokenized CSV summary.
type PreviewResult struct {
	Header   []string `json:"header,omitempty"`
	Rows     int      `json:"rows"`
	Channels int      `json:"channels"`
	Table    string   `json:"table"`
}

// ExportInput selects the export format.
type ExportInput struct {
	Format string `json:"format"`
}

// AnalyzeResult is the detector's verbatim analysis text.
type AnalyzeResult struct {
	Analysis string `json:"analysis"`
}

// Empty is the payload of events that take no input.
type Empty struct{}

func requireText(value, what string) error {
	if strings.TrimSpace(value) == "" {
		return newError(CodeValidation, what+" is required", nil)
	}
	return nil
}

// Upload scores a CSV file with /predict and replaces the buffer with the
// file's rows and the returned scores.
func (d *Dashboard) Upload(ctx context.Context, in UploadInput) (State, error) {
	if strings.TrimSpace(in.Filename) == "" {
		return State{}, d.fail(newError(CodeValidation, "select a CSV file", nil))
	}
	if err := requireText(in.Content, "file content"); err != nil {
		return State{}, d.fail(err)
	}
	return d.ingest(ctx, in.Filename, in.Content, "upload")
}

// Paste submits pasted CSV text through the upload path.
func (d *Dashboard) Paste(ctx context.Context, in TextInput) (State, error) {
	if err := requireText(in.Text, "CSV text"); err != nil {
		return State{}, d.fail(err)
	}
	return d.ingest(ctx, pastedFilename, in.Text, "paste")
}

func (d *Dashboard) pasteFallback(ctx context.Context, text string) error {
	_, err := d.Paste(ctx, TextInput{Text: text})
	return err
}

func (d *Dashboard) ingest(ctx context.Context, filename, content, source string) (State, error) {
	start := time.Now()
	scores, err := d.cfg.Detector.Predict(ctx, filename, strings.NewReader(content))
	d.cfg.Observer.ObserveUpstream("predict", time.Since(start).Seconds())
	if err != nil {
		return State{}, d.fail(newError(CodeUpstream, "predict failed", err))
	}

	table := csvtok.Tokenize(content)
	values := table.Samples()

	// Applied whenever the response arrives, even if a newer action ran meanwhile.
	d.mu.Lock()
	d.buf.Reset(values, scores, d.opts)
	d.source = source
	d.afterMutationLocked()
	d.mu.Unlock()

	d.publishSeries()
	return d.State(), nil
}

// Analyze sends the plotted values and scores to /analyze.
func (d *Dashboard) Analyze(ctx context.Context, _ Empty) (AnalyzeResult, error) {
	d.mu.Lock()
	req := detector.AnalyzeRequest{Values: d.buf.Values(), Scores: d.buf.Scores()}
	d.mu.Unlock()

	start := time.Now()
	text, err := d.cfg.Detector.Analyze(ctx, req)
	d.cfg.Observer.ObserveUpstream("analyze", time.Since(start).Seconds())
	if err != nil {
		return AnalyzeResult{}, d.fail(newError(CodeUpstream, "analyze failed", err))
	}

	d.mu.Lock()
	d.analysis = text
	d.mu.Unlock()
	d.publishSeries()
	return AnalyzeResult{Analysis: text}, nil
}

func (d *Dashboard) requireStream() (*stream.Controller, error) {
	if d.stream == nil {
		return nil, d.fail(newError(CodeValidation, "socket session is not configured", nil))
	}
	return d.stream, nil
}

// Connect opens the socket session; it is a no-op when already connected.
func (d *Dashboard) Connect(ctx context.Context, _ Empty) (StreamStatus, error) {
	c, err := d.requireStream()
	if err != nil {
		return StreamStatus{}, err
	}
	if err := c.Connect(ctx); err != nil {
		return StreamStatus{}, d.fail(newError(CodeUpstream, "connect failed", err))
	}
	return d.status(), nil
}

// Disconnect closes the socket session.
func (d *Dashboard) Disconnect(_ context.Context, _ Empty) (StreamStatus, error) {
	c, err := d.requireStream()
	if err != nil {
		return StreamStatus{}, err
	}
	if err := c.Disconnect(); err != nil {
		return StreamStatus{}, d.fail(newError(CodeUpstream, "disconnect failed", err))
	}
	return d.status(), nil
}

// Send pushes text over the socket, or through the upload path when the
// socket is not open.
func (d *Dashboard) Send(ctx context.Context, in TextInput) (StreamStatus, error) {
	if err := requireText(in.Text, "CSV text or numeric value"); err != nil {
		return StreamStatus{}, d.fail(err)
	}
	if d.stream == nil {
		if err := d.pasteFallback(ctx, in.Text); err != nil {
			return StreamStatus{}, err
		}
		return d.status(), nil
	}
	if err := d.stream.Send(ctx, in.Text); err != nil {
		var ce *CodedError
		switch {
		case errors.As(err, &ce):
			// Fallback already recorded its own notice.
			return StreamStatus{}, err
		case errors.Is(err, stream.ErrEmptyMessage):
			return StreamStatus{}, d.fail(newError(CodeValidation, "CSV text or numeric value is required", err))
		default:
			return StreamStatus{}, d.fail(newError(CodeUpstream, "send failed", err))
		}
	}
	return d.status(), nil
}

func (d *Dashboard) status() StreamStatus {
	s := d.streamState()
	return StreamStatus{Connection: s.String(), Controls: stream.ControlsFor(s)}
}

// SaveSession stores the raw samples and scores under the session key.
func (d *Dashboard) SaveSession(_ context.Context, _ Empty) (Notice, error) {
	if d.cfg.Sessions == nil {
		return Notice{}, d.fail(newError(CodeInternal, "session storage is not configured", nil))
	}
	d.mu.Lock()
	snap := session.Snapshot{Values: d.buf.Raw(), Scores: d.buf.Scores()}
	d.mu.Unlock()

	if err := d.cfg.Sessions.Save(snap); err != nil {
		return Notice{}, d.fail(newError(CodeInternal, "save session failed", err))
	}
	return d.notice(LevelInfo, "session saved", true), nil
}

// LoadSession replaces the buffer with the stored snapshot without shape checks.
func (d *Dashboard) LoadSession(_ context.Context, _ Empty) (State, error) {
	if d.cfg.Sessions == nil {
		return State{}, d.fail(newError(CodeInternal, "session storage is not configured", nil))
	}
	snap, err := d.cfg.Sessions.Load()
	switch {
	case errors.Is(err, session.ErrNotFound):
		return State{}, d.fail(newError(CodeNotFound, "no session saved", err))
	case err != nil:
		return State{}, d.fail(newError(CodeInternal, "load session failed", err))
	}

	d.mu.Lock()
	d.buf.Reset(snap.Values, snap.Scores, d.opts)
	d.source = "session"
	d.afterMutationLocked()
	d.mu.Unlock()

	d.publishSeries()
	return d.State(), nil
}

// SetThreshold recolors every stored point against the new threshold.
func (d *Dashboard) SetThreshold(_ context.Context, in ThresholdInput) (State, error) {
	if math.IsNaN(in.Threshold) || math.IsInf(in.Threshold, 0) {
		return State{}, d.fail(newError(CodeValidation, "threshold must be a finite number", nil))
	}
	d.mu.Lock()
	d.opts.Threshold = in.Threshold
	d.buf.Recolor(d.opts)
	d.afterMutationLocked()
	d.mu.Unlock()

	d.publishSeries()
	return d.State(), nil
}

// SelectChannel re-projects the stored raw samples onto another channel.
func (d *Dashboard) SelectChannel(_ context.Context, in ChannelInput) (State, error) {
	d.mu.Lock()
	channels := d.buf.Channels()
	if in.Channel < 0 || (d.buf.Len() > 0 && in.Channel >= channels) {
		d.mu.Unlock()
		return State{}, d.fail(newError(CodeValidation,
			fmt.Sprintf("channel %d out of range (channels=%d)", in.Channel, channels), nil))
	}
	d.opts.Channel = in.Channel
	d.buf.Reproject(d.opts)
	d.afterMutationLocked()
	d.mu.Unlock()

	d.publishSeries()
	return d.State(), nil
}

// SetSmoothing toggles the moving average and re-projects the stored values.
func (d *Dashboard) SetSmoothing(_ context.Context, in SmoothingInput) (State, error) {
	if in.Window < 0 {
		return State{}, d.fail(newError(CodeValidation, "smoothing window must be at least 1", nil))
	}
	d.mu.Lock()
	d.opts.Smoothing = in.Enabled
	if in.Window > 0 {
		d.opts.Window = in.Window
	}
	d.buf.Reproject(d.opts)
	d.afterMutationLocked()
	d.mu.Unlock()

	d.publishSeries()
	return d.State(), nil
}

// Preview tokenizes CSV text and renders it as a table.
func (d *Dashboard) Preview(_ context.Context, in PreviewInput) (PreviewResult, error) {
	if err := requireText(in.Text, "CSV text"); err != nil {
		return PreviewResult{}, d.fail(err)
	}
	rows := in.MaxRows
	if rows <= 0 {
		rows = d.cfg.PreviewRows
	}
	if rows <= 0 {
		rows = csvtok.DefaultPreviewRows
	}
	table := csvtok.Tokenize(in.Text)
	var out bytes.Buffer
	if err := csvtok.RenderPreview(&out, table, rows); err != nil {
		return PreviewResult{}, d.fail(newError(CodeInternal, "render preview failed", err))
	}
	res := PreviewResult{Header: table.Header, Rows: len(table.Rows), Channels: table.Width(), Table: out.String()}
	d.publish(feed.NewEvent(feed.KindPreview, res))
	return res, nil
}

// Export renders the buffer in the requested format and stores the file.
func (d *Dashboard) Export(_ context.Context, in ExportInput) (export.Meta, error) {
	format, err := export.ParseFormat(in.Format)
	if err != nil {
		return export.Meta{}, d.fail(newError(CodeValidation, err.Error(), nil))
	}
	if d.cfg.Exports == nil {
		return export.Meta{}, d.fail(newError(CodeInternal, "export storage is not configured", nil))
	}

	data, doc, err := d.Render(format)
	if err != nil {
		return export.Meta{}, err
	}
	meta, err := d.cfg.Exports.Save(export.Meta{
		Format:    format,
		Points:    len(doc.Values),
		Threshold: doc.Options.Threshold,
		Channel:   doc.Options.Channel,
		CreatedAt: doc.ExportedAt,
	}, data)
	if err != nil {
		return export.Meta{}, d.fail(newError(CodeInternal, "store export failed", err))
	}
	return meta, nil
}

// Render encodes the current buffer without storing it.
func (d *Dashboard) Render(format export.Format) ([]byte, export.Document, error) {
	d.mu.Lock()
	doc := export.NewDocument(d.buf, d.opts, d.analysis, d.now())
	points := d.buf.Points()
	d.mu.Unlock()

	if len(points) == 0 {
		return nil, doc, d.fail(newError(CodeValidation, "nothing to export", export.ErrNoPoints))
	}

	var out bytes.Buffer
	var err error
	switch format {
	case export.FormatCSV:
		err = export.CSV(&out, points)
	case export.FormatJSON:
		err = export.JSON(&out, doc)
	default:
		err = export.PNG(&out, doc, d.cfg.Chart)
	}
	if err != nil {
		return nil, doc, d.fail(newError(CodeInternal, "render export failed", err))
	}
	return out.Bytes(), doc, nil
}
