// Package dashboard owns one anomaly-dashboard session: the rolling buffer,
// its display options, the socket session and the user-facing notices. Every
// mutation of the buffer goes through the Dashboard mutex.
package dashboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/dgnsrekt/anomaly_dashboard/internal/detector"
	"github.com/dgnsrekt/anomaly_dashboard/internal/export"
	"github.com/dgnsrekt/anomaly_dashboard/internal/feed"
	"github.com/dgnsrekt/anomaly_dashboard/internal/notify"
	"github.com/dgnsrekt/anomaly_dashboard/internal/series"
	"github.com/dgnsrekt/anomaly_dashboard/internal/session"
	"github.com/dgnsrekt/anomaly_dashboard/internal/stream"
)

// Detector is the subset of the detector client the dashboard calls.
type Detector interface {
	Predict(ctx context.Context, filename string, content io.Reader) ([]float64, error)
	Analyze(ctx context.Context, req detector.AnalyzeRequest) (string, error)
}

// Sessions persists snapshots under the session key.
type Sessions interface {
	Save(snap session.Snapshot) error
	Load() (session.Snapshot, error)
}

// Alarmer delivers alarm notifications.
type Alarmer interface {
	Alarm(ctx context.Context, a notify.Alarm) error
}

// Observer receives pipeline measurements; metrics.Metrics satisfies it.
type Observer interface {
	CountFrame(outcome string)
	CountEvent(kind, result string)
	ObserveUpstream(endpoint string, seconds float64)
	SetBuffer(points, alarms int)
	SetOpen(open bool)
	CountNotice(level string)
}

// Config wires a Dashboard. Only Detector is required.
type Config struct {
	Detector Detector
	Sessions Sessions
	Exports  *export.Store
	Broker   *feed.Broker
	Observer Observer
	Alarms   Alarmer
	Recorder stream.Recorder

	// StreamURL is the socket endpoint; empty disables the socket session.
	StreamURL   string
	Options     series.Options
	Capacity    int
	Chart       export.ChartStyle
	PreviewRows int
}

// Dashboard is the explicit session object shared by the socket controller
// and the upload handlers.
type Dashboard struct {
	cfg Config

	mu       sync.Mutex
	buf      *series.Buffer
	opts     series.Options
	analysis string
	source   string

	notices  noticeLog
	stream   *stream.Controller
	handlers map[EventKind]handler
	now      func() time.Time
}

// New builds a Dashboard and its dispatch table.
func New(cfg Config) *Dashboard {
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Options == (series.Options{}) {
		cfg.Options = series.DefaultOptions()
	}
	if cfg.Chart.Width == 0 {
		cfg.Chart = export.DefaultChartStyle()
	}
	d := &Dashboard{
		cfg:  cfg,
		buf:  series.NewBuffer(cfg.Capacity),
		opts: cfg.Options,
		now:  time.Now,
	}
	if cfg.StreamURL != "" {
		d.stream = stream.NewController(stream.Config{
			URL:      cfg.StreamURL,
			Sink:     d,
			Fallback: d.pasteFallback,
			OnState:  d.onStreamState,
			Recorder: cfg.Recorder,
			Counter:  cfg.Observer,
		})
	}
	d.registerHandlers()
	return d
}

// Close disconnects the socket session if one is open.
func (d *Dashboard) Close() error {
	if d.stream == nil {
		return nil
	}
	return d.stream.Disconnect()
}

// ResetSeries implements stream.Sink for server bulk pushes.
func (d *Dashboard) ResetSeries(values []series.Sample, scores []float64) {
	d.mu.Lock()
	d.buf.Reset(values, scores, d.opts)
	d.source = "stream"
	d.afterMutationLocked()
	d.mu.Unlock()
	d.publishSeries()
}

// AppendPoint implements stream.Sink for single streamed points.
func (d *Dashboard) AppendPoint(value, score float64) {
	d.mu.Lock()
	p := d.buf.Append(value, score, d.opts)
	opts := d.opts
	d.afterMutationLocked()
	d.mu.Unlock()

	d.publish(feed.NewEvent(feed.KindPoint, p))
	if opts.IsAlarm(p.Score) {
		d.raiseAlarm(p, opts)
	}
}

func (d *Dashboard) raiseAlarm(p series.Point, opts series.Options) {
	if d.cfg.Alarms == nil {
		return
	}
	alarm := notify.Alarm{Label: p.Label, Value: p.Value, Score: p.Score, Threshold: opts.Threshold}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.cfg.Alarms.Alarm(ctx, alarm); err != nil {
			slog.Warn("alarm notification failed", "label", p.Label, "error", err)
		}
	}()
}

func (d *Dashboard) afterMutationLocked() {
	alarms := lo.CountBy(d.buf.Scores(), d.opts.IsAlarm)
	d.cfg.Observer.SetBuffer(d.buf.Len(), alarms)
}

func (d *Dashboard) onStreamState(s stream.State) {
	d.cfg.Observer.SetOpen(s == stream.Open)
	d.publish(feed.NewEvent(feed.KindStatus, StreamStatus{
		Connection: s.String(),
		Controls:   stream.ControlsFor(s),
	}))
}

// StreamStatus is published on every socket state change.
type StreamStatus struct {
	Connection string          `json:"connection"`
	Controls   stream.Controls `json:"controls"`
}

// State is the render-ready view of the session.
type State struct {
	Labels       []string        `json:"labels"`
	Values       []float64       `json:"values"`
	Scores       []float64       `json:"scores"`
	Colors       []string        `json:"colors"`
	ChannelNames []string        `json:"channel_names"`
	Options      series.Options  `json:"options"`
	Points       int             `json:"points"`
	Alarms       int             `json:"alarms"`
	Source       string          `json:"source,omitempty"`
	Analysis     string          `json:"analysis,omitempty"`
	Connection   string          `json:"connection"`
	Controls     stream.Controls `json:"controls"`
}

// State returns a copy of the current session view.
func (d *Dashboard) State() State {
	conn := d.streamState()
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stateLocked(conn)
}

func (d *Dashboard) stateLocked(conn stream.State) State {
	scores := d.buf.Scores()
	return State{
		Labels:       d.buf.Labels(),
		Values:       d.buf.Values(),
		Scores:       scores,
		Colors:       d.buf.Colors(),
		ChannelNames: d.buf.ChannelNames(),
		Options:      d.opts,
		Points:       d.buf.Len(),
		Alarms:       lo.CountBy(scores, d.opts.IsAlarm),
		Source:       d.source,
		Analysis:     d.analysis,
		Connection:   conn.String(),
		Controls:     stream.ControlsFor(conn),
	}
}

func (d *Dashboard) streamState() stream.State {
	if d.stream == nil {
		return stream.Disconnected
	}
	return d.stream.State()
}

// Notices returns the retained notices, oldest first.
func (d *Dashboard) Notices() []Notice { return d.notices.list() }

// InitialEvents returns the events a new feed viewer needs to render the
// current session.
func (d *Dashboard) InitialEvents() []feed.Event {
	st := d.State()
	return []feed.Event{
		feed.NewEvent(feed.KindSeries, st),
		feed.NewEvent(feed.KindStatus, StreamStatus{Connection: st.Connection, Controls: st.Controls}),
	}
}

func (d *Dashboard) publishSeries() {
	if d.cfg.Broker == nil {
		return
	}
	d.publish(feed.NewEvent(feed.KindSeries, d.State()))
}

func (d *Dashboard) publish(evt feed.Event) {
	if d.cfg.Broker != nil {
		d.cfg.Broker.Publish(evt)
	}
}

func (d *Dashboard) notice(level, text string, blocking bool) Notice {
	n := d.notices.add(Notice{Level: level, Text: text, Blocking: blocking, At: d.now().UTC()})
	d.cfg.Observer.CountNotice(level)
	d.publish(feed.NewEvent(feed.KindNotice, n))
	return n
}

// fail records the notice matching err's class and returns err unchanged.
// Validation errors block; upstream errors do not.
func (d *Dashboard) fail(err error) error {
	text := noticeText(err)
	switch ErrorCode(err) {
	case CodeValidation:
		d.notice(LevelError, text, true)
	case CodeNotFound:
		d.notice(LevelWarn, text, true)
	default:
		d.notice(LevelError, text, false)
	}
	return err
}

func noticeText(err error) string {
	var ce *CodedError
	if !errors.As(err, &ce) {
		return err.Error()
	}
	if ce.Cause == nil {
		return ce.Message
	}
	return ce.Message + ": " + ce.Cause.Error()
}

type nopObserver struct{}

func (nopObserver) CountFrame(string)               {}
func (nopObserver) CountEvent(string, string)       {}
func (nopObserver) ObserveUpstream(string, float64) {}
func (nopObserver) SetBuffer(int, int)              {}
func (nopObserver) SetOpen(bool)                    {}
func (nopObserver) CountNotice(string)              {}
