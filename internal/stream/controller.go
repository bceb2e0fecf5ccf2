// Package stream manages the live socket session with the detector.
package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

var (
	// ErrNotOpen is returned by Send when no connection is open and no
	// fallback is configured.
	ErrNotOpen = errors.New("stream: connection not open")
	// ErrEmptyMessage is returned by Send for blank input.
	ErrEmptyMessage = errors.New("stream: enter CSV text or a numeric value")
)

// State is the controller lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Open
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	default:
		return "disconnected"
	}
}

// Controls mirrors which session actions are currently available.
type Controls struct {
	Connect    bool `json:"connect"`
	Send       bool `json:"send"`
	Disconnect bool `json:"disconnect"`
}

// ControlsFor returns the action availability for s.
func ControlsFor(s State) Controls {
	switch s {
	case Open:
		return Controls{Send: true, Disconnect: true}
	case Connecting:
		return Controls{}
	default:
		return Controls{Connect: true}
	}
}

// Frame is one recorded socket frame.
type Frame struct {
	At        time.Time `json:"at"`
	Direction string    `json:"direction"`
	Outcome   Outcome   `json:"outcome,omitempty"`
	Payload   string    `json:"payload"`
}

// Recorder persists frames; storage.Recorder satisfies it.
type Recorder interface {
	Write(record any) error
}

// Counter observes frame outcomes.
type Counter interface {
	CountFrame(outcome string)
}

// Config wires a Controller.
type Config struct {
	URL  string
	Sink Sink

	// Fallback handles Send while the connection is not open.
	Fallback func(ctx context.Context, text string) error
	// OnState is called after every state transition.
	OnState func(State)

	Recorder Recorder
	Counter  Counter
}

// Controller owns at most one live connection. There is no automatic
// reconnect: after a close Connect must be called again.
type Controller struct {
	cfg Config

	mu    sync.Mutex
	state State
	conn  net.Conn
	rw    io.ReadWriter
	done  chan struct{}

	writeMu sync.Mutex
}

// NewController creates a disconnected controller.
func NewController(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Controls returns the actions available in the current state.
func (c *Controller) Controls() Controls {
	return ControlsFor(c.State())
}

// Connect opens the socket. It is a no-op unless the controller is
// disconnected.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = Connecting
	c.mu.Unlock()
	c.emit(Connecting)

	slog.Debug("stream connecting", "url", c.cfg.URL)
	conn, br, _, err := ws.Dial(ctx, c.cfg.URL)
	if err != nil {
		c.mu.Lock()
		c.state = Disconnected
		c.mu.Unlock()
		c.emit(Disconnected)
		return fmt.Errorf("stream: dial: %w", err)
	}

	var rw io.ReadWriter = conn
	if br != nil {
		rw = bufferedConn{Reader: br, Writer: conn}
	}
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.rw = rw
	c.done = done
	c.state = Open
	c.mu.Unlock()

	slog.Info("stream open", "url", c.cfg.URL)
	c.emit(Open)
	go c.readLoop(conn, rw, done)
	return nil
}

// Disconnect closes the live connection and waits for the read loop to
// finish. It is a no-op when nothing is open.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	err := wsutil.WriteClientMessage(conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
	c.writeMu.Unlock()
	if err != nil {
		slog.Debug("stream close frame write failed", "error", err)
	}
	_ = conn.Close()
	<-done
	return nil
}

// Send writes text to the server. While the connection is not open the text
// is handed to the configured fallback instead.
func (c *Controller) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()

	if state != Open || conn == nil {
		if c.cfg.Fallback == nil {
			return ErrNotOpen
		}
		slog.Info("stream not open, falling back to upload", "bytes", len(text))
		return c.cfg.Fallback(ctx, text)
	}

	c.writeMu.Lock()
	err := wsutil.WriteClientText(conn, []byte(text))
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("stream: send: %w", err)
	}
	c.record(Frame{At: time.Now().UTC(), Direction: "out", Payload: text})
	return nil
}

func (c *Controller) readLoop(conn net.Conn, rw io.ReadWriter, done chan struct{}) {
	defer close(done)
	for {
		data, err := wsutil.ReadServerText(rw)
		if err != nil {
			c.closed(conn, err)
			return
		}
		c.handle(data)
	}
}

func (c *Controller) handle(data []byte) {
	outcome, err := Apply(data, c.cfg.Sink)
	switch outcome {
	case OutcomeMalformed:
		slog.Debug("stream payload malformed", "error", err, "bytes", len(data))
	case OutcomeServerErr:
		slog.Warn("stream server reported error", "payload", string(data))
	case OutcomeIgnored:
		slog.Debug("stream payload ignored", "bytes", len(data))
	}
	if c.cfg.Counter != nil {
		c.cfg.Counter.CountFrame(string(outcome))
	}
	c.record(Frame{At: time.Now().UTC(), Direction: "in", Outcome: outcome, Payload: string(data)})
}

func (c *Controller) closed(conn net.Conn, cause error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.rw = nil
		c.state = Disconnected
	}
	c.mu.Unlock()
	_ = conn.Close()

	var closedErr wsutil.ClosedError
	if errors.As(cause, &closedErr) || errors.Is(cause, net.ErrClosed) || errors.Is(cause, io.EOF) {
		slog.Info("stream closed", "url", c.cfg.URL)
	} else {
		slog.Warn("stream closed with error", "url", c.cfg.URL, "error", cause)
	}
	c.emit(Disconnected)
}

func (c *Controller) emit(s State) {
	if c.cfg.OnState != nil {
		c.cfg.OnState(s)
	}
}

func (c *Controller) record(f Frame) {
	if c.cfg.Recorder == nil {
		return
	}
	if err := c.cfg.Recorder.Write(f); err != nil {
		slog.Debug("stream frame record failed", "error", err)
	}
}

type bufferedConn struct {
	*bufio.Reader
	io.Writer
}

// EndpointURL derives the socket endpoint from the detector origin, using
// wss when the origin is served over https.
func EndpointURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("stream: parse base url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("stream: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("stream: base url %q has no host", base)
	}
	u.Path = "/ws"
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
