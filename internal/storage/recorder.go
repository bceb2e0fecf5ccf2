// Package storage records socket traffic as JSON lines for later replay.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// ErrClosed is returned by Write after Close.
	ErrClosed = errors.New("storage: recorder closed")
	// ErrBufferFull is returned when the queue is saturated; the record is dropped.
	ErrBufferFull = errors.New("storage: recorder buffer full")
)

const (
	defaultBufferSize = 1024
	defaultMaxSizeMB  = 50
	closeDrainTimeout = 5 * time.Second
)

// Recorder writes records asynchronously to
// <baseDir>/<YYYY-MM-DD>/<subDir>/<sessionID>.jsonl, rotating by size with
// lumberjack and by UTC date.
type Recorder struct {
	baseDir   string
	subDir    string
	sessionID string
	maxSizeMB int

	writeCh chan any
	done    chan struct{}
	closed  atomic.Bool
	wg      sync.WaitGroup

	mu          sync.Mutex
	currentDate string
	currentPath string
	out         *lumberjack.Logger
	now         func() time.Time

	written atomic.Int64
	dropped atomic.Int64
}

// Options tunes a Recorder. Zero values pick defaults.
type Options struct {
	BufferSize int
	MaxSizeMB  int
	Clock      func() time.Time
}

// NewRecorder starts the background writer. sessionID names the file; an
// empty one falls back to the start timestamp.
func NewRecorder(baseDir, subDir, sessionID string, opts Options) *Recorder {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = defaultMaxSizeMB
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	r := &Recorder{
		baseDir:   baseDir,
		subDir:    subDir,
		sessionID: sessionID,
		maxSizeMB: opts.MaxSizeMB,
		writeCh:   make(chan any, opts.BufferSize),
		done:      make(chan struct{}),
		now:       opts.Clock,
	}
	if r.sessionID == "" {
		r.sessionID = fmt.Sprintf("%d", r.now().Unix())
	}

	r.wg.Add(1)
	go r.loop()
	return r
}

// Write queues a record without blocking.
func (r *Recorder) Write(record any) error {
	if r.closed.Load() {
		return ErrClosed
	}
	select {
	case r.writeCh <- record:
		return nil
	default:
		r.dropped.Add(1)
		slog.Warn("recorder buffer full, dropping record", "subdir", r.subDir)
		return ErrBufferFull
	}
}

// Close stops the writer after draining queued records.
func (r *Recorder) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(r.done)
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.out != nil {
		return r.out.Close()
	}
	return nil
}

// Stats reports how many records were written and dropped.
func (r *Recorder) Stats() (written, dropped int64) {
	return r.written.Load(), r.dropped.Load()
}

// Path returns the file currently being written, empty before the first record.
func (r *Recorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentPath
}

func (r *Recorder) loop() {
	defer r.wg.Done()
	for {
		select {
		case rec := <-r.writeCh:
			r.writeRecord(rec)
		case <-r.done:
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	deadline := time.After(closeDrainTimeout)
	for {
		select {
		case rec := <-r.writeCh:
			r.writeRecord(rec)
		case <-deadline:
			slog.Warn("recorder close timeout, records lost", "pending", len(r.writeCh))
			return
		default:
			return
		}
	}
}

func (r *Recorder) writeRecord(rec any) {
	data, err := json.Marshal(rec)
	if err != nil {
		slog.Error("recorder marshal failed", "error", err, "subdir", r.subDir)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	date := r.now().UTC().Format("2006-01-02")
	if r.out == nil || date != r.currentDate {
		if err := r.openForDate(date); err != nil {
			slog.Error("recorder open failed", "error", err, "subdir", r.subDir)
			return
		}
	}
	if _, err := r.out.Write(append(data, '\n')); err != nil {
		slog.Error("recorder write failed", "error", err, "file", r.currentPath)
		return
	}
	r.written.Add(1)
}

func (r *Recorder) openForDate(date string) error {
	if r.out != nil {
		_ = r.out.Close()
	}
	dir := filepath.Join(r.baseDir, date, r.subDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", dir, err)
	}
	r.currentPath = filepath.Join(dir, r.sessionID+".jsonl")
	r.out = &lumberjack.Logger{
		Filename:   r.currentPath,
		MaxSize:    r.maxSizeMB,
		MaxBackups: 20,
		MaxAge:     30,
	}
	r.currentDate = date
	slog.Info("recording stream", "file", r.currentPath)
	return nil
}
