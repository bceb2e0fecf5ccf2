package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRecorderWritesDatedJSONL(t *testing.T) {
	dir := t.TempDir()
	clock := func() time.Time { return time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC) }
	r := NewRecorder(dir, "stream", "abc123", Options{Clock: clock})

	for i := 0; i < 3; i++ {
		if err := r.Write(map[string]int{"n": i}); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	want := filepath.Join(dir, "2026-03-04", "stream", "abc123.jsonl")
	f, err := os.Open(want)
	if err != nil {
		t.Fatalf("open %s: %v", want, err)
	}
	defer f.Close()

	var lines []map[string]int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]int
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 3 || lines[2]["n"] != 2 {
		t.Fatalf("lines = %v; want 3 records in order", lines)
	}
	if written, dropped := r.Stats(); written != 3 || dropped != 0 {
		t.Fatalf("Stats() = %d,%d; want 3,0", written, dropped)
	}
}

func TestRecorderRejectsAfterClose(t *testing.T) {
	r := NewRecorder(t.TempDir(), "stream", "", Options{BufferSize: 1})
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := r.Write("late"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Write() error = %v; want ErrClosed", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
