package session

import (
	"encoding/json"
	"fmt"

	"github.com/dgnsrekt/anomaly_dashboard/internal/series"
)

// Key is the storage key the dashboard saves its session under.
const Key = "md_session"

// Snapshot is the saved pair of sequences. It carries no version; a
// snapshot of the wrong shape is not rejected here.
type Snapshot struct {
	Values []series.Sample `json:"values"`
	Scores []float64       `json:"scores"`
}

// Encode serializes the snapshot to its stored string form.
func (s Snapshot) Encode() (string, error) {
	if s.Values == nil {
		s.Values = []series.Sample{}
	}
	if s.Scores == nil {
		s.Scores = []float64{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("session snapshot: encode: %w", err)
	}
	return string(b), nil
}

// Decode parses a stored snapshot string.
func Decode(data string) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return Snapshot{}, fmt.Errorf("session snapshot: decode: %w", err)
	}
	return s, nil
}

// Save encodes snap and writes it under Key.
func (s *Store) Save(snap Snapshot) error {
	data, err := snap.Encode()
	if err != nil {
		return err
	}
	return s.Put(Key, []byte(data))
}

// Load reads and decodes the snapshot stored under Key. ErrNotFound is
// returned when nothing was saved.
func (s *Store) Load() (Snapshot, error) {
	data, err := s.Get(Key)
	if err != nil {
		return Snapshot{}, err
	}
	return Decode(string(data))
}
