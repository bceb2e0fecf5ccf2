package dashboard

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const maxNotices = 50

// Notice levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Notice is a user-facing message. Blocking notices correspond to aborted
// user actions and must be acknowledged by the viewer.
type Notice struct {
	ID       string    `json:"id"`
	Level    string    `json:"level"`
	Text     string    `json:"text"`
	Blocking bool      `json:"blocking"`
	At       time.Time `json:"at"`
}

// noticeLog keeps the most recent notices.
type noticeLog struct {
	mu    sync.Mutex
	items []Notice
}

func (l *noticeLog) add(n Notice) Notice {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	l.mu.Lock()
	l.items = append(l.items, n)
	if over := len(l.items) - maxNotices; over > 0 {
		l.items = append(l.items[:0:0], l.items[over:]...)
	}
	l.mu.Unlock()
	return n
}

func (l *noticeLog) list() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Notice(nil), l.items...)
}
