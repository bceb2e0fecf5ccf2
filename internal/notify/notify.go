// Package notify posts plain-text alarm notifications to a webhook such as ntfy.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Alarm describes one streamed point whose score crossed the threshold.
type Alarm struct {
	Label     int
	Value     float64
	Score     float64
	Threshold float64
}

// Message renders the alarm as the notification body.
func (a Alarm) Message() string {
	return fmt.Sprintf("anomaly at point %d: score %.4g exceeds threshold %.4g (value %.4g)",
		a.Label, a.Score, a.Threshold, a.Value)
}

// Notifier sends alarms to a fixed endpoint.
type Notifier struct {
	client   *http.Client
	endpoint string
}

// New returns a Notifier; a nil client uses http.DefaultClient.
func New(client *http.Client, endpoint string) *Notifier {
	return &Notifier{client: client, endpoint: endpoint}
}

// Alarm posts the rendered alarm message.
func (n *Notifier) Alarm(ctx context.Context, a Alarm) error {
	return Send(ctx, n.client, n.endpoint, a.Message())
}

// Send posts message to endpoint as text/plain.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	if endpoint == "" {
		return errors.New("notify: endpoint is required")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Title", "anomaly alarm")

	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: alarm notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
