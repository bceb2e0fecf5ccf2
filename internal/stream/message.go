package stream

import (
	"encoding/json"

	"github.com/dgnsrekt/anomaly_dashboard/internal/series"
)

// Message is a server push. Either field may be absent.
type Message struct {
	Values []series.Sample `json:"values,omitempty"`
	Scores []float64       `json:"scores,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Outcome names how a frame was applied.
type Outcome string

const (
	OutcomeReset     Outcome = "reset"
	OutcomeAppend    Outcome = "append"
	OutcomeMalformed Outcome = "malformed"
	OutcomeServerErr Outcome = "server_error"
	OutcomeIgnored   Outcome = "ignored"
)

// Sink receives decoded series updates.
type Sink interface {
	ResetSeries(values []series.Sample, scores []float64)
	AppendPoint(value, score float64)
}

// Apply decodes one frame and forwards it to sink:
//
//	values + scores -> reset
//	values only     -> reset with zero scores
//	values + null   -> ignored
//	scores only     -> append the last value (or 0) with the last score
func Apply(data []byte, sink Sink) (Outcome, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return OutcomeMalformed, err
	}
	switch {
	case msg.Values != nil && msg.Scores != nil:
		sink.ResetSeries(msg.Values, msg.Scores)
		return OutcomeReset, nil
	case msg.Values != nil && scoresNull(data):
		return OutcomeIgnored, nil
	case msg.Values != nil:
		sink.ResetSeries(msg.Values, make([]float64, len(msg.Values)))
		return OutcomeReset, nil
	case len(msg.Scores) > 0:
		sink.AppendPoint(lastValue(msg.Values), msg.Scores[len(msg.Scores)-1])
		return OutcomeAppend, nil
	case msg.Error != "":
		return OutcomeServerErr, nil
	}
	return OutcomeIgnored, nil
}

// scoresNull reports whether the frame carries an explicit "scores": null,
// which is distinct from an absent scores field.
func scoresNull(data []byte) bool {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return false
	}
	v, ok := fields["scores"]
	return ok && v == nil
}

func lastValue(values []series.Sample) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1].Channel(0)
}
