package series

import (
	"strconv"

	"github.com/samber/lo"
)

// Point is one plotted entry: the raw sample, its projected value and the
// companion anomaly score.
type Point struct {
	Label int     `json:"label"`
	Raw   Sample  `json:"raw"`
	Value float64 `json:"value"`
	Score float64 `json:"score"`
	Color string  `json:"color"`
}

// Buffer holds the parallel value/score sequences behind both charts.
// Buffer is not safe for concurrent use.
type Buffer struct {
	capacity int
	points   []Point
}

// NewBuffer returns an empty buffer. A non-positive capacity selects
// DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity, points: make([]Point, 0, capacity)}
}

// Capacity returns the maximum number of retained points.
func (b *Buffer) Capacity() int { return b.capacity }

// Len returns the number of stored points.
func (b *Buffer) Len() int { return len(b.points) }

// Reset replaces the buffer contents. Missing scores are zero-filled. When
// more than Capacity points are supplied only the most recent are kept.
func (b *Buffer) Reset(values []Sample, scores []float64, opts Options) {
	points := make([]Point, len(values))
	for i, raw := range values {
		var score float64
		if i < len(scores) {
			score = scores[i]
		}
		points[i] = Point{
			Label: i,
			Raw:   raw,
			Value: raw.Channel(opts.Channel),
			Score: score,
			Color: opts.ColorFor(score),
		}
	}
	if opts.Smoothing {
		applySmoothing(points, opts.Window)
	}
	if n := len(points); n > b.capacity {
		points = points[n-b.capacity:]
	}
	b.points = append(b.points[:0:0], points...)
}

// Append adds one point after the last label, evicting the oldest point once
// the buffer is over capacity.
func (b *Buffer) Append(value, score float64, opts Options) Point {
	label := 0
	if n := len(b.points); n > 0 {
		label = b.points[n-1].Label + 1
	}
	p := Point{
		Label: label,
		Raw:   Sample{value},
		Value: value,
		Score: score,
		Color: opts.ColorFor(score),
	}
	b.points = append(b.points, p)
	if len(b.points) > b.capacity {
		b.points = b.points[1:]
	}
	return p
}

// Recolor re-tags every stored score against opts.Threshold.
func (b *Buffer) Recolor(opts Options) {
	for i := range b.points {
		b.points[i].Color = opts.ColorFor(b.points[i].Score)
	}
}

// Reproject re-derives every value from its raw sample for opts.Channel,
// smoothing again when enabled.
func (b *Buffer) Reproject(opts Options) {
	for i := range b.points {
		b.points[i].Value = b.points[i].Raw.Channel(opts.Channel)
	}
	if opts.Smoothing {
		applySmoothing(b.points, opts.Window)
	}
}

// Points returns a copy of the stored points, oldest first.
func (b *Buffer) Points() []Point {
	out := make([]Point, len(b.points))
	copy(out, b.points)
	return out
}

// Values returns the plotted value series.
func (b *Buffer) Values() []float64 {
	return lo.Map(b.points, func(p Point, _ int) float64 { return p.Value })
}

// Scores returns the score series.
func (b *Buffer) Scores() []float64 {
	return lo.Map(b.points, func(p Point, _ int) float64 { return p.Score })
}

// Colors returns the per-point score colors.
func (b *Buffer) Colors() []string {
	return lo.Map(b.points, func(p Point, _ int) string { return p.Color })
}

// Labels returns the stringified index labels.
func (b *Buffer) Labels() []string {
	return lo.Map(b.points, func(p Point, _ int) string { return strconv.Itoa(p.Label) })
}

// Raw returns the stored raw samples.
func (b *Buffer) Raw() []Sample {
	return lo.Map(b.points, func(p Point, _ int) Sample { return p.Raw })
}

// Channels returns the width of the first stored sample, or 0 when empty.
func (b *Buffer) Channels() int {
	if len(b.points) == 0 {
		return 0
	}
	return len(b.points[0].Raw)
}

// ChannelNames lists selectable channels: "channel_<i>" for multi-channel
// data, a single "value" entry otherwise.
func (b *Buffer) ChannelNames() []string {
	n := b.Channels()
	if n <= 1 {
		return []string{"value"}
	}
	names := make([]string, n)
	for i := range names {
		names[i] = "channel_" + strconv.Itoa(i)
	}
	return names
}

func applySmoothing(points []Point, w int) {
	vals := lo.Map(points, func(p Point, _ int) float64 { return p.Value })
	for i, v := range Smooth(vals, w) {
		points[i].Value = v
	}
}
