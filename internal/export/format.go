// Package export renders the buffered series as CSV, JSON or a PNG chart
// and keeps exported files on disk.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/dgnsrekt/anomaly_dashboard/internal/series"
)

// Format names an export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatPNG  Format = "png"
)

// ErrNoPoints is returned when there is nothing to export.
var ErrNoPoints = errors.New("export: no points to export")

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatCSV, FormatJSON, FormatPNG:
		return f, nil
	case "":
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("export: unknown format %q (want csv, json or png)", s)
	}
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	default:
		return "image/png"
	}
}

// Document is the JSON export shape.
type Document struct {
	ExportedAt   time.Time       `json:"exported_at"`
	Options      series.Options  `json:"options"`
	ChannelNames []string        `json:"channel_names"`
	Labels       []string        `json:"labels"`
	Values       []float64       `json:"values"`
	Scores       []float64       `json:"scores"`
	Colors       []string        `json:"colors"`
	Raw          []series.Sample `json:"raw"`
	Analysis     string          `json:"analysis,omitempty"`
}

// NewDocument snapshots a buffer into a Document.
func NewDocument(buf *series.Buffer, opts series.Options, analysis string, at time.Time) Document {
	return Document{
		ExportedAt:   at.UTC(),
		Options:      opts,
		ChannelNames: buf.ChannelNames(),
		Labels:       buf.Labels(),
		Values:       buf.Values(),
		Scores:       buf.Scores(),
		Colors:       buf.Colors(),
		Raw:          buf.Raw(),
		Analysis:     analysis,
	}
}

// CSV writes label,value,score,color rows.
func CSV(w io.Writer, points []series.Point) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"label", "value", "score", "color"}); err != nil {
		return fmt.Errorf("export: csv header: %w", err)
	}
	rows := lo.Map(points, func(p series.Point, _ int) []string {
		return []string{
			strconv.Itoa(p.Label),
			strconv.FormatFloat(p.Value, 'g', -1, 64),
			strconv.FormatFloat(p.Score, 'g', -1, 64),
			p.Color,
		}
	})
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("export: csv rows: %w", err)
	}
	return nil
}

// JSON writes doc indented.
func JSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("export: json: %w", err)
	}
	return nil
}
