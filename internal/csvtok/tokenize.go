// Package csvtok splits pasted or uploaded CSV text into typed rows.
//
// The tokenizer is intentionally loose: fields are separated by commas or
// runs of whitespace, quoting is not supported, and a first line containing
// any non-numeric cell is taken as the header.
package csvtok

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dgnsrekt/anomaly_dashboard/internal/series"
)

var fieldSep = regexp.MustCompile(`[,\s]+`)

// Cell is a numeric value or, when parsing fails, the verbatim token.
type Cell struct {
	Num   float64
	Str   string
	IsNum bool
}

// String returns the cell as it would be displayed.
func (c Cell) String() string {
	if c.IsNum {
		return strconv.FormatFloat(c.Num, 'g', -1, 64)
	}
	return c.Str
}

// Row is an ordered sequence of cells. Rows are not required to share a width.
type Row []Cell

// Floats projects the row into a sample. Non-numeric cells become 0 so that
// channel positions stay aligned with the header.
func (r Row) Floats() series.Sample {
	out := make(series.Sample, len(r))
	for i, c := range r {
		if c.IsNum {
			out[i] = c.Num
		}
	}
	return out
}

// Numeric reports whether every cell parsed as a number.
func (r Row) Numeric() bool {
	for _, c := range r {
		if !c.IsNum {
			return false
		}
	}
	return true
}

// Table is the tokenizer output.
type Table struct {
	Header []string
	Rows   []Row
}

// HasHeader reports whether a header line was detected.
func (t Table) HasHeader() bool { return t.Header != nil }

// Samples projects every data row into a sample.
func (t Table) Samples() []series.Sample {
	out := make([]series.Sample, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Floats()
	}
	return out
}

// Width returns the widest row or header length.
func (t Table) Width() int {
	w := len(t.Header)
	for _, r := range t.Rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

// Tokenize splits text into rows. Blank lines are dropped. The first line is
// a header iff at least one of its cells is not numeric and more lines
// follow it.
func Tokenize(text string) Table {
	var lines [][]string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, splitFields(line))
	}

	var t Table
	if len(lines) == 0 {
		return t
	}
	first := parseRow(lines[0])
	if len(lines) > 1 && !first.Numeric() {
		t.Header = lines[0]
		lines = lines[1:]
	} else {
		t.Rows = append(t.Rows, first)
		lines = lines[1:]
	}
	for _, fields := range lines {
		t.Rows = append(t.Rows, parseRow(fields))
	}
	return t
}

// ParseCell converts a single token. NaN and infinities are kept as strings
// so every numeric cell stays JSON-encodable.
func ParseCell(tok string) Cell {
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Cell{Str: tok}
	}
	return Cell{Num: v, IsNum: true}
}

func splitFields(line string) []string {
	parts := fieldSep.Split(line, -1)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseRow(fields []string) Row {
	row := make(Row, len(fields))
	for i, f := range fields {
		row[i] = ParseCell(f)
	}
	return row
}
