package csvtok

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/dgnsrekt/anomaly_dashboard/internal/series"
)

func TestTokenizeDetectsHeader(t *testing.T) {
	text := "timestamp,value\n0,0\n\n1,1\n2,2\n"
	tbl := Tokenize(text)

	if got, want := tbl.Header, []string{"timestamp", "value"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Header = %v; want %v", got, want)
	}
	if got := len(tbl.Rows); got != 3 {
		t.Fatalf("len(Rows) = %d; want 3", got)
	}
	if got, want := tbl.Samples(), []series.Sample{{0, 0}, {1, 1}, {2, 2}}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Samples() = %v; want %v", got, want)
	}
}

func TestTokenizeRowCounts(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantHeader bool
		wantRows   int
	}{
		{name: "all_numeric", text: "1,2\n3,4\n5,6", wantHeader: false, wantRows: 3},
		{name: "no_line_numeric", text: "a,b\nc,1\nx y", wantHeader: true, wantRows: 2},
		{name: "whitespace_separated", text: "1 2\t3\n4   5 6\n", wantHeader: false, wantRows: 2},
		{name: "crlf_and_blank_lines", text: "a;b\r\n\r\n1\r\n   \r\n2\r\n", wantHeader: true, wantRows: 2},
		{name: "empty", text: "\n \n", wantHeader: false, wantRows: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := Tokenize(tt.text)
			if tbl.HasHeader() != tt.wantHeader {
				t.Fatalf("HasHeader() = %v; want %v", tbl.HasHeader(), tt.wantHeader)
			}
			if len(tbl.Rows) != tt.wantRows {
				t.Fatalf("len(Rows) = %d; want %d", len(tbl.Rows), tt.wantRows)
			}
		})
	}
}

func TestTokenizeSingleLineHasNoHeader(t *testing.T) {
	tbl := Tokenize("alpha, 2.5 ,beta")
	if tbl.HasHeader() {
		t.Fatalf("HasHeader() = true; want false")
	}
	if len(tbl.Rows) != 1 {
		t.Fatalf("len(Rows) = %d; want 1", len(tbl.Rows))
	}
	want := Row{{Str: "alpha"}, {Num: 2.5, IsNum: true}, {Str: "beta"}}
	if !reflect.DeepEqual(tbl.Rows[0], want) {
		t.Fatalf("Rows[0] = %+v; want %+v", tbl.Rows[0], want)
	}
}

func TestTokenizeKeepsUnparseableCells(t *testing.T) {
	tbl := Tokenize("v\n1\nn/a\nNaN\n")
	if got := tbl.Rows[1][0]; got.IsNum || got.Str != "n/a" {
		t.Fatalf("Rows[1][0] = %+v; want string n/a", got)
	}
	if got := tbl.Rows[2][0]; got.IsNum {
		t.Fatalf("Rows[2][0] = %+v; want NaN kept as string", got)
	}
	if got, want := tbl.Rows[1].Floats(), (series.Sample{0}); !reflect.DeepEqual(got, want) {
		t.Fatalf("Floats() = %v; want %v", got, want)
	}
}

func TestRenderPreview(t *testing.T) {
	tbl := Tokenize("t,value\n0,1.5\n1,2\n2,3\n")

	var buf bytes.Buffer
	if err := RenderPreview(&buf, tbl, 2); err != nil {
		t.Fatalf("RenderPreview() = %v; want nil", err)
	}
	out := buf.String()
	for _, want := range []string{"value", "1.5", "... 1 more row(s)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("RenderPreview() output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "| 2 |") {
		t.Fatalf("RenderPreview() rendered rows past the limit:\n%s", out)
	}
}

func TestRenderPreviewEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderPreview(&buf, Table{}, 0); err != nil {
		t.Fatalf("RenderPreview() = %v; want nil", err)
	}
	if got := buf.String(); got != "(empty)\n" {
		t.Fatalf("RenderPreview() = %q; want %q", got, "(empty)\n")
	}
}
