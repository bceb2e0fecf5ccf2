package csvtok

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

// DefaultPreviewRows is the number of data rows shown by RenderPreview when
// the caller passes a non-positive limit.
const DefaultPreviewRows = 20

// RenderPreview writes an ASCII table of the first maxRows rows of t. Rows
// past the limit are summarized in a trailing line.
func RenderPreview(w io.Writer, t Table, maxRows int) error {
	if maxRows <= 0 {
		maxRows = DefaultPreviewRows
	}
	width := t.Width()
	if width == 0 {
		_, err := io.WriteString(w, "(empty)\n")
		return err
	}

	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetHeader(previewHeader(t, width))

	shown := t.Rows
	if len(shown) > maxRows {
		shown = shown[:maxRows]
	}
	for _, r := range shown {
		line := make([]string, width)
		for i, c := range r {
			line[i] = c.String()
		}
		tw.Append(line)
	}
	tw.Render()

	if rest := len(t.Rows) - len(shown); rest > 0 {
		if _, err := fmt.Fprintf(w, "... %d more row(s)\n", rest); err != nil {
			return err
		}
	}
	return nil
}

func previewHeader(t Table, width int) []string {
	header := make([]string, width)
	for i := range header {
		if i < len(t.Header) {
			header[i] = t.Header[i]
		} else {
			header[i] = fmt.Sprintf("col_%d", i)
		}
	}
	return header
}
