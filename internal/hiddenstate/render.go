package hiddenstate

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

// Render prints t as a text table followed by a "[N rows x D dims]" footer line.
func Render(w io.Writer, t *Table) error {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"document", "num_tokens", "dim", "hidden_state"})
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.AppendBulk(t.Records())
	tw.Render()

	_, err := fmt.Fprintf(w, "[%d rows x %d dims]\n", t.Len(), t.Dim())
	return err
}
