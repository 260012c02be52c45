package cli

import (
	"io"

	"github.com/pterm/pterm"
)

// renderTable prints rows as an aligned table; the first row is the
// header.
func renderTable(out io.Writer, data pterm.TableData) error {
	return pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render()
}
