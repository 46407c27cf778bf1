package commands

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	// footers carry counts like "3 new, 1 notified", upper casing them reads badly
	t.Style().Format.Footer = text.FormatDefault
	t.SetOutputMirror(out)
	return t
}
