package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// newTable returns a light-style table writer, or a markdown one when md is set.
func newTable(md bool, header ...any) *tableOut {
	w := table.NewWriter()
	if !md {
		w.SetStyle(table.StyleLight)
	}
	w.AppendHeader(table.Row(header))
	return &tableOut{writer: w, md: md}
}

type tableOut struct {
	writer table.Writer
	md     bool
}

func (t *tableOut) row(vals ...any) {
	t.writer.AppendRow(table.Row(vals))
}

// alignRight right-aligns the given 1-based columns.
func (t *tableOut) alignRight(cols ...int) {
	cfgs := make([]table.ColumnConfig, len(cols))
	for i, c := range cols {
		cfgs[i] = table.ColumnConfig{Number: c, Align: text.AlignRight}
	}
	t.writer.SetColumnConfigs(cfgs)
}

func (t *tableOut) String() string {
	if t.md {
		return t.writer.RenderMarkdown()
	}
	return t.writer.Render()
}
