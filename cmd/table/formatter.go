package table

import (
	"encoding/hex"
	"fmt"
	"io"

	"go.miragespace.co/sqlrepo/spec/store"

	"github.com/jedib0t/go-pretty/v6/table"
)

func display(v store.Value) any {
	switch t := v.(type) {
	case nil:
		return NullLiteral
	case []byte:
		return "0x" + hex.EncodeToString(t)
	default:
		return t
	}
}

// FormatRecords renders rows with one column per schema column, in schema order.
func FormatRecords(schema store.Schema, rows []store.Record, output io.Writer) {
	recordTable := table.NewWriter()
	recordTable.SetOutputMirror(output)

	header := table.Row{}
	for _, name := range schema.ColumnNames() {
		header = append(header, name)
	}
	recordTable.AppendHeader(header)

	for _, r := range rows {
		row := make(table.Row, 0, len(schema.Columns))
		for _, name := range schema.ColumnNames() {
			v, _ := r.Get(name)
			row = append(row, display(v))
		}
		recordTable.AppendRow(row)
	}
	recordTable.AppendFooter(table.Row{fmt.Sprintf("%d row(s)", len(rows))})

	recordTable.SetStyle(table.StyleDefault)
	recordTable.Render()
}

// FormatResults renders write results, one row per statement in input order.
func FormatResults(results []store.Result, output io.Writer) {
	resultTable := table.NewWriter()
	resultTable.SetOutputMirror(output)

	resultTable.AppendHeader(table.Row{"#", "Rows Affected", "Last Insert ID"})
	for i, r := range results {
		resultTable.AppendRow(table.Row{i, r.RowsAffected, r.LastInsertID})
	}

	resultTable.SetStyle(table.StyleDefault)
	resultTable.Style().Options.SeparateRows = true
	resultTable.Render()
}

// FormatValue renders a single labelled value such as a count.
func FormatValue(label string, value any, output io.Writer) {
	valueTable := table.NewWriter()
	valueTable.SetOutputMirror(output)

	valueTable.AppendHeader(table.Row{label})
	valueTable.AppendRow(table.Row{value})

	valueTable.SetStyle(table.StyleDefault)
	valueTable.Render()
}
