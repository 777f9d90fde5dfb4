package block

import "fmt"

// Normalize enforces the table dimensional invariant: len(Cells) == Rows
// and every row has exactly Cols cells. Out-of-shape content (hand-edited
// or written by an older client) is padded with empty cells or truncated
// rather than rejected. ColumnWidths and Columns are brought to Cols the
// same way.
func Normalize(t *TableContent) {
	if t.Rows < 1 {
		t.Rows = DefaultTableRows
	}
	if t.Cols < 1 {
		t.Cols = DefaultTableCols
	}

	if t.Cells == nil {
		t.Cells = make([][]string, 0, t.Rows)
	}
	for len(t.Cells) < t.Rows {
		t.Cells = append(t.Cells, make([]string, t.Cols))
	}
	t.Cells = t.Cells[:t.Rows]
	for i, row := range t.Cells {
		for len(row) < t.Cols {
			row = append(row, "")
		}
		t.Cells[i] = row[:t.Cols]
	}

	for len(t.ColumnWidths) < t.Cols {
		t.ColumnWidths = append(t.ColumnWidths, DefaultColumnWidth)
	}
	t.ColumnWidths = t.ColumnWidths[:t.Cols]

	for len(t.Columns) < t.Cols {
		t.Columns = append(t.Columns, ColumnConfig{
			Name: defaultColumnName(len(t.Columns)),
			Type: defaultColumnType,
		})
	}
	t.Columns = t.Columns[:t.Cols]
	for i := range t.Columns {
		if t.Columns[i].Name == "" {
			t.Columns[i].Name = defaultColumnName(i)
		}
		if t.Columns[i].Type == "" {
			t.Columns[i].Type = defaultColumnType
		}
	}

	if t.Filters == nil {
		t.Filters = []Filter{}
	}
}

// defaultColumnName names the column at index i, so the fourth column
// added to a three-column table is "Column 4".
func defaultColumnName(i int) string {
	return fmt.Sprintf("%s%d", columnNamePrefix, i+1)
}
