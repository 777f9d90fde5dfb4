// Package table implements the structural operations and derived view
// computation for table blocks.
package table

import (
	"fmt"

	"tessera/api/internal/block"
)

// AddRow appends an empty data row.
func AddRow(t *block.TableContent) {
	t.Rows++
	block.Normalize(t)
}

// InsertRow inserts an empty row at index (0 = header position is not
// allowed; data rows start at 1).
func InsertRow(t *block.TableContent, index int) error {
	if index < 1 || index > t.Rows {
		return fmt.Errorf("row index %d out of range", index)
	}
	row := make([]string, t.Cols)
	t.Cells = append(t.Cells[:index], append([][]string{row}, t.Cells[index:]...)...)
	t.Rows++
	return nil
}

// DeleteRow removes the row at index. The header row (index 0) and the
// last remaining data row cannot be removed.
func DeleteRow(t *block.TableContent, index int) error {
	if index < 1 || index >= t.Rows {
		return fmt.Errorf("row index %d out of range", index)
	}
	if t.Rows <= 2 {
		return fmt.Errorf("cannot delete the last data row")
	}
	t.Cells = append(t.Cells[:index], t.Cells[index+1:]...)
	t.Rows--
	return nil
}

// AddColumn appends a text-typed column with a default name, extending
// every row by one empty cell and preserving existing cell values.
func AddColumn(t *block.TableContent) {
	t.Cols++
	block.Normalize(t)
}

// DeleteColumn removes the column at index, splicing every row and the
// column metadata. Filters on the removed column are dropped; filters
// and sort on later columns shift left.
func DeleteColumn(t *block.TableContent, index int) error {
	if index < 0 || index >= t.Cols {
		return fmt.Errorf("column index %d out of range", index)
	}
	if t.Cols <= 1 {
		return fmt.Errorf("cannot delete the last column")
	}
	for i, row := range t.Cells {
		t.Cells[i] = append(row[:index], row[index+1:]...)
	}
	t.ColumnWidths = append(t.ColumnWidths[:index], t.ColumnWidths[index+1:]...)
	t.Columns = append(t.Columns[:index], t.Columns[index+1:]...)
	t.Cols--

	kept := t.Filters[:0]
	for _, f := range t.Filters {
		if f.Column == index {
			continue
		}
		if f.Column > index {
			f.Column--
		}
		kept = append(kept, f)
	}
	t.Filters = kept

	if t.Sort != nil {
		switch {
		case t.Sort.Column == index:
			t.Sort = nil
		case t.Sort.Column > index:
			t.Sort.Column--
		}
	}
	return nil
}

// SetCell writes one cell, validating the value against the column
// configuration first. The header row is exempt from validation.
func SetCell(t *block.TableContent, row, col int, value string) error {
	if row < 0 || row >= t.Rows || col < 0 || col >= t.Cols {
		return fmt.Errorf("cell %d,%d out of range", row, col)
	}
	if row > 0 {
		if err := block.ValidateCell(t.Columns[col], value); err != nil {
			return err
		}
	}
	t.Cells[row][col] = value
	return nil
}

// SetColumnWidth clamps to a sane minimum so a drag cannot collapse a
// column to zero.
func SetColumnWidth(t *block.TableContent, col, width int) error {
	if col < 0 || col >= t.Cols {
		return fmt.Errorf("column index %d out of range", col)
	}
	if width < 40 {
		width = 40
	}
	t.ColumnWidths[col] = width
	return nil
}
