package table

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"tessera/api/internal/block"
)

// TableView is the derived, render-ready projection of a table: data
// rows after filtering and sorting, plus the per-column formula results.
type TableView struct {
	Header     []string   `json:"header"`
	Rows       [][]string `json:"rows"`
	RowIndexes []int      `json:"rowIndexes"`
	FormulaRow []string   `json:"formulaRow"`
}

// ComputeView recomputes the view from current content. It is pure: the
// content document is not mutated.
func ComputeView(t *block.TableContent) TableView {
	block.Normalize(t)

	view := TableView{
		Header:     t.Cells[0],
		Rows:       make([][]string, 0, t.Rows-1),
		RowIndexes: make([]int, 0, t.Rows-1),
	}
	for i := 1; i < t.Rows; i++ {
		if !matchesFilters(t, t.Cells[i]) {
			continue
		}
		view.Rows = append(view.Rows, t.Cells[i])
		view.RowIndexes = append(view.RowIndexes, i)
	}

	if t.Sort != nil && t.Sort.Column >= 0 && t.Sort.Column < t.Cols {
		sortRows(&view, t.Columns[t.Sort.Column], t.Sort.Column, t.Sort.Direction)
	}

	view.FormulaRow = FormulaRow(t)
	return view
}

// matchesFilters evaluates the AND-conjunction of all filters against
// one row. Numeric predicates silently exclude rows whose cell does not
// parse as a number.
func matchesFilters(t *block.TableContent, row []string) bool {
	for _, f := range t.Filters {
		if f.Column < 0 || f.Column >= t.Cols {
			continue
		}
		cell := row[f.Column]
		switch f.Operator {
		case "contains":
			if !strings.Contains(strings.ToLower(cell), strings.ToLower(f.Value)) {
				return false
			}
		case "equals":
			if cell != f.Value {
				return false
			}
		case "greater":
			cv, err1 := strconv.ParseFloat(cell, 64)
			fv, err2 := strconv.ParseFloat(f.Value, 64)
			if err1 != nil || err2 != nil || cv <= fv {
				return false
			}
		case "less":
			cv, err1 := strconv.ParseFloat(cell, 64)
			fv, err2 := strconv.ParseFloat(f.Value, 64)
			if err1 != nil || err2 != nil || cv >= fv {
				return false
			}
		}
	}
	return true
}

// sortRows orders the view rows by one column, type-aware per the column
// configuration: numeric, date-parsed, else case-insensitive
// lexicographic. The sort is stable so ties keep insertion order.
func sortRows(view *TableView, col block.ColumnConfig, index int, direction string) {
	desc := direction == "desc"

	less := func(a, b string) bool {
		switch col.Type {
		case "number":
			av, aerr := strconv.ParseFloat(a, 64)
			bv, berr := strconv.ParseFloat(b, 64)
			if aerr == nil && berr == nil {
				return av < bv
			}
			if aerr == nil {
				return true // numbers before non-numbers
			}
			if berr == nil {
				return false
			}
		case "date":
			at, aerr := time.Parse("2006-01-02", a)
			bt, berr := time.Parse("2006-01-02", b)
			if aerr == nil && berr == nil {
				return at.Before(bt)
			}
			if aerr == nil {
				return true
			}
			if berr == nil {
				return false
			}
		}
		la, lb := strings.ToLower(a), strings.ToLower(b)
		if la != lb {
			return la < lb
		}
		return a < b
	}

	perm := make([]int, len(view.Rows))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool {
		a, b := view.Rows[perm[i]][index], view.Rows[perm[j]][index]
		if desc {
			a, b = b, a
		}
		return less(a, b)
	})

	rows := make([][]string, len(view.Rows))
	idxs := make([]int, len(view.RowIndexes))
	for i, p := range perm {
		rows[i] = view.Rows[p]
		idxs[i] = view.RowIndexes[p]
	}
	view.Rows = rows
	view.RowIndexes = idxs
}
