package table

import (
	"fmt"
	"strconv"
	"strings"

	"tessera/api/internal/block"
)

// Func is one of the closed set of supported formula functions.
type Func string

const (
	FuncSum     Func = "SUM"
	FuncAverage Func = "AVERAGE"
	FuncCount   Func = "COUNT"
)

// Formula is a parsed column formula such as "=SUM(A)". The argument
// references a column by its configured name, uppercased - not by
// spreadsheet-style positional letters.
type Formula struct {
	Fn     Func
	Column string
}

// ParseFormula parses a formula string. It is a total function over the
// closed set: anything outside "=FN(COLUMN)" with a known FN is an error.
func ParseFormula(s string) (Formula, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "=") {
		return Formula{}, fmt.Errorf("formula must start with '='")
	}
	body := s[1:]
	open := strings.IndexByte(body, '(')
	if open < 0 || !strings.HasSuffix(body, ")") {
		return Formula{}, fmt.Errorf("malformed formula %q", s)
	}
	fn := Func(strings.ToUpper(strings.TrimSpace(body[:open])))
	arg := strings.TrimSpace(body[open+1 : len(body)-1])
	switch fn {
	case FuncSum, FuncAverage, FuncCount:
	default:
		return Formula{}, fmt.Errorf("unsupported function %q", string(fn))
	}
	if arg == "" {
		return Formula{}, fmt.Errorf("formula %q has no column argument", s)
	}
	return Formula{Fn: fn, Column: strings.ToUpper(arg)}, nil
}

// Evaluate runs a formula against the table's data rows (the header row
// is excluded). Cells that do not parse as numbers are skipped for SUM
// and AVERAGE; COUNT counts non-empty cells. An AVERAGE over zero
// parseable cells is "0". A formula naming an unknown column is "#REF".
func Evaluate(t *block.TableContent, f Formula) string {
	col := -1
	for i, c := range t.Columns {
		if strings.ToUpper(c.Name) == f.Column {
			col = i
			break
		}
	}
	if col < 0 {
		return "#REF"
	}

	var sum float64
	var parseable, nonEmpty int
	for row := 1; row < t.Rows; row++ {
		cell := t.Cells[row][col]
		if cell != "" {
			nonEmpty++
		}
		if n, err := strconv.ParseFloat(cell, 64); err == nil {
			sum += n
			parseable++
		}
	}

	switch f.Fn {
	case FuncSum:
		return formatNumber(sum)
	case FuncAverage:
		if parseable == 0 {
			return "0"
		}
		return formatNumber(sum / float64(parseable))
	case FuncCount:
		return strconv.Itoa(nonEmpty)
	}
	return ""
}

// FormulaRow evaluates every column's configured formula. Columns with
// no formula, or an unparseable one, yield "".
func FormulaRow(t *block.TableContent) []string {
	out := make([]string, t.Cols)
	for i, c := range t.Columns {
		if c.Formula == "" {
			continue
		}
		f, err := ParseFormula(c.Formula)
		if err != nil {
			continue
		}
		out[i] = Evaluate(t, f)
	}
	return out
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
