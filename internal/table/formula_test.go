package table

import (
	"testing"

	"tessera/api/internal/block"
)

func TestParseFormula(t *testing.T) {
	cases := []struct {
		in      string
		fn      Func
		column  string
		wantErr bool
	}{
		{"=SUM(Qty)", FuncSum, "QTY", false},
		{"=average( price )", FuncAverage, "PRICE", false},
		{"=COUNT(Item)", FuncCount, "ITEM", false},
		{"SUM(Qty)", "", "", true},
		{"=MEDIAN(Qty)", "", "", true},
		{"=SUM", "", "", true},
		{"=SUM()", "", "", true},
	}
	for _, tc := range cases {
		f, err := ParseFormula(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if f.Fn != tc.fn || f.Column != tc.column {
			t.Fatalf("%q parsed as %v/%q", tc.in, f.Fn, f.Column)
		}
	}
}

func formulaTable() *block.TableContent {
	t := &block.TableContent{
		Rows: 5,
		Cols: 2,
		Cells: [][]string{
			{"Item", "Qty"},
			{"apples", "10"},
			{"bananas", "5.5"},
			{"cherries", "n/a"},
			{"", ""},
		},
		Columns: []block.ColumnConfig{
			{Name: "Item", Type: "text"},
			{Name: "Qty", Type: "number"},
		},
	}
	block.Normalize(t)
	return t
}

func TestEvaluate(t *testing.T) {
	tbl := formulaTable()

	cases := []struct {
		formula string
		want    string
	}{
		{"=SUM(Qty)", "15.5"},
		{"=AVERAGE(Qty)", "7.75"},
		{"=COUNT(Qty)", "3"},
		{"=COUNT(Item)", "3"},
		{"=SUM(Missing)", "#REF"},
	}
	for _, tc := range cases {
		f, err := ParseFormula(tc.formula)
		if err != nil {
			t.Fatalf("%q: %v", tc.formula, err)
		}
		if got := Evaluate(tbl, f); got != tc.want {
			t.Fatalf("%q = %q, want %q", tc.formula, got, tc.want)
		}
	}
}

func TestAverageOverNoParseableCellsIsZero(t *testing.T) {
	tbl := &block.TableContent{
		Rows:    2,
		Cols:    1,
		Cells:   [][]string{{"Qty"}, {"n/a"}},
		Columns: []block.ColumnConfig{{Name: "Qty", Type: "text"}},
	}
	block.Normalize(tbl)
	f, _ := ParseFormula("=AVERAGE(Qty)")
	if got := Evaluate(tbl, f); got != "0" {
		t.Fatalf("empty average = %q, want \"0\"", got)
	}
}

func TestFormulaRow(t *testing.T) {
	tbl := formulaTable()
	tbl.Columns[1].Formula = "=SUM(Qty)"
	tbl.Columns[0].Formula = "not a formula"

	row := FormulaRow(tbl)
	if len(row) != 2 {
		t.Fatalf("formula row length %d", len(row))
	}
	if row[0] != "" {
		t.Fatalf("unparseable formula should yield empty, got %q", row[0])
	}
	if row[1] != "15.5" {
		t.Fatalf("sum column = %q, want 15.5", row[1])
	}
}
