package frame

import (
	"math"
	"testing"
)

func TestColumnName(t *testing.T) {
	tests := []struct {
		role string
		dims []string
		want string
	}{
		{"plan", []string{"ГПП-1", "Нагрузка"}, "plan_ГПП-1_Нагрузка"},
		{"", []string{"Омск"}, "Омск"},
		{"fact", []string{"", "Нагрузка"}, "fact_Нагрузка"},
		{"plan", nil, "plan"},
	}
	for _, tc := range tests {
		if got := ColumnName(tc.role, tc.dims); got != tc.want {
			t.Errorf("ColumnName(%q, %v) = %q, want %q", tc.role, tc.dims, got, tc.want)
		}
	}
}

func TestPivotSumsCollisions(t *testing.T) {
	d := day(2024, 7, 1)
	f := Pivot([]LongRow{
		{Day: d, Role: "plan", Dims: []string{"ГПП-1"}, Value: 3},
		{Day: d, Role: "plan", Dims: []string{"ГПП-1"}, Value: 4},
	})
	col, ok := f.Numeric("plan_ГПП-1")
	if !ok {
		t.Fatalf("missing column, have %v", f.Columns())
	}
	if col[0] != 7 {
		t.Errorf("aggregated cell = %v, want 7 (3+4 summed)", col[0])
	}
}

func TestPivotMissingCellIsNaN(t *testing.T) {
	f := Pivot([]LongRow{
		{Day: day(2024, 7, 1), Role: "plan", Dims: []string{"A"}, Value: 1},
		{Day: day(2024, 7, 2), Role: "fact", Dims: []string{"A"}, Value: 2},
	})
	if f.Len() != 2 {
		t.Fatalf("Len = %d, want 2", f.Len())
	}

	plan, _ := f.Numeric("plan_A")
	fact, _ := f.Numeric("fact_A")
	if plan[0] != 1 || !math.IsNaN(plan[1]) {
		t.Errorf("plan_A = %v, want [1 NaN]", plan)
	}
	if !math.IsNaN(fact[0]) || fact[1] != 2 {
		t.Errorf("fact_A = %v, want [NaN 2]", fact)
	}
}

func TestPivotNaNObservationStaysMissing(t *testing.T) {
	// A cell that only ever saw NaN observations is missing, not zero.
	f := Pivot([]LongRow{
		{Day: day(2024, 7, 1), Role: "plan", Dims: []string{"A"}, Value: math.NaN()},
	})
	col, ok := f.Numeric("plan_A")
	if !ok {
		t.Fatal("column should still exist")
	}
	if !math.IsNaN(col[0]) {
		t.Errorf("cell = %v, want NaN", col[0])
	}
}

func TestPivotEmptyInput(t *testing.T) {
	f := Pivot(nil)
	if f.Len() != 0 {
		t.Errorf("Len = %d, want 0", f.Len())
	}
	if len(f.Columns()) != 0 {
		t.Errorf("columns = %v, want none", f.Columns())
	}
}

func TestPivotColumnsSorted(t *testing.T) {
	d := day(2024, 7, 1)
	f := Pivot([]LongRow{
		{Day: d, Role: "fact", Dims: []string{"B"}, Value: 1},
		{Day: d, Role: "plan", Dims: []string{"A"}, Value: 1},
		{Day: d, Role: "fact", Dims: []string{"A"}, Value: 1},
	})
	cols := f.Columns()
	want := []string{"fact_A", "fact_B", "plan_A"}
	if len(cols) != len(want) {
		t.Fatalf("columns = %v, want %v", cols, want)
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Errorf("column %d = %q, want %q", i, cols[i], want[i])
		}
	}
}

func TestPivotDaysSorted(t *testing.T) {
	f := Pivot([]LongRow{
		{Day: day(2024, 7, 3), Role: "x", Value: 3},
		{Day: day(2024, 7, 1), Role: "x", Value: 1},
	})
	col, _ := f.Numeric("x")
	if !f.Days()[0].Equal(day(2024, 7, 1)) || col[0] != 1 || col[1] != 3 {
		t.Errorf("rows not aligned to sorted days: days=%v col=%v", f.Days(), col)
	}
}
