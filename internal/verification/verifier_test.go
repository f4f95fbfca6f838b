package verification

import (
	"testing"
	"time"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/evaluation"
)

func testRow(d int, ticker string) *evaluation.Row {
	return &evaluation.Row{
		Date:            time.Date(2022, 4, d, 0, 0, 0, 0, time.UTC),
		NextTradingDate: time.Date(2022, 4, d+1, 0, 0, 0, 0, time.UTC),
		Ticker:          ticker,
		CloseT:          100,
		CloseT1:         101.5,
		Realized:        domain.DirectionUp,
		PostCount:       3,
		Cells: map[string]evaluation.Cell{
			"lr": {Predicted: domain.DirectionUp, Correct: true, MeanScore: 0.8},
		},
	}
}

func testTable(rows ...*evaluation.Row) *evaluation.Table {
	return &evaluation.Table{Models: []string{"lr"}, Rows: rows}
}

func TestCompareTables_ExactMatch(t *testing.T) {
	report := CompareTables(testTable(testRow(4, "TSLA"), testRow(5, "AAPL")), testTable(testRow(4, "TSLA"), testRow(5, "AAPL")))

	if !report.Match() {
		t.Fatalf("expected match, got %s", report)
	}
	if report.TotalRows != 2 || report.MatchedRows != 2 {
		t.Errorf("expected 2/2 matched, got %d/%d", report.MatchedRows, report.TotalRows)
	}
}

func TestCompareTables_WithinTolerance(t *testing.T) {
	replayed := testRow(4, "TSLA")
	replayed.CloseT1 += 1e-9
	replayed.Cells["lr"] = evaluation.Cell{Predicted: domain.DirectionUp, Correct: true, MeanScore: 0.8 + 1e-9}

	report := CompareTables(testTable(testRow(4, "TSLA")), testTable(replayed))
	if !report.Match() {
		t.Errorf("expected match within tolerance, got %+v", report.Results)
	}
}

func TestCompareTables_Divergences(t *testing.T) {
	replayed := testRow(4, "TSLA")
	replayed.CloseT1 = 99
	replayed.Realized = domain.DirectionDown
	replayed.Cells["lr"] = evaluation.Cell{Predicted: domain.DirectionUp, Correct: false, MeanScore: 0.8}

	report := CompareTables(testTable(testRow(4, "TSLA")), testTable(replayed))
	if report.Match() {
		t.Fatal("expected divergence")
	}
	if report.DivergentRows != 1 {
		t.Fatalf("expected 1 divergent row, got %d", report.DivergentRows)
	}

	fields := make(map[string]bool)
	for _, d := range report.Results[0].Divergences {
		fields[d.Field] = true
	}
	for _, want := range []string{"CloseT1", "Realized", "lr.Correct"} {
		if !fields[want] {
			t.Errorf("expected divergence on %s, got %v", want, fields)
		}
	}
	if fields["CloseT"] || fields["lr.Predicted"] {
		t.Errorf("unexpected divergences: %v", fields)
	}
}

func TestCompareTables_MissingAndExtraRows(t *testing.T) {
	stored := testTable(testRow(4, "TSLA"), testRow(6, "GME"))
	replayed := testTable(testRow(4, "TSLA"), testRow(5, "AAPL"))

	report := CompareTables(stored, replayed)
	if report.MissingRows != 1 {
		t.Errorf("expected 1 missing row, got %d", report.MissingRows)
	}
	if report.ExtraRows != 1 {
		t.Errorf("expected 1 extra row, got %d", report.ExtraRows)
	}
	if report.TotalRows != 3 {
		t.Errorf("expected 3 total rows, got %d", report.TotalRows)
	}
	if report.Match() {
		t.Error("expected mismatch")
	}
}

func TestCompareRows_MissingModelCell(t *testing.T) {
	stored := testRow(4, "TSLA")
	replayed := testRow(4, "TSLA")
	replayed.Cells = map[string]evaluation.Cell{}

	divs := CompareRows(stored, replayed, []string{"lr"})
	if len(divs) != 1 || divs[0].Field != "lr.Present" {
		t.Errorf("expected lr.Present divergence, got %+v", divs)
	}
}
