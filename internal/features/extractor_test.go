package features

import (
	"math"
	"testing"
)

func generateSeries(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestExtractor_LengthMismatch(t *testing.T) {
	e := NewExtractor()

	_, err := e.ExtractRows(make([]float64, 10), make([]float64, 9))
	if err == nil {
		t.Error("Should error on mismatched input lengths")
	}
}

func TestExtractor_TooFewPoints(t *testing.T) {
	e := NewExtractor()

	rows, err := e.ExtractRows([]float64{100}, []float64{1})
	if err != nil {
		t.Fatalf("Single point should not error: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected empty result, got %d rows", len(rows))
	}
}

func TestExtractor_RowsAreFiniteAndWarmupDropped(t *testing.T) {
	e := NewExtractor()

	n := 100
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i := 0; i < n; i++ {
		closes[i] = 40000 + 100*math.Sin(float64(i)*0.3)
		volumes[i] = 1000 + 50*math.Cos(float64(i)*0.2)
	}

	rows, err := e.ExtractRows(closes, volumes)
	if err != nil {
		t.Fatalf("Failed to extract rows: %v", err)
	}

	if len(rows) >= n {
		t.Errorf("Expected warm-up rows to be dropped, got %d of %d", len(rows), n)
	}

	// RSI is undefined for indices <= period, so exactly those rows disappear
	expected := n - (e.RSIPeriod + 1)
	if len(rows) != expected {
		t.Errorf("Expected %d rows after RSI warm-up, got %d", expected, len(rows))
	}

	for i, row := range rows {
		for f, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("Non-finite component at row %d feature %d", i, f)
			}
		}
	}
}

func TestExtractor_RSIZoneBounds(t *testing.T) {
	e := NewExtractor()

	// Strongly trending series should push rsi_zone to the clamp edge
	closes := generateSeries(80, 100, 5)
	volumes := generateSeries(80, 1000, 0)

	rows, err := e.ExtractRows(closes, volumes)
	if err != nil {
		t.Fatalf("Failed to extract rows: %v", err)
	}
	if len(rows) == 0 {
		t.Fatal("Expected rows for trending series")
	}

	for i, row := range rows {
		if row[2] < -1 || row[2] > 1 {
			t.Errorf("rsi_zone out of [-1,1] at row %d: %.4f", i, row[2])
		}
	}

	last := rows[len(rows)-1]
	if last[2] < 0.9 {
		t.Errorf("Expected rsi_zone near 1 for monotonic gains, got %.4f", last[2])
	}
}

func TestExtractor_ZeroPriceGuard(t *testing.T) {
	e := NewExtractor()

	// All-zero closes keep the slow EMA at zero; spread must fall back to 0
	// rather than dividing by zero
	n := 40
	closes := make([]float64, n)
	volumes := generateSeries(n, 1000, 10)

	rows, err := e.ExtractRows(closes, volumes)
	if err != nil {
		t.Fatalf("Failed to extract rows: %v", err)
	}

	for i, row := range rows {
		if row[1] != 0 {
			t.Errorf("Expected zero spread with degenerate prices at row %d, got %.6f", i, row[1])
		}
	}
}

func TestExtractor_ExtractWrapper(t *testing.T) {
	e := NewExtractor()

	closes := generateSeries(60, 40000, 10)
	volumes := generateSeries(60, 1000, 5)

	raw, err := e.Extract(closes, volumes)
	if err != nil {
		t.Fatalf("Failed to extract: %v", err)
	}

	rows, _ := e.ExtractRows(closes, volumes)
	if len(raw) != len(rows) {
		t.Fatalf("Wrapper length mismatch: %d vs %d", len(raw), len(rows))
	}
	for i := range raw {
		if len(raw[i]) != 4 {
			t.Fatalf("Expected 4 components, got %d", len(raw[i]))
		}
		for f := 0; f < 4; f++ {
			if raw[i][f] != rows[i][f] {
				t.Errorf("Component mismatch at row %d feature %d", i, f)
			}
		}
	}
}
