package normalization

import (
	"testing"
	"time"

	"cot-sentiment-lab/internal/domain"
)

func TestParseReportDate(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want time.Time
	}{
		{"2015-01-06", true, time.Date(2015, 1, 6, 0, 0, 0, 0, time.UTC)},
		{" 2015-01-06 ", true, time.Date(2015, 1, 6, 0, 0, 0, 0, time.UTC)},
		{"2015-01-06 00:00:00", true, time.Date(2015, 1, 6, 0, 0, 0, 0, time.UTC)},
		{"2015-01-06T12:30:00Z", true, time.Date(2015, 1, 6, 0, 0, 0, 0, time.UTC)},
		{"", false, time.Time{}},
		{"06/01/2015", false, time.Time{}},
	}

	for _, tt := range tests {
		got, ok := ParseReportDate(tt.in)
		if ok != tt.ok {
			t.Errorf("ParseReportDate(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("ParseReportDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeRows(t *testing.T) {
	oi := int64(5000)
	rows := []domain.RawReportRow{
		{Contract: " Gold ", ReportDate: "2015-01-13", CommLong: 1, CommShort: 2, OpenInterest: &oi},
		{Contract: "Gold", ReportDate: "2015-01-06", CommLong: 3, CommShort: 4, ProdClass: "MET"},
		{Contract: "Silver", ReportDate: "", CommLong: 5},
		{Contract: "  ", ReportDate: "2015-01-06"},
		{Contract: "Corn", ReportDate: "not a date"},
		{Contract: "Gold", ReportDate: "2015-01-13", CommLong: 9, CommShort: 9},
	}

	positions, dropped := NormalizeRows(rows)

	if dropped != 3 {
		t.Errorf("dropped = %d, want 3", dropped)
	}
	if len(positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(positions))
	}

	first, second := positions[0], positions[1]
	if first.ContractName != "Gold" || second.ContractName != "Gold" {
		t.Errorf("contract names should be trimmed, got %q and %q", first.ContractName, second.ContractName)
	}
	if !first.ReportDate.Before(second.ReportDate) {
		t.Errorf("positions should be ordered by date")
	}
	if first.ProdClass == nil || *first.ProdClass != "MET" {
		t.Errorf("prod class should be carried over")
	}
	// Duplicate key keeps the last occurrence, which has no open interest.
	if second.CommLong != 9 || second.OpenInterest != nil {
		t.Errorf("duplicate key should keep the last row, got %+v", second)
	}
}

func TestNormalizeRows_DropsSourceInvalidRows(t *testing.T) {
	rows := []domain.RawReportRow{
		{Contract: "Gold", ReportDate: "2015-01-06", Invalid: `Commercial_Positions_Long_All: "n/a" is not an integer`},
		{Contract: "Gold", ReportDate: "2015-01-13"},
	}

	positions, dropped := NormalizeRows(rows)
	if dropped != 1 || len(positions) != 1 {
		t.Fatalf("got %d positions, %d dropped; want 1 and 1", len(positions), dropped)
	}
	if positions[0].ReportDate.Day() != 13 {
		t.Errorf("kept the wrong row: %v", positions[0].ReportDate)
	}
}
