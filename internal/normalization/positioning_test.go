package normalization

import (
	"testing"
	"time"

	"cot-sentiment-lab/internal/domain"
)

func week(n int) time.Time {
	return time.Date(2020, 1, 7, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 7*n)
}

func position(n int, commLong, commShort int64) *domain.WeeklyPosition {
	return &domain.WeeklyPosition{
		ContractID:   "gold",
		ContractName: "GOLD - COMMODITY EXCHANGE INC.",
		ReportDate:   week(n),
		CommLong:     commLong,
		CommShort:    commShort,
		LSLong:       commShort,
		LSShort:      commLong,
		SSLong:       10,
		SSShort:      10,
	}
}

func TestNetExposure(t *testing.T) {
	p := &domain.WeeklyPosition{CommLong: 100, CommShort: 250, LSLong: 40, LSShort: 10, SSLong: 7, SSShort: 7}
	got := NetExposure(p)
	want := domain.NetExposure{Comm: -150, LS: 30, SS: 0}
	if got != want {
		t.Errorf("NetExposure() = %+v, want %+v", got, want)
	}
}

func TestDeltas(t *testing.T) {
	got := Deltas([]int64{10, 15, 9})
	if len(got) != 3 {
		t.Fatalf("expected 3 deltas, got %d", len(got))
	}
	if got[0] != nil {
		t.Errorf("first delta should be nil, got %d", *got[0])
	}
	if got[1] == nil || *got[1] != 5 {
		t.Errorf("second delta should be 5, got %v", got[1])
	}
	if got[2] == nil || *got[2] != -6 {
		t.Errorf("third delta should be -6, got %v", got[2])
	}
}

func TestDeltas_ZeroChangeIsNotNil(t *testing.T) {
	got := Deltas([]int64{4, 4})
	if got[1] == nil || *got[1] != 0 {
		t.Errorf("zero change should be a non-nil 0, got %v", got[1])
	}
}

func TestRollingPercentile(t *testing.T) {
	tests := []struct {
		name   string
		values []int64
		window int
		want   []float64
	}{
		{
			name:   "single value",
			values: []int64{42},
			window: 156,
			want:   []float64{50},
		},
		{
			name:   "rising series",
			values: []int64{100, 120},
			window: 156,
			want:   []float64{50, 100},
		},
		{
			name:   "window capped at available observations",
			values: []int64{3, 1, 2},
			window: 156,
			want:   []float64{50, 0, 50},
		},
		{
			name:   "ties count half",
			values: []int64{5, 5, 5, 5},
			window: 156,
			want:   []float64{50, 50, 50, 50},
		},
		{
			name:   "old values leave the window",
			values: []int64{1000, 1, 2, 3},
			window: 3,
			want:   []float64{50, 0, 50, 100},
		},
		{
			name:   "window of one",
			values: []int64{1, 2, 3},
			window: 1,
			want:   []float64{50, 50, 50},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RollingPercentile(tt.values, tt.window)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("index[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRollingPercentile_TieRuleIndependentOfPosition(t *testing.T) {
	// The tied value scores the same whether ties precede it or not.
	a := RollingPercentile([]int64{5, 1, 9, 5}, 156)
	b := RollingPercentile([]int64{1, 5, 9, 5}, 156)
	if a[3] != b[3] {
		t.Errorf("tie scores differ by position: %v vs %v", a[3], b[3])
	}
	if a[3] != 50 {
		t.Errorf("expected 50 for {1,5,9} vs 5, got %v", a[3])
	}
}

func TestRollingPercentile_Bounds(t *testing.T) {
	values := make([]int64, 400)
	for i := range values {
		values[i] = int64((i*7919)%211) - 100
	}
	for _, w := range []int{1, 2, 13, 156, 1000} {
		for i, v := range RollingPercentile(values, w) {
			if v < 0 || v > 100 {
				t.Fatalf("window %d: index[%d] = %v out of bounds", w, i, v)
			}
		}
	}
}

func TestSeriesMetrics_EndToEnd(t *testing.T) {
	series := []*domain.WeeklyPosition{
		position(1, 220, 100), // comm_net 120
		position(0, 200, 100), // comm_net 100, unordered on purpose
	}

	records := SeriesMetrics(series, 156)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	first, second := records[0], records[1]
	if !first.ReportDate.Equal(week(0)) {
		t.Fatalf("records should be ordered by date")
	}
	if first.CommNet != 100 || second.CommNet != 120 {
		t.Errorf("comm_net = %d, %d; want 100, 120", first.CommNet, second.CommNet)
	}
	if second.CommIndex <= first.CommIndex {
		t.Errorf("second comm_index %v should exceed first %v", second.CommIndex, first.CommIndex)
	}
	if first.WoWCommDelta != nil {
		t.Errorf("first wow_comm_delta should be nil")
	}
	if second.WoWCommDelta == nil || *second.WoWCommDelta != 20 {
		t.Errorf("second wow_comm_delta should be 20, got %v", second.WoWCommDelta)
	}
	if second.WoWLSDelta == nil || *second.WoWLSDelta != -20 {
		t.Errorf("second wow_ls_delta should be -20, got %v", second.WoWLSDelta)
	}
}

func TestSeriesMetrics_NoLookAhead(t *testing.T) {
	base := []*domain.WeeklyPosition{
		position(0, 100, 50),
		position(1, 130, 50),
		position(2, 90, 50),
		position(3, 180, 50),
	}
	altered := []*domain.WeeklyPosition{
		position(0, 100, 50),
		position(1, 130, 50),
		position(2, 90, 50),
		position(3, 10, 900),
		position(4, 777, 1),
	}

	a := SeriesMetrics(base, 156)
	b := SeriesMetrics(altered, 156)
	for i := 0; i < 3; i++ {
		if a[i].CommIndex != b[i].CommIndex || a[i].LSIndex != b[i].LSIndex {
			t.Errorf("record %d changed when later rows changed", i)
		}
		if (a[i].WoWCommDelta == nil) != (b[i].WoWCommDelta == nil) ||
			(a[i].WoWCommDelta != nil && *a[i].WoWCommDelta != *b[i].WoWCommDelta) {
			t.Errorf("delta %d changed when later rows changed", i)
		}
	}
}

func TestBuildMetrics_SeedMatchesFullSeries(t *testing.T) {
	full := []*domain.WeeklyPosition{
		position(0, 100, 50),
		position(1, 130, 50),
		position(2, 90, 50),
		position(3, 180, 50),
		position(4, 60, 50),
	}

	expected := SeriesMetrics(full, 3)
	got := BuildMetrics(full[:3], full[3:], 3)

	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	for i, r := range got {
		want := expected[3+i]
		if r.CommIndex != want.CommIndex || r.SSIndex != want.SSIndex {
			t.Errorf("record %d index = %v, want %v", i, r.CommIndex, want.CommIndex)
		}
		if r.WoWCommDelta == nil || *r.WoWCommDelta != *want.WoWCommDelta {
			t.Errorf("record %d delta mismatch", i)
		}
	}
}

func TestBuildMetrics_IgnoresOverlappingSeed(t *testing.T) {
	rows := []*domain.WeeklyPosition{position(2, 150, 50)}
	seed := []*domain.WeeklyPosition{
		position(1, 100, 50),
		position(2, 999, 0), // stale copy of the same week
	}

	got := BuildMetrics(seed, rows, 156)
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].CommNet != 100 {
		t.Errorf("comm_net = %d, want 100 from rows", got[0].CommNet)
	}
	if got[0].WoWCommDelta == nil || *got[0].WoWCommDelta != 50 {
		t.Errorf("delta = %v, want 50", got[0].WoWCommDelta)
	}
}

func TestBuildMetrics_Empty(t *testing.T) {
	if got := BuildMetrics([]*domain.WeeklyPosition{position(0, 1, 1)}, nil, 156); got != nil {
		t.Errorf("expected nil for no rows, got %v", got)
	}
}
