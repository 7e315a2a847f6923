package normalization

import (
	"sort"

	"cot-sentiment-lab/internal/domain"
)

// DefaultWindow is the trailing window in weekly periods (three years).
const DefaultWindow = 156

// NetExposure computes long - short for each trader category.
func NetExposure(p *domain.WeeklyPosition) domain.NetExposure {
	return domain.NetExposure{
		Comm: p.CommLong - p.CommShort,
		LS:   p.LSLong - p.LSShort,
		SS:   p.SSLong - p.SSShort,
	}
}

// Deltas computes week-over-week change for an ordered series.
// The first element is nil: no prior period is not the same as zero change.
func Deltas(values []int64) []*int64 {
	out := make([]*int64, len(values))
	for i := 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		out[i] = &d
	}
	return out
}

// RollingPercentile scores every point of an ordered series against the
// trailing window ending at (and including) that point.
//
// The window is capped at the observations available so far. The score is
// the mid-rank of the point among the other window values:
//
//	100 * (count(other < x) + 0.5 * count(other == x)) / len(other)
//
// A point with no other values in its window scores 50. Scores are in [0, 100].
func RollingPercentile(values []int64, window int) []float64 {
	if window < 1 {
		window = 1
	}
	out := make([]float64, len(values))
	for i, x := range values {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		others := values[start:i]
		out[i] = midRank(others, x)
	}
	return out
}

func midRank(others []int64, x int64) float64 {
	if len(others) == 0 {
		return 50
	}
	var less, equal int
	for _, v := range others {
		switch {
		case v < x:
			less++
		case v == x:
			equal++
		}
	}
	return 100 * (float64(less) + 0.5*float64(equal)) / float64(len(others))
}

// SeriesMetrics derives a MetricRecord for each position of one contract.
// Positions are sorted by report date internally.
func SeriesMetrics(series []*domain.WeeklyPosition, window int) []*domain.MetricRecord {
	if len(series) == 0 {
		return nil
	}

	sorted := make([]*domain.WeeklyPosition, len(series))
	copy(sorted, series)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ReportDate.Before(sorted[j].ReportDate)
	})

	n := len(sorted)
	nets := make([]domain.NetExposure, n)
	byCategory := make(map[domain.Category][]int64, len(domain.Categories))
	for _, c := range domain.Categories {
		byCategory[c] = make([]int64, n)
	}
	for i, p := range sorted {
		nets[i] = NetExposure(p)
		for _, c := range domain.Categories {
			byCategory[c][i] = nets[i].Get(c)
		}
	}

	commIdx := RollingPercentile(byCategory[domain.CategoryCommercial], window)
	lsIdx := RollingPercentile(byCategory[domain.CategoryLargeSpeculator], window)
	ssIdx := RollingPercentile(byCategory[domain.CategorySmallSpeculator], window)
	commDelta := Deltas(byCategory[domain.CategoryCommercial])
	lsDelta := Deltas(byCategory[domain.CategoryLargeSpeculator])
	ssDelta := Deltas(byCategory[domain.CategorySmallSpeculator])

	records := make([]*domain.MetricRecord, n)
	for i, p := range sorted {
		records[i] = &domain.MetricRecord{
			ContractID:   p.ContractID,
			ReportDate:   p.ReportDate,
			CommNet:      nets[i].Comm,
			LSNet:        nets[i].LS,
			SSNet:        nets[i].SS,
			CommIndex:    commIdx[i],
			LSIndex:      lsIdx[i],
			SSIndex:      ssIdx[i],
			WoWCommDelta: commDelta[i],
			WoWLSDelta:   lsDelta[i],
			WoWSSDelta:   ssDelta[i],
		}
	}
	return records
}

// BuildMetrics derives MetricRecords for rows of one contract, using seed
// as the stored history that precedes them.
//
// Seed entries dated on or after the earliest row are ignored, so rows always
// win over stored history. Only records for rows are returned, ordered by date.
func BuildMetrics(seed, rows []*domain.WeeklyPosition, window int) []*domain.MetricRecord {
	if len(rows) == 0 {
		return nil
	}

	first := rows[0].ReportDate
	for _, r := range rows[1:] {
		if r.ReportDate.Before(first) {
			first = r.ReportDate
		}
	}

	series := make([]*domain.WeeklyPosition, 0, len(seed)+len(rows))
	for _, s := range seed {
		if s.ReportDate.Before(first) {
			series = append(series, s)
		}
	}
	seeded := len(series)
	series = append(series, rows...)

	records := SeriesMetrics(series, window)
	return records[seeded:]
}
