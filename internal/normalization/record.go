package normalization

import (
	"sort"
	"strings"
	"time"

	"cot-sentiment-lab/internal/domain"
)

// reportDateLayouts are accepted report date encodings, tried in order.
var reportDateLayouts = []string{
	domain.ReportDateLayout,
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseReportDate parses a report date into UTC midnight.
func ParseReportDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range reportDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// NormalizeRows turns raw report rows into weekly positions keyed by
// (contract name, report date).
//
// Rows flagged invalid by the source, with an empty contract name or with a
// missing/unparseable report date are dropped and counted. Duplicate keys collapse to the last occurrence.
// The result is sorted by contract name, then report date ascending.
func NormalizeRows(rows []domain.RawReportRow) (positions []*domain.WeeklyPosition, dropped int) {
	type key struct {
		name string
		date time.Time
	}
	byKey := make(map[key]*domain.WeeklyPosition, len(rows))

	for i := range rows {
		r := &rows[i]
		name := strings.TrimSpace(r.Contract)
		if r.Invalid != "" || name == "" {
			dropped++
			continue
		}
		date, ok := ParseReportDate(r.ReportDate)
		if !ok {
			dropped++
			continue
		}

		p := &domain.WeeklyPosition{
			ContractName: name,
			ReportDate:   date,
			CommLong:     r.CommLong,
			CommShort:    r.CommShort,
			LSLong:       r.LSLong,
			LSShort:      r.LSShort,
			SSLong:       r.SSLong,
			SSShort:      r.SSShort,
		}
		if pc := strings.TrimSpace(r.ProdClass); pc != "" {
			p.ProdClass = &pc
		}
		if r.OpenInterest != nil {
			oi := *r.OpenInterest
			p.OpenInterest = &oi
		}
		byKey[key{name, date}] = p
	}

	positions = make([]*domain.WeeklyPosition, 0, len(byKey))
	for _, p := range byKey {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].ContractName != positions[j].ContractName {
			return positions[i].ContractName < positions[j].ContractName
		}
		return positions[i].ReportDate.Before(positions[j].ReportDate)
	})

	return positions, dropped
}
