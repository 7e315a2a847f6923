package domain

import "time"

// Category is a trader category in the positioning report.
type Category string

const (
	CategoryCommercial      Category = "comm" // commercial hedgers
	CategoryLargeSpeculator Category = "ls"   // non-commercial
	CategorySmallSpeculator Category = "ss"   // non-reportable
)

// Categories lists every trader category in report order.
var Categories = []Category{CategoryCommercial, CategoryLargeSpeculator, CategorySmallSpeculator}

// NetExposure holds signed net exposure (long - short) per category.
type NetExposure struct {
	Comm int64
	LS   int64
	SS   int64
}

// Get returns the net exposure of a category.
func (n NetExposure) Get(c Category) int64 {
	switch c {
	case CategoryCommercial:
		return n.Comm
	case CategoryLargeSpeculator:
		return n.LS
	case CategorySmallSpeculator:
		return n.SS
	}
	return 0
}

// MetricRecord is the derived fact per (contract, report date).
// Corresponds to cot_metrics table. Always rederived from WeeklyPosition history.
type MetricRecord struct {
	ContractID   string
	ReportDate   time.Time
	CommNet      int64
	LSNet        int64
	SSNet        int64
	CommIndex    float64 // 0..100 rolling percentile
	LSIndex      float64
	SSIndex      float64
	WoWCommDelta *int64 // NULL for the first observation of the contract
	WoWLSDelta   *int64
	WoWSSDelta   *int64
}

// Key returns the conflict key of the record.
func (m *MetricRecord) Key() PositionKey {
	return PositionKey{ContractID: m.ContractID, ReportDate: m.ReportDate}
}
