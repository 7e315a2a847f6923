package domain

import "time"

// ReportDateLayout is the ISO 8601 date layout used by report rows.
const ReportDateLayout = "2006-01-02"

// RawReportRow is a report row as handed over by the retrieval layer.
// Counts are already numeric; ReportDate is the unparsed ISO date string.
type RawReportRow struct {
	Contract     string // market and exchange display name
	ReportDate   string // YYYY-MM-DD, rows without it are dropped
	ProdClass    string // product class, optional
	CommLong     int64
	CommShort    int64
	LSLong       int64 // large speculators (non-commercial)
	LSShort      int64
	SSLong       int64 // small speculators (non-reportable)
	SSShort      int64
	OpenInterest *int64 // optional
	Invalid      string // why the source could not parse the row, dropped if set
}

// WeeklyPosition is one raw positioning fact per (contract, report date).
// Corresponds to cot_weekly table in PostgreSQL.
type WeeklyPosition struct {
	ContractID   string    // set once the contract name is resolved
	ContractName string    // trimmed display name
	ReportDate   time.Time // UTC midnight
	ProdClass    *string
	CommLong     int64
	CommShort    int64
	LSLong       int64
	LSShort      int64
	SSLong       int64
	SSShort      int64
	OpenInterest *int64
}

// Key returns the conflict key of the position.
func (p *WeeklyPosition) Key() PositionKey {
	return PositionKey{ContractID: p.ContractID, ReportDate: p.ReportDate}
}

// PositionKey is the (contract identifier, report date) conflict key shared
// by raw and derived rows.
type PositionKey struct {
	ContractID string
	ReportDate time.Time
}
