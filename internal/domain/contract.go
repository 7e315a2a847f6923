package domain

// DefaultSector is assigned to contracts created from report rows.
const DefaultSector = "Unknown"

// Contract is a tracked futures instrument.
// Corresponds to contracts table in PostgreSQL.
type Contract struct {
	ID        string // stable identifier, assigned on first sighting
	Name      string // display name, UNIQUE, trimmed
	Sector    string // sector classification, DefaultSector if unknown
	CreatedAt int64  // record creation timestamp (ms)
}
