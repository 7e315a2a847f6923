// Package cftc downloads and parses the yearly Commitments of Traders archives.
package cftc

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"cot-sentiment-lab/internal/domain"
)

// Report column names.
const (
	ColContract     = "Market_and_Exchange_Names"
	ColReportDate   = "Report_Date_as_YYYY-MM-DD"
	ColProdClass    = "ProdClass"
	ColCommLong     = "Commercial_Positions_Long_All"
	ColCommShort    = "Commercial_Positions_Short_All"
	ColLSLong       = "Noncommercial_Positions_Long_All"
	ColLSShort      = "Noncommercial_Positions_Short_All"
	ColSSLong       = "Nonreportable_Positions_Long_All"
	ColSSShort      = "Nonreportable_Positions_Short_All"
	ColOpenInterest = "Open_Interest_All"
)

// requiredColumns must all be present in the header.
var requiredColumns = []string{
	ColContract, ColReportDate,
	ColCommLong, ColCommShort,
	ColLSLong, ColLSShort,
	ColSSLong, ColSSShort,
}

// HeaderError reports required columns missing from a report header.
type HeaderError struct {
	Missing []string
}

func (e *HeaderError) Error() string {
	return "report header missing columns: " + strings.Join(e.Missing, ", ")
}

// ErrEmptyReport is returned when the report has no header line.
var ErrEmptyReport = errors.New("empty report")

// Parse reads a comma-separated report with a header line.
//
// The header is validated up front. Rows whose counts cannot be parsed are
// returned with Invalid set so that normalization drops and counts them.
func Parse(r io.Reader) ([]domain.RawReportRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyReport
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		idx[name] = i
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := idx[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &HeaderError{Missing: missing}
	}

	var rows []domain.RawReportRow
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		rows = append(rows, parseRecord(record, idx))
	}

	return rows, nil
}

// parseRecord maps one record to a RawReportRow.
func parseRecord(record []string, idx map[string]int) domain.RawReportRow {
	field := func(name string) string {
		i, ok := idx[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	row := domain.RawReportRow{
		Contract:   field(ColContract),
		ReportDate: field(ColReportDate),
		ProdClass:  field(ColProdClass),
	}

	counts := []struct {
		col string
		dst *int64
	}{
		{ColCommLong, &row.CommLong},
		{ColCommShort, &row.CommShort},
		{ColLSLong, &row.LSLong},
		{ColLSShort, &row.LSShort},
		{ColSSLong, &row.SSLong},
		{ColSSShort, &row.SSShort},
	}
	for _, c := range counts {
		v, err := parseCount(field(c.col))
		if err != nil {
			row.Invalid = fmt.Sprintf("%s: %v", c.col, err)
			return row
		}
		*c.dst = v
	}

	// Open interest is optional
	if s := field(ColOpenInterest); s != "" {
		if v, err := parseCount(s); err == nil {
			row.OpenInterest = &v
		}
	}

	return row
}

func parseCount(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("missing value")
	}
	v, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return v, nil
}
