package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/vera/internal/models"
)

// columnAliases maps lower-case header names to the field they fill
var columnAliases = map[string]string{
	"date":       "date",
	"time":       "date",
	"timestamp":  "date",
	"trade_date": "date",
	"datetime":   "date",

	"symbol": "symbol",
	"ticker": "symbol",
	"code":   "symbol",

	"open":  "open",
	"high":  "high",
	"low":   "low",
	"close": "close",
	"price": "close",

	"volume": "volume",
	"vol":    "volume",

	"pe":             "pe",
	"pe_static":      "pe",
	"pe_ttm":         "pe_ttm",
	"pettm":          "pe_ttm",
	"pb":             "pb",
	"ps":             "ps",
	"eps":            "eps",
	"dividend_yield": "dividend_yield",
	"dy":             "dividend_yield",
}

var dateLayouts = []string{
	models.DateLayout,
	"2006/01/02",
	"20060102",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseCSV reads daily bars from r. Rows without a symbol column use
// defaultSymbol. Malformed rows are returned as RowErrors, not failures;
// only an unreadable file or a missing date/close column is an error.
func ParseCSV(r io.Reader, defaultSymbol, source string) ([]models.RawPriceRow, []models.RowError, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	cols := make(map[string]int)
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if field, ok := columnAliases[key]; ok {
			if _, dup := cols[field]; !dup {
				cols[field] = i
			}
		}
	}
	if _, ok := cols["date"]; !ok {
		return nil, nil, fmt.Errorf("csv has no date column (date, time, timestamp)")
	}
	if _, ok := cols["close"]; !ok {
		return nil, nil, fmt.Errorf("csv has no close column")
	}
	if _, ok := cols["symbol"]; !ok && defaultSymbol == "" {
		return nil, nil, fmt.Errorf("csv has no symbol column and no symbol was given")
	}

	var rows []models.RawPriceRow
	var rowErrors []models.RowError
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			rowErrors = append(rowErrors, models.RowError{Line: line, Message: err.Error()})
			continue
		}
		if blank(record) {
			continue
		}

		row, err := parseRecord(record, cols, defaultSymbol)
		if err != nil {
			rowErrors = append(rowErrors, models.RowError{Line: line, Symbol: row.RawSymbol, Message: err.Error()})
			continue
		}
		row.Source = source
		row.Line = line
		rows = append(rows, row)
	}
	return rows, rowErrors, nil
}

func parseRecord(record []string, cols map[string]int, defaultSymbol string) (models.RawPriceRow, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	row := models.RawPriceRow{RawSymbol: field("symbol")}
	if row.RawSymbol == "" {
		row.RawSymbol = defaultSymbol
	}

	date, err := parseDate(field("date"))
	if err != nil {
		return row, err
	}
	row.TradeDate = date

	cl, err := optional(field("close"))
	if err != nil || cl == nil {
		return row, fmt.Errorf("invalid close %q", field("close"))
	}
	row.Close = *cl

	for name, dst := range map[string]**float64{
		"open": &row.Open, "high": &row.High, "low": &row.Low,
		"pe": &row.PE, "pe_ttm": &row.PETTM, "pb": &row.PB, "ps": &row.PS,
		"eps": &row.EPS, "dividend_yield": &row.DividendYield,
	} {
		v, err := optional(field(name))
		if err != nil {
			return row, fmt.Errorf("invalid %s %q", name, field(name))
		}
		*dst = v
	}

	if vol, err := optional(field("volume")); err != nil {
		return row, fmt.Errorf("invalid volume %q", field("volume"))
	} else if vol != nil {
		row.Volume = *vol
	}
	return row, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// optional parses a number; empty cells and common null markers are nil
func optional(s string) (*float64, error) {
	s = strings.ReplaceAll(s, ",", "")
	switch strings.ToLower(s) {
	case "", "-", "--", "nan", "null", "none", "n/a":
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
