// Package dataset reads and writes the CSV files the advisor works from:
// sold corpora, active listings, settled outcomes and report exports.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"autosniper/internal/normalize"
)

// aliases fill a canonical column from the first populated alternative.
var aliases = map[string][]string{
	"final_price":      {"price", "hammer_price", "sold_price"},
	"final_bids":       {"bids"},
	"date_sold":        {"date"},
	"odometer_reading": {"indicated_odometer_reading", "indicated_odometer", "odometer"},
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"Mon 2 Jan 2006",
}

// row is one CSV record keyed by snake-cased header.
type row map[string]string

func (r row) get(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r[k]); v != "" {
			return v
		}
	}
	return ""
}

func (r row) currency(keys ...string) decimal.NullDecimal {
	for _, k := range keys {
		if d, ok := normalize.Currency(r[k]); ok {
			return decimal.NewNullDecimal(d)
		}
	}
	return decimal.NullDecimal{}
}

func (r row) odometer(keys ...string) decimal.NullDecimal {
	for _, k := range keys {
		if d, ok := normalize.Odometer(r[k]); ok {
			return decimal.NewNullDecimal(d)
		}
	}
	return decimal.NullDecimal{}
}

func (r row) intPtr(keys ...string) *int {
	for _, k := range keys {
		if n, ok := normalize.Int(r[k]); ok {
			return &n
		}
	}
	return nil
}

func (r row) date(keys ...string) *time.Time {
	for _, k := range keys {
		if t, ok := parseDate(r[k]); ok {
			return &t
		}
	}
	return nil
}

func parseDate(v string) (time.Time, bool) {
	text := strings.TrimSpace(v)
	if text == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// readRows parses a CSV with a header line. Header names are snake-cased,
// "?" cells are blanked and canonical aliases are filled in.
func readRows(r io.Reader) ([]row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = normalize.ColumnKey(strings.TrimPrefix(h, "\ufeff"))
	}

	var rows []row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		rec := make(row, len(keys))
		for i, key := range keys {
			if i >= len(record) || key == "" {
				continue
			}
			value := strings.TrimSpace(record[i])
			if value == "?" {
				value = ""
			}
			if _, seen := rec[key]; !seen || value != "" {
				rec[key] = value
			}
		}
		for canonical, alts := range aliases {
			if rec.get(canonical) == "" {
				if v := rec.get(alts...); v != "" {
					rec[canonical] = v
				}
			}
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func readFile(path string) ([]row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := readRows(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}
