package dataset

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"autosniper/internal/normalize"
	"autosniper/internal/vehicle"
)

// ParseSold reads a sold corpus CSV. Rows without a parseable sale price are skipped.
func ParseSold(r io.Reader) ([]vehicle.SoldRecord, error) {
	rows, err := readRows(r)
	if err != nil {
		return nil, err
	}
	return soldFromRows(rows), nil
}

// LoadSold reads one sold corpus file.
func LoadSold(path string) ([]vehicle.SoldRecord, error) {
	rows, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return soldFromRows(rows), nil
}

// LoadCorpus reads the base sold file plus every CSV in archiveDir.
// A missing base file or directory is not an error; unreadable archive
// files are skipped with a warning.
func LoadCorpus(basePath, archiveDir string, logger zerolog.Logger) ([]vehicle.SoldRecord, error) {
	var records []vehicle.SoldRecord

	if basePath != "" {
		base, err := LoadSold(basePath)
		switch {
		case err == nil:
			records = append(records, base...)
		case errors.Is(err, fs.ErrNotExist):
			logger.Debug().Str("path", basePath).Msg("base sold file not found")
		default:
			return nil, fmt.Errorf("load sold corpus: %w", err)
		}
	}

	for _, path := range archiveFiles(archiveDir) {
		extra, err := LoadSold(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable archive file")
			continue
		}
		records = append(records, extra...)
	}

	logger.Debug().Int("records", len(records)).Msg("sold corpus loaded")
	return records, nil
}

func archiveFiles(dir string) []string {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil
	}
	sort.Strings(paths)
	return paths
}

func soldFromRows(rows []row) []vehicle.SoldRecord {
	records := make([]vehicle.SoldRecord, 0, len(rows))
	for _, r := range rows {
		price := r.currency("final_price", "price", "sold_price", "hammer_price")
		if !price.Valid {
			continue
		}
		records = append(records, vehicle.SoldRecord{
			Attributes: attributesFromRow(r),
			URL:        r.get("url"),
			Location:   r.get("location"),
			Price:      price.Decimal,
			DateSold:   r.date("date_sold", "time_remaining_or_date_sold"),
			Bids:       r.intPtr("final_bids"),
		})
	}
	return records
}

func attributesFromRow(r row) vehicle.Attributes {
	attrs := vehicle.Attributes{
		Make:         r.get("make"),
		Model:        r.get("model"),
		Variant:      r.get("variant"),
		Transmission: r.get("transmission"),
		FuelType:     r.get("fuel_type", "fuel"),
		Odometer:     r.odometer("odometer_reading", "odometer_numeric"),
		OdometerUnit: r.get("odometer_unit"),
	}
	if year, ok := normalize.Int(r.get("year")); ok {
		attrs.Year = year
	}
	if attrs.Odometer.Valid && attrs.OdometerUnit == "" {
		attrs.OdometerUnit = "km"
	}
	return attrs
}
