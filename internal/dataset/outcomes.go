package dataset

import (
	"errors"
	"io"
	"io/fs"

	"autosniper/internal/outcome"
)

// ParseActuals reads settled outcome rows keyed by url.
func ParseActuals(r io.Reader) ([]outcome.Actual, error) {
	rows, err := readRows(r)
	if err != nil {
		return nil, err
	}
	return actualsFromRows(rows), nil
}

// LoadActuals reads an outcomes file. A missing file yields no rows.
func LoadActuals(path string) ([]outcome.Actual, error) {
	rows, err := readFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return actualsFromRows(rows), nil
}

// LoadVerdicts reads url to verdict label overrides. A missing file yields none.
func LoadVerdicts(path string) (map[string]string, error) {
	rows, err := readFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	verdicts := make(map[string]string, len(rows))
	for _, r := range rows {
		url := r.get("url")
		verdict := r.get("predicted_verdict", "verdict")
		if url != "" && verdict != "" {
			verdicts[url] = verdict
		}
	}
	return verdicts, nil
}

func actualsFromRows(rows []row) []outcome.Actual {
	actuals := make([]outcome.Actual, 0, len(rows))
	for _, r := range rows {
		url := r.get("url")
		if url == "" {
			continue
		}
		actuals = append(actuals, outcome.Actual{
			URL:            url,
			PurchasePrice:  r.currency("purchase_price"),
			PurchaseDate:   r.date("purchase_date"),
			SalePrice:      r.currency("actual_sale_price"),
			Fees:           r.currency("actual_fees_total"),
			Reconditioning: r.currency("reconditioning_cost"),
			SettledDate:    r.date("settled_date"),
		})
	}
	return actuals
}
