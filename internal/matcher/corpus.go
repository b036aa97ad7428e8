package matcher

import (
	"strings"

	"autosniper/internal/vehicle"
)

// Corpus is a sold-record set normalised once for repeated queries.
type Corpus struct {
	entries []entry
}

type entry struct {
	record       vehicle.SoldRecord
	year         int
	make         string
	model        string
	variant      string
	transmission string
	fuel         string
	hybrid       bool
}

// NewCorpus normalises records. Sales without a positive price are dropped,
// and repeated source urls keep their last occurrence.
func NewCorpus(records []vehicle.SoldRecord) *Corpus {
	byURL := make(map[string]int)
	entries := make([]entry, 0, len(records))
	for _, rec := range records {
		if !rec.Price.IsPositive() {
			continue
		}
		e := newEntry(rec.Attributes)
		e.record = rec

		key := strings.ToLower(strings.TrimRight(strings.TrimSpace(rec.URL), "/"))
		if key != "" {
			if idx, ok := byURL[key]; ok {
				entries[idx] = e
				continue
			}
			byURL[key] = len(entries)
		}
		entries = append(entries, e)
	}
	return &Corpus{entries: entries}
}

// Len returns the number of usable records.
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}
