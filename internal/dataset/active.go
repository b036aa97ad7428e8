package dataset

import (
	"io"
	"os"
	"strings"

	"autosniper/internal/normalize"
	"autosniper/internal/vehicle"
)

// Window bounds hours remaining as [MinHours, MaxHours). MaxHours <= 0 leaves the top open.
type Window struct {
	MinHours float64
	MaxHours float64
	// AnyTime keeps active rows whose time remaining is unparseable or out of bounds.
	AnyTime bool
}

// Contains reports whether h falls inside the window.
func (w Window) Contains(h float64) bool {
	if h < w.MinHours {
		return false
	}
	return w.MaxHours <= 0 || h < w.MaxHours
}

// ResolvePath returns the first candidate that exists, or "".
func ResolvePath(candidates ...string) string {
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// ParseActive reads active listings, keeping rows with status "active"
// whose time remaining parses and falls inside the window, or every active
// row when window.AnyTime is set.
func ParseActive(r io.Reader, window Window) ([]vehicle.ActiveListing, error) {
	rows, err := readRows(r)
	if err != nil {
		return nil, err
	}
	return activeFromRows(rows, window), nil
}

// LoadActive reads an active listings file.
func LoadActive(path string, window Window) ([]vehicle.ActiveListing, error) {
	rows, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return activeFromRows(rows, window), nil
}

// FindListing returns the listing with the given url.
func FindListing(listings []vehicle.ActiveListing, url string) (vehicle.ActiveListing, bool) {
	want := strings.TrimRight(strings.TrimSpace(url), "/")
	for _, l := range listings {
		if strings.TrimRight(l.URL, "/") == want {
			return l, true
		}
	}
	return vehicle.ActiveListing{}, false
}

func activeFromRows(rows []row, window Window) []vehicle.ActiveListing {
	var listings []vehicle.ActiveListing
	for _, r := range rows {
		if strings.ToLower(r.get("status")) != "active" {
			continue
		}
		hours, ok := normalize.HoursRemaining(r.get("time_remaining_or_date_sold", "time_remaining"))
		if !window.AnyTime && (!ok || !window.Contains(hours)) {
			continue
		}
		var remaining *float64
		if ok {
			remaining = &hours
		}

		listing := vehicle.ActiveListing{
			Attributes:     attributesFromRow(r),
			URL:            r.get("url"),
			Name:           r.get("name", "title"),
			CurrentBid:     r.currency("current_bid", "price"),
			HoursRemaining: remaining,
			Location:       r.get("location"),
			ConditionNotes: r.get("condition_notes", "general_condition", "condition"),
			Manual: vehicle.ManualComparables{
				Count:          r.intPtr("manual_carsales_count"),
				MinPrice:       r.currency("manual_carsales_min"),
				MaxPrice:       r.currency("manual_carsales_max"),
				AvgPrice:       r.currency("manual_carsales_avg"),
				AvgOdometer:    r.odometer("manual_carsales_avg_odometer"),
				Estimate:       r.currency("manual_carsales_estimate"),
				InstantOffer:   r.currency("manual_instant_offer_estimate"),
				RecentSales30d: r.intPtr("manual_recent_sales_30d"),
				Table:          r.get("manual_carsales_table"),
			},
		}
		listings = append(listings, listing)
	}
	return listings
}
