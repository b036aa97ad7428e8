// Package vehicle holds the canonical listing and sale records shared by matching and valuation.
package vehicle

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Attributes describes a vehicle independently of how it is being sold.
type Attributes struct {
	Year         int
	Make         string
	Model        string
	Variant      string
	Transmission string
	FuelType     string
	Odometer     decimal.NullDecimal
	OdometerUnit string
}

// HasYear reports whether the year is known.
func (a Attributes) HasYear() bool {
	return a.Year > 0
}

// Title renders "2019 Toyota Hilux SR5" style labels.
func (a Attributes) Title() string {
	parts := make([]string, 0, 4)
	if a.HasYear() {
		parts = append(parts, strconv.Itoa(a.Year))
	}
	for _, p := range []string{a.Make, a.Model, a.Variant} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// ManualComparables are operator-entered reference prices for a listing.
type ManualComparables struct {
	Count          *int
	MinPrice       decimal.NullDecimal
	MaxPrice       decimal.NullDecimal
	AvgPrice       decimal.NullDecimal
	AvgOdometer    decimal.NullDecimal
	Estimate       decimal.NullDecimal
	InstantOffer   decimal.NullDecimal
	RecentSales30d *int
	Table          string
}

// Empty reports whether no manual value was entered.
func (m ManualComparables) Empty() bool {
	return m.Count == nil && !m.MinPrice.Valid && !m.MaxPrice.Valid && !m.AvgPrice.Valid &&
		!m.AvgOdometer.Valid && !m.Estimate.Valid && !m.InstantOffer.Valid &&
		m.RecentSales30d == nil && m.Table == ""
}

// ActiveListing is a live auction lot.
type ActiveListing struct {
	Attributes
	URL            string
	Name           string
	CurrentBid     decimal.NullDecimal
	HoursRemaining *float64
	Location       string
	ConditionNotes string
	Manual         ManualComparables
}

// Label returns the scraped title or one built from the attributes.
func (l ActiveListing) Label() string {
	if l.Name != "" {
		return l.Name
	}
	return l.Attributes.Title()
}

// SoldRecord is an immutable historical sale.
type SoldRecord struct {
	Attributes
	URL      string
	Location string
	Price    decimal.Decimal
	DateSold *time.Time
	Bids     *int
}
