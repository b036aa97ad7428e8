package valuation

import (
	"github.com/shopspring/decimal"

	"autosniper/internal/matcher"
	"autosniper/internal/vehicle"
)

// Snapshot is the request sent to the pricing service.
type Snapshot struct {
	Year           *int                `json:"year"`
	Make           string              `json:"make"`
	Model          string              `json:"model"`
	Variant        string              `json:"variant"`
	Location       string              `json:"location"`
	CurrentBid     decimal.NullDecimal `json:"current_bid"`
	HoursRemaining *float64            `json:"hours_remaining"`
	Odometer       decimal.NullDecimal `json:"odometer"`
	OdometerUnit   string              `json:"odometer_unit"`

	HistoricalMatchCount     int                 `json:"historical_match_count"`
	HistoricalMedian         decimal.NullDecimal `json:"historical_median"`
	HistoricalMean           decimal.NullDecimal `json:"historical_mean"`
	HistoricalMin            decimal.NullDecimal `json:"historical_min"`
	HistoricalMax            decimal.NullDecimal `json:"historical_max"`
	HistoricalMedianDiscount decimal.NullDecimal `json:"historical_median_discount"`
	HistoricalCloseMedian    decimal.NullDecimal `json:"historical_close_median"`

	Manual *ManualSnapshot `json:"carsales_manual_snapshot,omitempty"`
}

// ManualSnapshot carries operator-entered comparables.
type ManualSnapshot struct {
	ComparableCount *int                `json:"comparable_count"`
	MinPrice        decimal.NullDecimal `json:"carsales_price_min"`
	MaxPrice        decimal.NullDecimal `json:"carsales_price_max"`
	AvgPrice        decimal.NullDecimal `json:"carsales_price_average"`
	AvgOdometer     decimal.NullDecimal `json:"carsales_average_odometer"`
	Estimate        decimal.NullDecimal `json:"carsales_manual_estimate"`
	InstantOffer    decimal.NullDecimal `json:"instant_offer_estimate"`
	RecentSales30d  *int                `json:"recent_sales_30d"`
}

// NewManualSnapshot copies manual comparables, returning nil when none were entered.
func NewManualSnapshot(m vehicle.ManualComparables) *ManualSnapshot {
	if m.Empty() {
		return nil
	}
	return &ManualSnapshot{
		ComparableCount: m.Count,
		MinPrice:        m.MinPrice,
		MaxPrice:        m.MaxPrice,
		AvgPrice:        m.AvgPrice,
		AvgOdometer:     m.AvgOdometer,
		Estimate:        m.Estimate,
		InstantOffer:    m.InstantOffer,
		RecentSales30d:  m.RecentSales30d,
	}
}

// BuildSnapshot assembles the pricing request for listing. summary may be nil.
func BuildSnapshot(listing vehicle.ActiveListing, summary *matcher.Summary) Snapshot {
	snap := Snapshot{
		Make:           listing.Make,
		Model:          listing.Model,
		Variant:        listing.Variant,
		Location:       listing.Location,
		CurrentBid:     listing.CurrentBid,
		HoursRemaining: listing.HoursRemaining,
		Odometer:       listing.Odometer,
		OdometerUnit:   listing.OdometerUnit,
		Manual:         NewManualSnapshot(listing.Manual),
	}
	if listing.HasYear() {
		year := listing.Year
		snap.Year = &year
	}
	if summary != nil {
		snap.HistoricalMatchCount = summary.Broad.Count
		snap.HistoricalMedian = summary.Broad.Median
		snap.HistoricalMean = summary.Broad.Mean
		snap.HistoricalMin = summary.Broad.Min
		snap.HistoricalMax = summary.Broad.Max
		snap.HistoricalMedianDiscount = summary.MedianDiscount
		snap.HistoricalCloseMedian = summary.Close.Median
	}
	return snap
}
