package valuation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"autosniper/internal/normalize"
)

// ClampContext is the fixed input every clamp stage sees.
type ClampContext struct {
	BreakEven  decimal.NullDecimal
	Headline   decimal.NullDecimal
	CurrentBid decimal.NullDecimal
	Headroom   decimal.Decimal
}

// ClampStage tightens a recommended bid. Stages return an optional note
// explaining any change they made.
type ClampStage struct {
	Name  string
	Apply func(bid decimal.NullDecimal, c ClampContext) (decimal.NullDecimal, string)
}

// ClampStages is the ordered bid clamp chain.
var ClampStages = []ClampStage{
	{Name: "cap_break_even", Apply: capBreakEven},
	{Name: "cap_headline", Apply: capHeadline},
	{Name: "floor_current_bid", Apply: floorCurrentBid},
	{Name: "cap_headroom", Apply: capHeadroom},
	{Name: "non_negative", Apply: nonNegative},
}

// RunClamps applies stages in order and collects their notes.
func RunClamps(stages []ClampStage, bid decimal.NullDecimal, c ClampContext) (decimal.NullDecimal, []string) {
	var notes []string
	for _, stage := range stages {
		var note string
		bid, note = stage.Apply(bid, c)
		if note != "" {
			notes = append(notes, note)
		}
	}
	return bid, notes
}

func capBreakEven(bid decimal.NullDecimal, c ClampContext) (decimal.NullDecimal, string) {
	if bid.Valid && c.BreakEven.Valid && bid.Decimal.GreaterThan(c.BreakEven.Decimal) {
		return c.BreakEven, ""
	}
	return bid, ""
}

func capHeadline(bid decimal.NullDecimal, c ClampContext) (decimal.NullDecimal, string) {
	if bid.Valid && c.Headline.Valid && bid.Decimal.GreaterThan(c.Headline.Decimal) {
		return c.Headline, ""
	}
	return bid, ""
}

func floorCurrentBid(bid decimal.NullDecimal, c ClampContext) (decimal.NullDecimal, string) {
	if !c.CurrentBid.Valid {
		return bid, ""
	}
	if !bid.Valid {
		return c.CurrentBid, ""
	}
	if bid.Decimal.LessThan(c.CurrentBid.Decimal) {
		return c.CurrentBid, fmt.Sprintf("Raised recommended max bid to match the current live bid (%s).",
			normalize.FormatCurrency(c.CurrentBid.Decimal))
	}
	return bid, ""
}

func capHeadroom(bid decimal.NullDecimal, c ClampContext) (decimal.NullDecimal, string) {
	if !bid.Valid || !c.CurrentBid.Valid || !c.Headroom.IsPositive() {
		return bid, ""
	}
	ceiling := c.CurrentBid.Decimal.Add(c.Headroom)
	if bid.Decimal.GreaterThan(ceiling) {
		return decimal.NewNullDecimal(ceiling), fmt.Sprintf(
			"Capped recommended max bid at %s (current bid plus %s headroom).",
			normalize.FormatCurrency(ceiling), normalize.FormatCurrency(c.Headroom))
	}
	return bid, ""
}

func nonNegative(bid decimal.NullDecimal, _ ClampContext) (decimal.NullDecimal, string) {
	if bid.Valid && bid.Decimal.IsNegative() {
		return decimal.NewNullDecimal(decimal.Zero), ""
	}
	return bid, ""
}
