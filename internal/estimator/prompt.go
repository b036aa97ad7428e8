package estimator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"autosniper/internal/normalize"
	"autosniper/internal/valuation"
)

const responseSchema = `{
  "carsales_price_estimate": "$31000",
  "carsales_price_range": "$29500 - $32500",
  "recommended_max_bid": "$25500",
  "expected_profit": "$5500",
  "profit_margin_percent": "18%",
  "score_out_of_10": 7.5,
  "confidence_notes": [
    "short note 1",
    "short note 2"
  ]
}`

// BuildPrompt renders the user prompt for one listing.
func BuildPrompt(snapshot valuation.Snapshot, costBuffer decimal.Decimal) (string, error) {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are an automotive pricing strategist. Evaluate the following listing and use your knowledge of ")
	b.WriteString("Carsales.com.au market pricing for comparable vehicles in Australia. Incorporate the provided ")
	b.WriteString("historical auction data as a wholesale reference point.\n\n")
	b.WriteString("Listing snapshot (JSON):\n")
	b.Write(body)
	b.WriteString("\n\nInstructions:\n")
	b.WriteString("1. Estimate a realistic Carsales.com.au private sale price range (AUD) for the vehicle today.\n")
	b.WriteString("2. Within that range, provide a single best-estimate price (AUD) you would target for resale.\n")
	fmt.Fprintf(&b, "3. Recommend a maximum bid (AUD) to stay profitable, assuming auction fees and reconditioning costs of %s total.\n",
		normalize.FormatCurrency(costBuffer))
	b.WriteString("4. Estimate the resulting profit (AUD) and profit margin (%) using your best-estimate resale price and recommended max bid.\n")
	b.WriteString("5. Highlight key rationale factors or market risks in 2-3 short bullet points.\n")
	b.WriteString("6. Provide an investment attractiveness score out of 10 (higher is better) based on resale upside versus risk.\n")
	b.WriteString("7. If data is insufficient, be explicit and default to conservative figures.\n\n")
	b.WriteString("Return only valid JSON with this exact schema:\n")
	b.WriteString(responseSchema)
	b.WriteString("\n\nAll currency values must be strings starting with \"$\" and rounded to the nearest $10.\n")
	b.WriteString("The score must be numeric between 0 and 10 (inclusive) and align with your stated rationale.\n")
	return b.String(), nil
}
