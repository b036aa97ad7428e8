// Package normalize converts loosely formatted listing values into canonical numbers and text.
//
// Parsers never fail: malformed input yields ok == false and callers treat it as a null.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

var (
	numberRegexp    = regexp.MustCompile(`\d+(?:\.\d+)?`)
	rangeRegexp     = regexp.MustCompile(`\d\s*(?:-|–|—|\bto\b)\s*\$?\s*\d`)
	isoDateRegexp   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	nonAlnumRegexp  = regexp.MustCompile(`[^a-z0-9]+`)
	durationRegexps = map[rune]*regexp.Regexp{
		'd': regexp.MustCompile(`(\d+)\s*d`),
		'h': regexp.MustCompile(`(\d+)\s*h`),
		'm': regexp.MustCompile(`(\d+)\s*m`),
		's': regexp.MustCompile(`(\d+)\s*s`),
	}
	terminalStates = []string{"ended", "sold", "closed"}
)

// Currency parses a price such as "$12,340", "AUD 9500" or "$12,000 - $15,000".
// Ranges collapse to the arithmetic mean of their bounds.
func Currency(v any) (decimal.Decimal, bool) {
	if d, ok, handled := fromNumeric(v); handled {
		return d, ok
	}
	text, ok := v.(string)
	if !ok {
		return decimal.Decimal{}, false
	}
	text = strings.TrimSpace(text)
	if text == "" || text == "?" {
		return decimal.Decimal{}, false
	}

	cleaned := strings.NewReplacer("$", "", ",", "", "AUD", "", "aud", "").Replace(text)
	matches := numberRegexp.FindAllString(cleaned, -1)
	if len(matches) == 0 {
		return decimal.Decimal{}, false
	}

	if len(matches) > 1 && rangeRegexp.MatchString(strings.ToLower(cleaned)) {
		sum := decimal.Zero
		for _, m := range matches {
			n, err := decimal.NewFromString(m)
			if err != nil {
				return decimal.Decimal{}, false
			}
			sum = sum.Add(n)
		}
		return sum.Div(decimal.NewFromInt(int64(len(matches)))), true
	}

	n, err := decimal.NewFromString(matches[0])
	if err != nil {
		return decimal.Decimal{}, false
	}
	if strings.HasPrefix(strings.TrimSpace(cleaned), "-") {
		n = n.Neg()
	}
	return n, true
}

// FormatCurrency renders a whole-dollar amount like "$12,345".
func FormatCurrency(d decimal.Decimal) string {
	rounded := d.Round(0).IntPart()
	if rounded < 0 {
		return "-$" + humanize.Comma(-rounded)
	}
	return "$" + humanize.Comma(rounded)
}

// FormatNullCurrency renders d or "N/A" when it is not set.
func FormatNullCurrency(d decimal.NullDecimal) string {
	if !d.Valid {
		return "N/A"
	}
	return FormatCurrency(d.Decimal)
}

// Odometer parses readings such as "123,456 km".
func Odometer(v any) (decimal.Decimal, bool) {
	if d, ok, handled := fromNumeric(v); handled {
		return d, ok
	}
	text, ok := v.(string)
	if !ok {
		return decimal.Decimal{}, false
	}
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" || text == "?" {
		return decimal.Decimal{}, false
	}
	text = strings.NewReplacer(",", "", "kms", "", "km", "").Replace(text)
	match := numberRegexp.FindString(text)
	if match == "" {
		return decimal.Decimal{}, false
	}
	n, err := decimal.NewFromString(match)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return n, true
}

// FormatOdometer renders a reading like "123,456 km".
func FormatOdometer(d decimal.Decimal) string {
	return humanize.Comma(d.Round(0).IntPart()) + " km"
}

// HoursRemaining converts countdown text like "1d 4h 22m" into hours.
// Absolute dates, terminal states and zero totals yield no value.
func HoursRemaining(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && n > 0
	case int:
		return float64(n), n > 0
	}
	text, ok := v.(string)
	if !ok {
		return 0, false
	}
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" || isoDateRegexp.MatchString(text) {
		return 0, false
	}
	for _, state := range terminalStates {
		if strings.Contains(text, state) {
			return 0, false
		}
	}

	seconds := 0
	for unit, re := range durationRegexps {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			switch unit {
			case 'd':
				seconds += n * 24 * 3600
			case 'h':
				seconds += n * 3600
			case 'm':
				seconds += n * 60
			case 's':
				seconds += n
			}
		}
	}
	if seconds == 0 {
		return 0, false
	}
	return float64(seconds) / 3600, true
}

// Int parses positive integers such as "2019", "12.0" or "1,204".
func Int(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, n > 0
	case int64:
		return int(n), n > 0
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return int(n), n >= 1
	}
	text, ok := v.(string)
	if !ok {
		return 0, false
	}
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || f < 1 {
		return 0, false
	}
	return int(f), true
}

// Text lowercases s and collapses non-alphanumeric runs into single spaces.
func Text(s string) string {
	return strings.TrimSpace(nonAlnumRegexp.ReplaceAllString(strings.ToLower(s), " "))
}

// Loose lowercases and trims s.
func Loose(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ColumnKey converts a header like "Indicated Odometer Reading" into "indicated_odometer_reading".
func ColumnKey(s string) string {
	return strings.Trim(nonAlnumRegexp.ReplaceAllString(strings.ToLower(s), "_"), "_")
}

func fromNumeric(v any) (decimal.Decimal, bool, bool) {
	switch n := v.(type) {
	case nil:
		return decimal.Decimal{}, false, true
	case decimal.Decimal:
		return n, true, true
	case decimal.NullDecimal:
		return n.Decimal, n.Valid, true
	case int:
		return decimal.NewFromInt(int64(n)), true, true
	case int64:
		return decimal.NewFromInt(n), true, true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Decimal{}, false, true
		}
		return decimal.NewFromFloat(n), true, true
	case float32:
		return fromNumeric(float64(n))
	}
	return decimal.Decimal{}, false, false
}
