package normalize

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCurrency(t *testing.T) {
	cases := []struct {
		name  string
		in    any
		want  string
		valid bool
	}{
		{name: "plain", in: "$12,340", want: "12340", valid: true},
		{name: "aud prefix", in: "AUD 9,500", want: "9500", valid: true},
		{name: "range mean", in: "$12,000 - $15,000", want: "13500", valid: true},
		{name: "range words", in: "$20,000 to $25,000", want: "22500", valid: true},
		{name: "decimal", in: "$1,234.50", want: "1234.5", valid: true},
		{name: "negative", in: "-$500", want: "-500", valid: true},
		{name: "numeric", in: 18000.0, want: "18000", valid: true},
		{name: "int", in: 42, want: "42", valid: true},
		{name: "empty", in: "", valid: false},
		{name: "question mark", in: "?", valid: false},
		{name: "words only", in: "no estimate", valid: false},
		{name: "nil", in: nil, valid: false},
		{name: "nan", in: math.NaN(), valid: false},
		{name: "unsupported type", in: []string{"1"}, valid: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Currency(tc.in)
			if ok != tc.valid {
				t.Fatalf("Currency(%v) ok = %v, want %v", tc.in, ok, tc.valid)
			}
			if !tc.valid {
				return
			}
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("Currency(%v) = %s, want %s", tc.in, got, tc.want)
			}
		})
	}
}

func TestCurrencyRoundTrip(t *testing.T) {
	for _, v := range []string{"0", "1", "999", "1000", "12345.4", "12345.6", "987654321"} {
		d := decimal.RequireFromString(v)
		parsed, ok := Currency(FormatCurrency(d))
		if !ok {
			t.Fatalf("round trip of %s failed to parse", v)
		}
		if !parsed.Equal(d.Round(0)) {
			t.Fatalf("round trip of %s = %s, want %s", v, parsed, d.Round(0))
		}
	}
}

func TestFormatCurrency(t *testing.T) {
	if got := FormatCurrency(decimal.NewFromInt(16500)); got != "$16,500" {
		t.Fatalf("FormatCurrency = %q", got)
	}
	if got := FormatCurrency(decimal.NewFromInt(-2500)); got != "-$2,500" {
		t.Fatalf("FormatCurrency negative = %q", got)
	}
	if got := FormatNullCurrency(decimal.NullDecimal{}); got != "N/A" {
		t.Fatalf("FormatNullCurrency = %q", got)
	}
}

func TestOdometer(t *testing.T) {
	got, ok := Odometer("123,456 km")
	if !ok || !got.Equal(decimal.NewFromInt(123456)) {
		t.Fatalf("Odometer = %s, %v", got, ok)
	}
	got, ok = Odometer(85000)
	if !ok || !got.Equal(decimal.NewFromInt(85000)) {
		t.Fatalf("Odometer numeric = %s, %v", got, ok)
	}
	if _, ok := Odometer("unknown"); ok {
		t.Fatal("Odometer should reject text without digits")
	}
	if got := FormatOdometer(decimal.NewFromInt(123456)); got != "123,456 km" {
		t.Fatalf("FormatOdometer = %q", got)
	}
}

func TestHoursRemaining(t *testing.T) {
	cases := []struct {
		in    any
		want  float64
		valid bool
	}{
		{in: "1d 4h 22m", want: 28 + 22.0/60, valid: true},
		{in: "23h 10m", want: 23 + 10.0/60, valid: true},
		{in: "45m", want: 0.75, valid: true},
		{in: "3h 10m10s", want: 3 + 10.0/60 + 10.0/3600, valid: true},
		{in: "2025-06-26", valid: false},
		{in: "Sold", valid: false},
		{in: "auction ended", valid: false},
		{in: "Closed", valid: false},
		{in: "0h 0m", valid: false},
		{in: "", valid: false},
		{in: nil, valid: false},
	}

	for _, tc := range cases {
		got, ok := HoursRemaining(tc.in)
		if ok != tc.valid {
			t.Fatalf("HoursRemaining(%v) ok = %v, want %v", tc.in, ok, tc.valid)
		}
		if ok && math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("HoursRemaining(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestInt(t *testing.T) {
	if n, ok := Int("2019"); !ok || n != 2019 {
		t.Fatalf("Int = %d, %v", n, ok)
	}
	if n, ok := Int("2,019.0"); !ok || n != 2019 {
		t.Fatalf("Int with separators = %d, %v", n, ok)
	}
	if _, ok := Int("0"); ok {
		t.Fatal("Int should reject zero")
	}
	if _, ok := Int("abc"); ok {
		t.Fatal("Int should reject text")
	}
}

func TestText(t *testing.T) {
	cases := map[string]string{
		"Toyota":            "toyota",
		"  HiLux SR5 (4x4) ": "hilux sr5 4x4",
		"Hybrid/e-CVT":      "hybrid e cvt",
		"":                  "",
	}
	for in, want := range cases {
		if got := Text(in); got != want {
			t.Fatalf("Text(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestColumnKey(t *testing.T) {
	cases := map[string]string{
		"Indicated Odometer Reading": "indicated_odometer_reading",
		"Final Price ($)":            "final_price",
		"date_sold":                  "date_sold",
	}
	for in, want := range cases {
		if got := ColumnKey(in); got != want {
			t.Fatalf("ColumnKey(%q) = %q, want %q", in, got, want)
		}
	}
}
