package dataset

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"autosniper/internal/outcome"
	"autosniper/internal/valuation"
)

func writeFixture(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestParseSoldAliases(t *testing.T) {
	body := "Year,Make,Model,Variant,Hammer Price,Date,Indicated Odometer Reading,Bids,URL\n" +
		"2018,Toyota,Hilux,SR5,\"$32,500\",2025-02-14,\"120,000 km\",14,https://a/1\n" +
		"2017,Toyota,Hilux,SR,?,2025-02-15,90000,3,https://a/2\n" +
		"?,Ford,Ranger,XLT,28000,14/02/2025,?,?,https://a/3\n"

	records, err := ParseSold(strings.NewReader(body))
	if err != nil {
		t.Fatalf("ParseSold: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2 (missing price dropped)", len(records))
	}

	first := records[0]
	if !first.Price.Equal(decimal.NewFromInt(32500)) {
		t.Fatalf("price = %s", first.Price)
	}
	if first.Year != 2018 || first.Make != "Toyota" || first.Variant != "SR5" {
		t.Fatalf("attributes = %+v", first.Attributes)
	}
	if !first.Odometer.Valid || !first.Odometer.Decimal.Equal(decimal.NewFromInt(120000)) {
		t.Fatalf("odometer = %v", first.Odometer)
	}
	if first.DateSold == nil || first.DateSold.Day() != 14 {
		t.Fatalf("date = %v", first.DateSold)
	}
	if first.Bids == nil || *first.Bids != 14 {
		t.Fatalf("bids = %v", first.Bids)
	}

	second := records[1]
	if second.HasYear() || second.Odometer.Valid || second.Bids != nil {
		t.Fatalf("question marks should be blank: %+v", second)
	}
	if second.DateSold == nil || second.DateSold.Month() != time.February {
		t.Fatalf("dd/mm/yyyy date = %v", second.DateSold)
	}
}

func TestLoadCorpus(t *testing.T) {
	dir := t.TempDir()
	base := writeFixture(t, dir, "sold_cars.csv", "make,model,final_price\nMazda,CX-5,20000\n")
	archive := filepath.Join(dir, "archive")
	if err := os.Mkdir(archive, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFixture(t, archive, "b.csv", "make,model,sold_price\nKia,Sportage,18000\n")
	writeFixture(t, archive, "a.csv", "make,model,price\nKia,Cerato,12000\n")
	writeFixture(t, archive, "notes.txt", "ignored")

	records, err := LoadCorpus(base, archive, zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d", len(records))
	}
	if records[1].Model != "Cerato" {
		t.Fatalf("archive files should load in name order, got %s", records[1].Model)
	}

	records, err = LoadCorpus(filepath.Join(dir, "missing.csv"), "", zerolog.Nop())
	if err != nil || len(records) != 0 {
		t.Fatalf("missing base: %d records, err %v", len(records), err)
	}
}

func TestParseActiveWindow(t *testing.T) {
	body := "url,status,time_remaining_or_date_sold,year,make,model,variant,price,odometer_reading,manual_carsales_avg,manual_carsales_count\n" +
		"https://a/1,Active,5h 10m,2019,Mazda,CX-5,Maxx,\"$10,000\",\"90,000 km\",\"$18,000\",6\n" +
		"https://a/2,active,2d 1h,2019,Mazda,CX-5,Maxx,9000,80000,,\n" +
		"https://a/3,sold,2h,2019,Mazda,CX-5,Maxx,9000,80000,,\n" +
		"https://a/4,active,2025-03-01,2019,Mazda,CX-5,Maxx,9000,80000,,\n" +
		"https://a/5,active,Ended,2019,Mazda,CX-5,Maxx,9000,80000,,\n"

	listings, err := ParseActive(strings.NewReader(body), Window{MinHours: 0, MaxHours: 24})
	if err != nil {
		t.Fatalf("ParseActive: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("listings = %d, want 1", len(listings))
	}
	l := listings[0]
	if l.HoursRemaining == nil || *l.HoursRemaining < 5.16 || *l.HoursRemaining > 5.17 {
		t.Fatalf("hours = %v", l.HoursRemaining)
	}
	if !l.CurrentBid.Decimal.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("current bid = %v", l.CurrentBid)
	}
	if !l.Manual.AvgPrice.Decimal.Equal(decimal.NewFromInt(18000)) || l.Manual.Count == nil || *l.Manual.Count != 6 {
		t.Fatalf("manual = %+v", l.Manual)
	}

	open, err := ParseActive(strings.NewReader(body), Window{})
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 2 {
		t.Fatalf("open window listings = %d, want 2", len(open))
	}
	if _, ok := FindListing(open, "https://a/2/"); !ok {
		t.Fatal("FindListing should ignore trailing slash")
	}

	anyTime, err := ParseActive(strings.NewReader(body), Window{AnyTime: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(anyTime) != 4 {
		t.Fatalf("any-time listings = %d, want every active row", len(anyTime))
	}
	dated, ok := FindListing(anyTime, "https://a/4")
	if !ok {
		t.Fatal("absolute-date listing should be kept")
	}
	if dated.HoursRemaining != nil {
		t.Fatalf("hours should be unknown, got %v", *dated.HoursRemaining)
	}
}

func TestLoadActualsAndVerdicts(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "outcomes.csv",
		"url,purchase_price,purchase_date,actual_sale_price,actual_fees_total,reconditioning_cost,settled_date\n"+
			"https://a/1,12000,2025-03-01,15500,400,?,2025-03-20\n"+
			",1,2025-03-01,2,,,\n")

	actuals, err := LoadActuals(path)
	if err != nil {
		t.Fatalf("LoadActuals: %v", err)
	}
	if len(actuals) != 1 {
		t.Fatalf("actuals = %d", len(actuals))
	}
	a := actuals[0]
	if !a.SalePrice.Decimal.Equal(decimal.NewFromInt(15500)) || a.Reconditioning.Valid || a.SettledDate == nil {
		t.Fatalf("actual = %+v", a)
	}

	if got, err := LoadActuals(filepath.Join(dir, "none.csv")); err != nil || got != nil {
		t.Fatalf("missing actuals: %v %v", got, err)
	}

	vpath := writeFixture(t, dir, "verdicts.csv", "url,predicted_verdict\nhttps://a/1,Great\nhttps://a/2,\n")
	verdicts, err := LoadVerdicts(vpath)
	if err != nil {
		t.Fatalf("LoadVerdicts: %v", err)
	}
	if len(verdicts) != 1 || verdicts["https://a/1"] != "Great" {
		t.Fatalf("verdicts = %v", verdicts)
	}
}

func TestWriteExports(t *testing.T) {
	var buf bytes.Buffer
	results := []valuation.Result{{
		URL:               "https://a/1",
		AnalyzedAt:        time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Status:            valuation.StatusPriced,
		RecommendedMaxBid: decimal.NewNullDecimal(decimal.NewFromInt(13500)),
		Score:             6.25,
		Notes:             []string{"a", "b"},
		OdometerFactor:    decimal.NewFromInt(1),
	}}
	if err := WriteValuations(&buf, results); err != nil {
		t.Fatalf("WriteValuations: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1][7] != "13500" || rows[1][11] != "a; b" || rows[1][2] != "2025-03-01T00:00:00Z" {
		t.Fatalf("rows = %v", rows)
	}

	path := filepath.Join(t.TempDir(), "out", "weekly.csv")
	weekly := []outcome.WeeklyMetric{{WeekStart: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), ISOYear: 2025, ISOWeek: 10, Count: 2, Accuracy: 0.5}}
	if err := WriteFile(path, func(w io.Writer) error { return WriteWeekly(w, weekly) }); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "2025-03-03,2025,10,2,0.5000,,,") {
		t.Fatalf("weekly csv = %q", data)
	}
}
