package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"autosniper/internal/config"
)

func writeFixture(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	writeFixture(t, dir, "sold_cars.csv", "url,year,make,model,variant,odometer_reading,price,date\n"+
		"https://a/s1,2018,Mazda,CX-5,Maxx Sport,85000,15500,2025-02-01\n"+
		"https://a/s2,2018,Mazda,CX-5,Maxx Sport,99000,14800,2025-02-08\n")
	writeFixture(t, dir, "active_vehicle_details.csv", "url,status,year,make,model,variant,odometer_reading,current_bid,time_remaining_or_date_sold,manual_carsales_avg,manual_carsales_avg_odometer\n"+
		"https://a/l1,active,2018,Mazda,CX-5,Maxx Sport,90000,10000,3h 10m,18000,90000\n")
	writeFixture(t, dir, "listing_outcomes.csv", "url,purchase_price,actual_sale_price,purchase_date\n"+
		"https://a/l1,12000,17000,2025-03-03\n")

	cfg := &config.Config{
		Data: config.DataConfig{
			Dir:          dir,
			SoldFile:     "sold_cars.csv",
			ArchiveDir:   "ai_analysis_ready",
			ActiveFiles:  []string{"active_vehicle_details.csv"},
			OutcomesFile: "listing_outcomes.csv",
			VerdictsFile: "ai_verdicts.csv",
		},
		Listings: config.ListingsConfig{MaxHours: 24},
		Matching: config.MatchingConfig{SimilarityThreshold: 0.5, MaxOdometerDiff: 20000},
		Valuation: config.ValuationConfig{
			CostBuffer:            1500,
			BidHeadroom:           3500,
			MinOdometerFactor:     0.25,
			MaxOdometerFactor:     1.2,
			OdometerNoteTolerance: 0.05,
			ScoreMarginDivisor:    5,
		},
		Pricing: config.PricingConfig{Provider: "none"},
		Storage: config.StorageConfig{Driver: "sqlite", SQLitePath: filepath.Join(dir, "cache.db")},
		Scoring: config.ScoringConfig{WorstMissLimit: 10},
		Export:  config.ExportConfig{MaxRows: 20},
	}
	a := NewApp(cfg, zerolog.Nop())
	var out bytes.Buffer
	a.Out = &out
	return a, &out
}

func TestValueShowAndScore(t *testing.T) {
	a, out := testApp(t)
	ctx := context.Background()

	if err := a.Value(ctx, ValueOptions{}); err != nil {
		t.Fatalf("Value: %v", err)
	}
	if !strings.Contains(out.String(), "$13,500") {
		t.Fatalf("value output missing capped bid:\n%s", out.String())
	}

	out.Reset()
	if err := a.Show(ctx, ShowOptions{}); err != nil {
		t.Fatalf("Show: %v", err)
	}
	if !strings.Contains(out.String(), "2018 Mazda CX-5 Maxx Sport") {
		t.Fatalf("show output:\n%s", out.String())
	}

	out.Reset()
	csvDir := filepath.Join(t.TempDir(), "report")
	if err := a.Score(ctx, ScoreOptions{CSVDir: csvDir}); err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !strings.Contains(out.String(), "Settled: 1") {
		t.Fatalf("score output:\n%s", out.String())
	}
	for _, name := range []string{"scored_listings.csv", "weekly_metrics.csv", "tier_metrics.csv", "worst_misses.csv"} {
		if _, err := os.Stat(filepath.Join(csvDir, name)); err != nil {
			t.Fatalf("%s not written: %v", name, err)
		}
	}
}

func TestValueSingleListingDetail(t *testing.T) {
	a, out := testApp(t)
	if err := a.Value(context.Background(), ValueOptions{URL: "https://a/l1", CSVPath: filepath.Join(t.TempDir(), "v.csv")}); err != nil {
		t.Fatalf("Value: %v", err)
	}
	for _, want := range []string{"Recommended max bid", "Notes:", "Pricing service unavailable"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("detail missing %q:\n%s", want, out.String())
		}
	}
}

func TestValueRejectsInvertedWindow(t *testing.T) {
	a, _ := testApp(t)
	lo, hi := 10.0, 5.0
	if err := a.Value(context.Background(), ValueOptions{MinHours: &lo, MaxHours: &hi}); err == nil {
		t.Fatal("inverted window should error")
	}
}

func TestMatch(t *testing.T) {
	a, out := testApp(t)
	if err := a.Match(context.Background(), MatchOptions{URL: "https://a/l1"}); err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !strings.Contains(out.String(), "Broad comparables: 2") || !strings.Contains(out.String(), "$15,500") {
		t.Fatalf("match output:\n%s", out.String())
	}
}

func TestBackfillDryRun(t *testing.T) {
	a, out := testApp(t)
	if err := a.Backfill(context.Background(), BackfillOptions{DryRun: true}); err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if !strings.Contains(out.String(), "Mazda") {
		t.Fatalf("dry-run output:\n%s", out.String())
	}
	if _, err := os.Stat(a.Config.Storage.SQLitePath); !os.IsNotExist(err) {
		t.Fatal("dry run must not open the configured store")
	}
}

func TestSyncWithoutRemote(t *testing.T) {
	a, _ := testApp(t)
	if err := a.Sync(context.Background(), SyncOptions{}); err == nil {
		t.Fatal("sync without remote url should error")
	}
}

func TestSimulateAlertRequiresAlerting(t *testing.T) {
	a, _ := testApp(t)
	if err := a.SimulateAlert(context.Background(), "https://a/l1"); err == nil {
		t.Fatal("disabled alerting should error")
	}
}
