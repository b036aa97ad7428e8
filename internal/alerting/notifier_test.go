package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"autosniper/internal/valuation"
)

func sampleResult(score float64) valuation.Result {
	return valuation.Result{
		URL:               "https://auction.example/lot/7",
		Title:             "2018 Toyota Corolla Ascent",
		AnalyzedAt:        time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		Status:            valuation.StatusPriced,
		PriceEstimate:     decimal.NewNullDecimal(decimal.NewFromInt(18000)),
		RecommendedMaxBid: decimal.NewNullDecimal(decimal.NewFromInt(14500)),
		ExpectedProfit:    decimal.NewNullDecimal(decimal.NewFromInt(2000)),
		CurrentBid:        decimal.NewNullDecimal(decimal.NewFromInt(11000)),
		Score:             score,
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]any)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Errorf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	hours := 3.5
	note := FromResult(sampleResult(8.4), 8, &hours, []string{"telegram"})

	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	text, _ := received["text"].(string)
	for _, want := range []string{"Score: 8.4/10", "Max bid: $14,500", "Closes in: 3.5h", "lot/7"} {
		if !strings.Contains(text, want) {
			t.Fatalf("text missing %q:\n%s", want, text)
		}
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), FromResult(sampleResult(9), 8, nil, nil)); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestTelegramNotifierStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), FromResult(sampleResult(9), 8, nil, nil)); err == nil {
		t.Fatal("502 应报错")
	}
}

func TestShouldAlert(t *testing.T) {
	cases := []struct {
		name string
		res  valuation.Result
		want bool
	}{
		{"above threshold", sampleResult(8.5), true},
		{"at threshold", sampleResult(8), true},
		{"below threshold", sampleResult(7.9), false},
		{"unpriced", valuation.Result{Status: valuation.StatusUnpriced, Score: 9}, false},
		{"no bid", valuation.Result{Status: valuation.StatusPriced, Score: 9}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldAlert(tc.res, 8); got != tc.want {
				t.Fatalf("ShouldAlert = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRenderMessageMissingValues(t *testing.T) {
	msg := RenderMessage(Notification{URL: "u", Score: 8})
	if !strings.Contains(msg, "Max bid: N/A") || strings.Contains(msg, "Closes in") {
		t.Fatalf("unexpected message:\n%s", msg)
	}
}

func TestLogNotifier(t *testing.T) {
	if err := NewLogNotifier(testLogger()).Notify(context.Background(), Notification{URL: "u"}); err != nil {
		t.Fatalf("LogNotifier: %v", err)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
