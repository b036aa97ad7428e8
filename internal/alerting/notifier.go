package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"autosniper/internal/normalize"
	"autosniper/internal/valuation"
)

// Notification 封装一条高分估值告警。
type Notification struct {
	URL               string
	Title             string
	AnalyzedAt        time.Time
	Score             float64
	MinScore          float64
	CurrentBid        decimal.NullDecimal
	RecommendedMaxBid decimal.NullDecimal
	PriceEstimate     decimal.NullDecimal
	ExpectedProfit    decimal.NullDecimal
	HoursRemaining    *float64
	Channels          []string
	AdditionalMsg     string
}

// FromResult builds a notification for a finalised valuation.
func FromResult(res valuation.Result, minScore float64, hours *float64, channels []string) Notification {
	return Notification{
		URL:               res.URL,
		Title:             res.Title,
		AnalyzedAt:        res.AnalyzedAt,
		Score:             res.Score,
		MinScore:          minScore,
		CurrentBid:        res.CurrentBid,
		RecommendedMaxBid: res.RecommendedMaxBid,
		PriceEstimate:     res.PriceEstimate,
		ExpectedProfit:    res.ExpectedProfit,
		HoursRemaining:    hours,
		Channels:          channels,
	}
}

// ShouldAlert reports whether res clears the alert bar.
func ShouldAlert(res valuation.Result, minScore float64) bool {
	return res.Actionable() && res.Score >= minScore
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]any{
		"chat_id":                  n.chatID,
		"text":                     RenderMessage(note),
		"disable_web_page_preview": true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("url", note.URL).
		Float64("score", note.Score).
		Str("channels", strings.Join(note.Channels, ",")).
		Msg("告警已发送 (Telegram)")
	return nil
}

// LogNotifier writes alerts to the log only. Used when no chat is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the rendered alert.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Info().Str("url", note.URL).
		Float64("score", note.Score).
		Str("max_bid", normalize.FormatNullCurrency(note.RecommendedMaxBid)).
		Msg("high-score listing")
	return nil
}

// RenderMessage formats the alert body.
func RenderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[AutoSniper Alert]\n")
	if note.Title != "" {
		builder.WriteString(note.Title + "\n")
	}
	builder.WriteString(fmt.Sprintf("Score: %.1f/10 (threshold %.1f)\n", note.Score, note.MinScore))
	builder.WriteString(fmt.Sprintf("Max bid: %s\n", normalize.FormatNullCurrency(note.RecommendedMaxBid)))
	builder.WriteString(fmt.Sprintf("Current bid: %s\n", normalize.FormatNullCurrency(note.CurrentBid)))
	builder.WriteString(fmt.Sprintf("Resale estimate: %s\n", normalize.FormatNullCurrency(note.PriceEstimate)))
	builder.WriteString(fmt.Sprintf("Expected profit: %s\n", normalize.FormatNullCurrency(note.ExpectedProfit)))
	if note.HoursRemaining != nil {
		builder.WriteString(fmt.Sprintf("Closes in: %.1fh\n", *note.HoursRemaining))
	}
	if !note.AnalyzedAt.IsZero() {
		builder.WriteString(fmt.Sprintf("Analyzed: %s UTC\n", note.AnalyzedAt.UTC().Format(time.RFC3339)))
	}
	if len(note.Channels) > 0 {
		builder.WriteString(fmt.Sprintf("Channels: %s\n", strings.Join(note.Channels, ",")))
	}
	if note.URL != "" {
		builder.WriteString(note.URL + "\n")
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
