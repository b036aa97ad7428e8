package estimator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"autosniper/internal/valuation"
)

// SystemPrompt frames every pricing request.
const SystemPrompt = "You are an expert automotive pricing analyst."

var (
	// ErrNoJSON is returned when a reply contains no JSON object.
	ErrNoJSON = errors.New("no JSON object in pricing reply")
	// ErrNotConfigured indicates no provider or API key was supplied.
	ErrNotConfigured = errors.New("pricing provider not configured")
)

// Completer sends one system+user exchange to a language model and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Options parameterise an Estimator and its provider.
type Options struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
	Timeout     time.Duration
	CostBuffer  decimal.Decimal
}

// Estimator turns a listing snapshot into a prompt, sends it through a
// Completer and parses the JSON reply.
type Estimator struct {
	completer  Completer
	costBuffer decimal.Decimal
	timeout    time.Duration
	logger     zerolog.Logger
}

// New wraps a Completer.
func New(completer Completer, opts Options, logger zerolog.Logger) *Estimator {
	return &Estimator{
		completer:  completer,
		costBuffer: opts.CostBuffer,
		timeout:    opts.Timeout,
		logger:     logger.With().Str("component", "estimator").Logger(),
	}
}

// FromOptions builds an Estimator for the configured provider.
func FromOptions(opts Options, logger zerolog.Logger) (*Estimator, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrNotConfigured
	}

	var completer Completer
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "openai":
		completer = NewOpenAI(opts)
	case "anthropic":
		completer = NewAnthropic(opts)
	case "", "none":
		return nil, ErrNotConfigured
	default:
		return nil, fmt.Errorf("unknown pricing provider %q", opts.Provider)
	}
	return New(completer, opts, logger), nil
}

// Estimate implements valuation.Estimator.
func (e *Estimator) Estimate(ctx context.Context, snapshot valuation.Snapshot) (valuation.Estimate, error) {
	prompt, err := BuildPrompt(snapshot, e.costBuffer)
	if err != nil {
		return valuation.Estimate{}, err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := e.completer.Complete(ctx, SystemPrompt, prompt)
	if err != nil {
		return valuation.Estimate{}, fmt.Errorf("pricing request: %w", err)
	}
	e.logger.Debug().Dur("elapsed", time.Since(start)).Int("reply_bytes", len(reply)).Msg("pricing reply received")

	block, err := ExtractJSON(reply)
	if err != nil {
		return valuation.Estimate{}, err
	}
	return valuation.ParseEstimate([]byte(block))
}

// ExtractJSON returns the outermost {...} block of a free-form reply.
func ExtractJSON(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		return trimmed, nil
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		snippet := trimmed
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return "", fmt.Errorf("%w: %q", ErrNoJSON, snippet)
	}
	return strings.TrimSpace(trimmed[start : end+1]), nil
}

var _ valuation.Estimator = (*Estimator)(nil)
