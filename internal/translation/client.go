package translation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"codeberg.org/snonux/backtrans/internal/backoff"
	"codeberg.org/snonux/backtrans/internal/bleu"
	"codeberg.org/snonux/backtrans/internal/memory"
	"codeberg.org/snonux/backtrans/internal/provider"
)

const (
	DefaultMaxAttempts      = 4
	DefaultTimeout          = 20 * time.Second
	DefaultChunkDelay       = 200 * time.Millisecond
	DefaultBreakerThreshold = 5
	DefaultBreakerTimeout   = 30 * time.Second

	maxResponseBytes = 10 << 20
)

// Lookup sources reported to the Recorder
const (
	SourceCache = "cache"
	SourceFuzzy = "fuzzy"
	SourceAPI   = "api"
)

// Memory is the translation cache the client consults and fills
type Memory interface {
	Lookup(source, targetLang string, p provider.ID) (string, bool)
	FuzzyLookup(source, targetLang string, p provider.ID) (string, float64, bool)
	Store(source, translation, targetLang string, p provider.ID)
	Clear()
	Stats() memory.Stats
}

// Doer sends HTTP requests; *http.Client satisfies it
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Recorder receives client metrics. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveRequest(source string)
	ObserveError(kind string)
	ObserveRetry()
	ObserveProviderLatency(d time.Duration)
	ObserveBLEU(score float64)
	SetCacheSize(n int)
}

// Config holds client settings
type Config struct {
	Provider    provider.ID
	Endpoint    string
	UserAgent   string
	APIKey      string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     backoff.Policy
	Fuzzy       bool
	ChunkSize   int
	ChunkDelay  time.Duration

	// BreakerThreshold consecutive failures open the circuit; 0 disables it
	BreakerThreshold uint32
	BreakerTimeout   time.Duration

	MaxNGram int
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() Config {
	return Config{
		Provider:         provider.Default,
		Endpoint:         DefaultEndpoint,
		Timeout:          DefaultTimeout,
		MaxAttempts:      DefaultMaxAttempts,
		Backoff:          backoff.DefaultPolicy(),
		Fuzzy:            true,
		ChunkSize:        DefaultChunkSize,
		ChunkDelay:       DefaultChunkDelay,
		BreakerThreshold: DefaultBreakerThreshold,
		BreakerTimeout:   DefaultBreakerTimeout,
		MaxNGram:         bleu.DefaultMaxNGram,
	}
}

// Options carry the collaborators of a Client. Nil fields get defaults:
// an http.Client with Config.Timeout, an in-process Memory, no metrics and
// slog.Default().
type Options struct {
	HTTPClient Doer
	Memory     Memory
	Recorder   Recorder
	Logger     *slog.Logger
}

// Client translates text through the translation memory and the remote
// provider. It is safe for concurrent use.
type Client struct {
	cfg      Config
	provider provider.ID
	http     Doer
	memory   Memory
	recorder Recorder
	logger   *slog.Logger
	breaker  *gobreaker.CircuitBreaker
	scorer   *bleu.Scorer
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

// NewClient creates a Client from cfg and opts
func NewClient(cfg Config, opts Options) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Backoff.BaseDelay <= 0 {
		cfg.Backoff = backoff.DefaultPolicy()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}

	c := &Client{
		cfg:      cfg,
		provider: provider.Normalize(string(cfg.Provider)),
		http:     opts.HTTPClient,
		memory:   opts.Memory,
		recorder: opts.Recorder,
		logger:   opts.Logger,
		scorer:   bleu.NewScorer(cfg.MaxNGram),
		now:      time.Now,
		sleep:    waitFor,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: cfg.Timeout}
	}
	if c.memory == nil {
		c.memory = memory.New(memory.Options{Logger: opts.Logger})
	}
	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if cfg.BreakerThreshold > 0 {
		c.breaker = newBreaker(cfg, c.logger)
	}
	return c
}

func newBreaker(cfg Config, logger *slog.Logger) *gobreaker.CircuitBreaker {
	threshold := cfg.BreakerThreshold
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "translate-" + string(provider.Normalize(string(cfg.Provider))),
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			switch KindOf(err) {
			case KindTransient, KindRateLimited, KindBlocked:
				return false
			}
			return true
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

// Provider returns the normalized provider id
func (c *Client) Provider() provider.ID {
	return c.provider
}

// Scorer returns the BLEU scorer used for backtranslations
func (c *Client) Scorer() *bleu.Scorer {
	return c.scorer
}

// Stats returns the translation memory statistics
func (c *Client) Stats() memory.Stats {
	return c.memory.Stats()
}

// ClearCache empties the translation memory
func (c *Client) ClearCache() {
	c.memory.Clear()
	c.recorder.SetCacheSize(0)
}

// Translate translates text from sourceLang to targetLang. Cached
// translations are returned without contacting the provider; new ones are
// stored in the memory only when every chunk succeeded.
func (c *Client) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	translated, err := c.translate(ctx, text, sourceLang, targetLang)
	if err != nil {
		c.recorder.ObserveError(KindOf(err).String())
	}
	return translated, err
}

func (c *Client) translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", &Error{Kind: KindEmptyInput}
	}
	if err := ValidateLanguage(sourceLang, true); err != nil {
		return "", err
	}
	if err := ValidateLanguage(targetLang, false); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", &Error{Kind: KindCancelled, Err: err}
	}

	p := c.provider
	if cached, ok := c.memory.Lookup(text, targetLang, p); ok {
		c.logger.Debug("Translation memory hit", "target", targetLang)
		c.recorder.ObserveRequest(SourceCache)
		return cached, nil
	}
	if c.cfg.Fuzzy {
		if cached, score, ok := c.memory.FuzzyLookup(text, targetLang, p); ok {
			c.logger.Debug("Translation memory fuzzy hit", "target", targetLang, "score", score)
			c.recorder.ObserveRequest(SourceFuzzy)
			return cached, nil
		}
	}

	if p != provider.GoogleUnofficial {
		return "", &Error{Kind: KindUnsupportedProvider, Reason: string(p)}
	}

	translated, err := c.translateChunks(ctx, strings.TrimSpace(text), sourceLang, targetLang)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", &Error{Kind: KindCancelled, Err: err}
	}

	c.recorder.ObserveRequest(SourceAPI)
	c.memory.Store(text, translated, targetLang, p)
	c.recorder.SetCacheSize(c.memory.Stats().Size)
	return translated, nil
}

// translateChunks sends text in chunks spaced at least ChunkDelay apart
// and joins the results with single spaces.
func (c *Client) translateChunks(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	chunks := SplitChunks(text, c.cfg.ChunkSize)
	if len(chunks) == 1 {
		return c.fetch(ctx, chunks[0], sourceLang, targetLang)
	}

	every := rate.Inf
	if c.cfg.ChunkDelay > 0 {
		every = rate.Every(c.cfg.ChunkDelay)
	}
	limiter := rate.NewLimiter(every, 1)

	c.logger.Debug("Translating in chunks", "chunks", len(chunks))
	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		if err := limiter.Wait(ctx); err != nil {
			return "", &Error{Kind: KindCancelled, Err: err}
		}
		part, err := c.fetch(ctx, chunk, sourceLang, targetLang)
		if err != nil {
			return "", fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err)
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, " "), nil
}

// retry runs the retry loop for one request
func (c *Client) retry(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	var last *Error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", &Error{Kind: KindCancelled, Attempts: attempt - 1, Err: err}
		}

		translated, err := c.call(ctx, text, sourceLang, targetLang)
		if err == nil {
			c.logger.Info("Translated via provider", "provider", c.provider,
				"source", sourceLang, "target", targetLang, "attempt", attempt)
			return translated, nil
		}

		if !errors.As(err, &last) {
			last = &Error{Kind: KindUnknown, Err: err}
		}
		last.Attempts = attempt

		if !last.Kind.Retryable() {
			if last.Kind != KindCancelled {
				c.logger.Error("Translation failed", "kind", last.Kind.String(), "attempt", attempt, "error", last)
			}
			return "", last
		}
		if attempt == c.cfg.MaxAttempts {
			break
		}

		delay := c.cfg.Backoff.Delay(attempt)
		if last.Kind == KindRateLimited && last.RetryAfter > 0 {
			delay = last.RetryAfter
			if c.cfg.Backoff.MaxDelay > 0 && delay > c.cfg.Backoff.MaxDelay {
				delay = c.cfg.Backoff.MaxDelay
			}
		}
		c.logger.Warn("Retrying translation", "kind", last.Kind.String(), "attempt", attempt, "delay", delay)
		c.recorder.ObserveRetry()

		if err := c.sleep(ctx, delay); err != nil {
			return "", &Error{Kind: KindCancelled, Attempts: attempt, Err: err}
		}
	}

	c.logger.Error("Translation failed after retries", "kind", last.Kind.String(), "attempts", last.Attempts, "error", last)
	return "", last
}

// fetch runs one retry loop, through the circuit breaker if enabled. The
// breaker records a single outcome per loop.
func (c *Client) fetch(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if c.breaker == nil {
		return c.retry(ctx, text, sourceLang, targetLang)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.retry(ctx, text, sourceLang, targetLang)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", &Error{Kind: KindCircuitOpen, Err: err}
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (c *Client) call(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	req, err := newUnofficialRequest(ctx, c.cfg.Endpoint, c.cfg.UserAgent, text, sourceLang, targetLang)
	if err != nil {
		return "", &Error{Kind: KindInvalidResponse, Reason: "building request", Err: err}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", ClassifyTransportError(ctx, err).AsError()
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.recorder.ObserveProviderLatency(time.Since(start))
	if err != nil {
		return "", ClassifyTransportError(ctx, err).AsError()
	}

	outcome := Classify(resp.StatusCode, resp.Header, body, c.now())
	c.logger.Debug("Provider response", "status", resp.StatusCode, "outcome", outcome.Kind.String())
	if outcome.Kind != OutcomeSuccess {
		return "", outcome.AsError()
	}

	translated, err := ParseUnofficialResponse(outcome.Body)
	if err != nil {
		var terr *Error
		if errors.As(err, &terr) {
			terr.Status = resp.StatusCode
		}
		return "", err
	}
	return translated, nil
}

// waitFor waits for d or until ctx is done
func waitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type nopRecorder struct{}

func (nopRecorder) ObserveRequest(string)                {}
func (nopRecorder) ObserveError(string)                  {}
func (nopRecorder) ObserveRetry()                        {}
func (nopRecorder) ObserveProviderLatency(time.Duration) {}
func (nopRecorder) ObserveBLEU(float64)                  {}
func (nopRecorder) SetCacheSize(int)                     {}
