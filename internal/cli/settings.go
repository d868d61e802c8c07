package cli

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"codeberg.org/snonux/backtrans/internal/backoff"
	"codeberg.org/snonux/backtrans/internal/provider"
	"codeberg.org/snonux/backtrans/internal/translation"
)

// Translation memory backends
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Settings is the resolved configuration after flags, environment and the
// config file have been merged by viper.
type Settings struct {
	CachePath      string
	CacheBackend   string
	CacheMaxSize   int
	CacheThreshold float64

	HistoryPath      string
	BatchWorkers     int
	SourceLang       string
	IntermediateLang string
	ServeAddr        string

	Client translation.Config
}

// LoadSettings reads every configuration key from viper. Unset paths are
// placed under StateDir.
func LoadSettings() (Settings, error) {
	backend := strings.ToLower(strings.TrimSpace(viper.GetString("cache.backend")))
	if backend == "" {
		backend = BackendJSON
	}
	if backend != BackendJSON && backend != BackendSQLite {
		return Settings{}, fmt.Errorf("unknown cache backend %q (want %s or %s)", backend, BackendJSON, BackendSQLite)
	}

	s := Settings{
		CachePath:        viper.GetString("cache.path"),
		CacheBackend:     backend,
		CacheMaxSize:     viper.GetInt("cache.max_size"),
		CacheThreshold:   viper.GetFloat64("cache.threshold"),
		HistoryPath:      viper.GetString("history.path"),
		BatchWorkers:     viper.GetInt("batch.workers"),
		SourceLang:       viper.GetString("language.source"),
		IntermediateLang: viper.GetString("language.intermediate"),
		ServeAddr:        viper.GetString("serve.addr"),
	}
	if s.CacheThreshold < 0 || s.CacheThreshold > 1 {
		return Settings{}, fmt.Errorf("cache threshold %v out of range [0, 1]", s.CacheThreshold)
	}
	if s.CachePath == "" {
		name := "tm.json"
		if backend == BackendSQLite {
			name = "tm.db"
		}
		s.CachePath = filepath.Join(StateDir(), name)
	}
	if s.HistoryPath == "" {
		s.HistoryPath = filepath.Join(StateDir(), "history.db")
	}

	cfg := translation.DefaultConfig()
	cfg.Provider = provider.Normalize(viper.GetString("provider.id"))
	cfg.UserAgent = viper.GetString("provider.user_agent")
	cfg.APIKey = GetAPIKey()
	if endpoint := viper.GetString("provider.endpoint"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if d := viper.GetDuration("provider.timeout"); d > 0 {
		cfg.Timeout = d
	}
	if n := viper.GetInt("retry.max_attempts"); n > 0 {
		cfg.MaxAttempts = n
	}
	cfg.Backoff = backoff.New(viper.GetDuration("retry.base_delay"))
	if d := viper.GetDuration("retry.max_delay"); d > 0 {
		cfg.Backoff.MaxDelay = d
	}
	cfg.Fuzzy = viper.GetBool("cache.fuzzy")
	if n := viper.GetInt("chunk.size"); n > 0 {
		cfg.ChunkSize = n
	}
	cfg.ChunkDelay = viper.GetDuration("chunk.delay")
	if n := viper.GetInt("breaker.threshold"); n >= 0 {
		cfg.BreakerThreshold = uint32(n)
	}
	if d := viper.GetDuration("breaker.timeout"); d > 0 {
		cfg.BreakerTimeout = d
	}
	if n := viper.GetInt("bleu.max_ngram"); n > 0 {
		cfg.MaxNGram = n
	}
	s.Client = cfg

	return s, nil
}

// NewLogger returns a text logger on w. Verbose lowers the level to debug;
// otherwise only warnings and errors are shown.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
