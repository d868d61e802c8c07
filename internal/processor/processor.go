package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"codeberg.org/snonux/backtrans/internal"
	"codeberg.org/snonux/backtrans/internal/api"
	"codeberg.org/snonux/backtrans/internal/archive"
	"codeberg.org/snonux/backtrans/internal/batch"
	"codeberg.org/snonux/backtrans/internal/cli"
	"codeberg.org/snonux/backtrans/internal/export"
	"codeberg.org/snonux/backtrans/internal/history"
	"codeberg.org/snonux/backtrans/internal/memory"
	"codeberg.org/snonux/backtrans/internal/telemetry"
	"codeberg.org/snonux/backtrans/internal/translation"
)

// Options carry collaborators that tests replace. Nil fields get defaults:
// a real HTTP client, os.Stdout, slog.Default() and a fresh registry.
type Options struct {
	HTTPClient translation.Doer
	Out        io.Writer
	Logger     *slog.Logger
	Registry   *prometheus.Registry
}

// Processor runs one CLI invocation against the translation stack
type Processor struct {
	flags    *cli.Flags
	settings cli.Settings
	out      io.Writer
	outMu    sync.Mutex
	logger   *slog.Logger

	metrics *telemetry.Metrics
	memory  *memory.Memory
	client  *translation.Client
	history *history.Store
	closers []io.Closer
}

// NewProcessor wires the translation memory, client, metrics and the
// optional history store from settings
func NewProcessor(flags *cli.Flags, settings cli.Settings, opts Options) (*Processor, error) {
	p := &Processor{
		flags:    flags,
		settings: settings,
		out:      opts.Out,
		logger:   opts.Logger,
	}
	if p.out == nil {
		p.out = os.Stdout
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	store, err := p.openMemoryStore()
	if err != nil {
		return nil, err
	}
	p.memory = memory.New(memory.Options{
		Capacity:  settings.CacheMaxSize,
		Threshold: settings.CacheThreshold,
		Store:     store,
		Logger:    p.logger,
	})

	p.metrics = telemetry.NewMetrics(opts.Registry)
	p.metrics.SetCacheSize(p.memory.Len())
	p.client = translation.NewClient(settings.Client, translation.Options{
		HTTPClient: opts.HTTPClient,
		Memory:     p.memory,
		Recorder:   p.metrics,
		Logger:     p.logger,
	})

	if flags.History || flags.ListHistory || flags.SearchHistory != "" {
		h, err := history.Open(settings.HistoryPath)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		p.history = h
		p.closers = append(p.closers, h)
	}

	return p, nil
}

func (p *Processor) openMemoryStore() (memory.Store, error) {
	switch p.settings.CacheBackend {
	case cli.BackendSQLite:
		s, err := memory.OpenSQLiteStore(p.settings.CachePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open translation memory: %w", err)
		}
		p.closers = append(p.closers, s)
		return s, nil
	default:
		return memory.NewFileStore(p.settings.CachePath), nil
	}
}

// Close releases the databases opened by NewProcessor
func (p *Processor) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}

// ProcessText backtranslates a single text, or translates it one way with
// --translate-only, and prints the result
func (p *Processor) ProcessText(ctx context.Context, text string) error {
	src, inter := p.settings.SourceLang, p.settings.IntermediateLang

	if p.flags.TranslateOnly {
		translated, err := p.client.Translate(ctx, text, src, inter)
		if err != nil {
			return err
		}
		if p.flags.JSON {
			return p.writeJSON(map[string]string{
				"text":        text,
				"translation": translated,
				"source_lang": src,
				"target_lang": inter,
			})
		}
		p.printf("%s\n", translated)
		return nil
	}

	bt, err := p.client.BackTranslate(ctx, text, src, inter)
	if err != nil {
		return err
	}
	p.record(ctx, bt)

	if p.flags.JSON {
		return p.writeJSON(bt)
	}
	p.printBackTranslation(bt)
	return nil
}

// ProcessBatch backtranslates every text in the batch file
func (p *Processor) ProcessBatch(ctx context.Context) error {
	items, err := batch.ReadBatchFile(p.flags.BatchFile)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		p.printf("No texts found in %s\n", p.flags.BatchFile)
		return nil
	}

	runner := batch.NewRunner(p.client, p.settings.BatchWorkers, p.metrics, p.logger)
	done := 0
	runner.OnResult = func(res batch.Result) {
		if res.Status == batch.StatusOK {
			p.record(ctx, res.Result)
		}
		if p.flags.JSON {
			return
		}
		p.outMu.Lock()
		done++
		n := done
		p.outMu.Unlock()
		p.printResultLine(n, len(items), res)
	}

	if !p.flags.JSON {
		p.printf("Processing %d texts with %d workers\n", len(items), p.settings.BatchWorkers)
	}
	summary, runErr := runner.Run(ctx, items, p.settings.SourceLang, p.settings.IntermediateLang)

	if p.flags.JSON {
		if err := p.writeJSON(newBatchReport(summary)); err != nil {
			return err
		}
	} else {
		p.printSummary(summary)
	}

	if p.flags.Export != "" {
		gen := p.newExporter()
		for _, res := range summary.Results {
			if res.Status == batch.StatusOK {
				gen.AddBackTranslation(res.Result, res.Status)
				continue
			}
			row := export.Row{
				Original:         res.Item.Text,
				SourceLang:       p.settings.SourceLang,
				IntermediateLang: res.Item.IntermediateLang,
				Status:           res.Status,
			}
			if row.IntermediateLang == "" {
				row.IntermediateLang = p.settings.IntermediateLang
			}
			if res.Err != nil {
				row.Error = ErrorMessage(res.Err)
			}
			gen.AddRow(row)
		}
		if err := p.writeExport(gen); err != nil {
			return err
		}
	}

	if runErr != nil {
		return runErr
	}
	if summary.Succeeded == 0 && summary.Failed > 0 {
		return fmt.Errorf("all %d batch items failed", summary.Failed)
	}
	return nil
}

// PrintStats prints translation memory statistics
func (p *Processor) PrintStats() error {
	stats := p.client.Stats()
	if p.flags.JSON {
		return p.writeJSON(map[string]any{
			"stats":         stats,
			"hit_rate":      stats.HitRate(),
			"avg_lookup_ms": stats.AverageLookupMs(),
			"cache_path":    p.settings.CachePath,
			"backend":       p.settings.CacheBackend,
		})
	}
	p.printStats(stats)
	return nil
}

// SearchCache lists cached translations whose source or translation
// contains query
func (p *Processor) SearchCache(query string) error {
	entries := p.memory.Search(query, 0)
	if p.flags.JSON {
		return p.writeJSON(entries)
	}
	if len(entries) == 0 {
		p.printf("No cached translations match %q\n", query)
		return nil
	}
	for _, e := range entries {
		p.printf("[%s %s] %s => %s\n", e.TargetLang, e.ProviderID, e.Source, e.Translation)
	}
	return nil
}

// ClearCache empties the translation memory. With --archive-cache the
// current file is moved aside first.
func (p *Processor) ClearCache() error {
	if p.flags.ArchiveCache {
		if p.settings.CacheBackend != cli.BackendJSON {
			return fmt.Errorf("--archive-cache requires the %s cache backend", cli.BackendJSON)
		}
		if _, err := os.Stat(p.settings.CachePath); err == nil {
			dest, err := archive.ArchiveFile(p.settings.CachePath)
			if err != nil {
				return fmt.Errorf("failed to archive translation memory: %w", err)
			}
			p.printf("Archived translation memory to %s\n", dest)
		} else {
			p.printf("No translation memory file at %s, nothing to archive\n", p.settings.CachePath)
		}
	}

	n := p.memory.Len()
	p.client.ClearCache()
	p.printf("Cleared %d cached translations\n", n)
	return nil
}

// ListHistory prints recorded backtranslations, newest first
func (p *Processor) ListHistory(ctx context.Context) error {
	if p.history == nil {
		return errors.New("history is not enabled")
	}

	var (
		records []history.Record
		err     error
	)
	if q := strings.TrimSpace(p.flags.SearchHistory); q != "" {
		records, err = p.history.Search(ctx, q, history.DefaultLimit)
	} else {
		records, err = p.history.Recent(ctx, history.DefaultLimit)
	}
	if err != nil {
		return err
	}

	if p.flags.Export != "" {
		gen := p.newExporter()
		for _, r := range records {
			gen.AddRecord(r)
		}
		if err := p.writeExport(gen); err != nil {
			return err
		}
	}

	if p.flags.JSON {
		return p.writeJSON(records)
	}
	if len(records) == 0 {
		p.printf("No history records found\n")
		return nil
	}
	for _, r := range records {
		p.printf("%s  %s  %s->%s  %.2f %-8s %s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"), r.ID[:8], r.SourceLang, r.IntermediateLang,
			r.BLEUScore, r.Confidence, r.Original)
	}
	return nil
}

// Serve runs the HTTP API until ctx is cancelled
func (p *Processor) Serve(ctx context.Context) error {
	cfg := api.Config{
		Client:                  p.client,
		Metrics:                 p.metrics,
		Logger:                  p.logger,
		DefaultSourceLang:       p.settings.SourceLang,
		DefaultIntermediateLang: p.settings.IntermediateLang,
		Version:                 internal.Version,
	}
	if p.history != nil {
		cfg.History = p.history
	}
	p.printf("Serving backtrans API on %s\n", p.settings.ServeAddr)
	return api.NewServer(cfg).Run(ctx, p.settings.ServeAddr)
}

func (p *Processor) newExporter() *export.Generator {
	return export.NewGenerator(&export.GeneratorOptions{
		OutputPath:     p.flags.Export,
		IncludeHeaders: true,
	})
}

func (p *Processor) writeExport(gen *export.Generator) error {
	if err := gen.GenerateCSV(); err != nil {
		return err
	}
	if !p.flags.JSON {
		total, failed := gen.Stats()
		p.printf("Exported %d rows (%d failed) to %s\n", total, failed, gen.OutputPath())
	}
	return nil
}

// record stores bt in history when enabled. Failures are logged only.
func (p *Processor) record(ctx context.Context, bt *translation.BackTranslation) {
	if p.history == nil || bt == nil {
		return
	}
	if _, err := p.history.Add(ctx, bt); err != nil {
		p.logger.Warn("Failed to record history", "error", err)
	}
}

// ErrorMessage is what the CLI prints for err: the short user message for
// translation failures, the error text otherwise
func ErrorMessage(err error) string {
	var terr *translation.Error
	if errors.As(err, &terr) {
		return translation.UserMessage(err)
	}
	return err.Error()
}
