package processor

import (
	"encoding/json"
	"fmt"
	"time"

	"codeberg.org/snonux/backtrans/internal/batch"
	"codeberg.org/snonux/backtrans/internal/memory"
	"codeberg.org/snonux/backtrans/internal/translation"
)

func (p *Processor) printf(format string, args ...any) {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *Processor) writeJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	p.printf("%s\n", data)
	return nil
}

func (p *Processor) printBackTranslation(bt *translation.BackTranslation) {
	q := bt.Quality
	p.printf("Original (%s):        %s\n", bt.SourceLang, bt.Original)
	p.printf("Intermediate (%s):    %s\n", bt.IntermediateLang, bt.Intermediate)
	p.printf("Back-translated (%s): %s\n", bt.SourceLang, bt.BackTranslated)
	if p.flags.Report {
		p.printf("\n%s\n", bt.Report(p.client.Scorer()))
		return
	}
	p.printf("Quality: %s %s (BLEU %.4f, %s)\n", q.Stars(), q.Confidence, q.BLEUScore, q.Percentage)
	p.printf("%s\n", q.Recommendation)
}

func (p *Processor) printResultLine(n, total int, res batch.Result) {
	switch res.Status {
	case batch.StatusOK:
		q := res.Result.Quality
		p.printf("[%d/%d] line %d: %s %.2f %s  %s\n", n, total, res.Item.Line, q.Stars(), q.BLEUScore, q.Confidence, res.Item.Text)
	case batch.StatusCancelled:
		p.printf("[%d/%d] line %d: cancelled\n", n, total, res.Item.Line)
	default:
		p.printf("[%d/%d] line %d: failed (%s)  %s\n", n, total, res.Item.Line, ErrorMessage(res.Err), res.Item.Text)
	}
}

func (p *Processor) printSummary(s *batch.Summary) {
	p.printf("\n=== Batch Summary ===\n")
	p.printf("Batch ID: %s\n", s.ID)
	p.printf("Total texts: %d\n", len(s.Results))
	p.printf("Succeeded: %d\n", s.Succeeded)
	if s.Failed > 0 {
		p.printf("Failed: %d\n", s.Failed)
	}
	if s.Cancelled > 0 {
		p.printf("Cancelled: %d\n", s.Cancelled)
	}
	if s.Succeeded > 0 {
		p.printf("Average BLEU: %.4f\n", s.AverageBLEU)
	}
	p.printf("Duration: %s\n", s.Duration.Round(time.Millisecond))
	p.printf("=====================\n")
}

func (p *Processor) printStats(s memory.Stats) {
	p.printf("=== Translation Memory ===\n")
	p.printf("Backend: %s (%s)\n", p.settings.CacheBackend, p.settings.CachePath)
	p.printf("Entries: %d / %d\n", s.Size, s.Capacity)
	p.printf("Lookups: %d\n", s.TotalLookups)
	p.printf("Exact hits: %d\n", s.Hits)
	p.printf("Fuzzy hits: %d\n", s.FuzzyHits)
	p.printf("Misses: %d\n", s.Misses)
	p.printf("Hit rate: %.1f%%\n", s.HitRate()*100)
	p.printf("Average lookup: %.3f ms\n", s.AverageLookupMs())
}

type batchItemReport struct {
	Line   int                          `json:"line"`
	Text   string                       `json:"text"`
	Status string                       `json:"status"`
	Error  string                       `json:"error,omitempty"`
	Result *translation.BackTranslation `json:"result,omitempty"`
}

type batchReport struct {
	ID          string            `json:"id"`
	Succeeded   int               `json:"succeeded"`
	Failed      int               `json:"failed"`
	Cancelled   int               `json:"cancelled"`
	AverageBLEU float64           `json:"average_bleu"`
	DurationMs  int64             `json:"duration_ms"`
	Items       []batchItemReport `json:"items"`
}

func newBatchReport(s *batch.Summary) batchReport {
	r := batchReport{
		ID:          s.ID,
		Succeeded:   s.Succeeded,
		Failed:      s.Failed,
		Cancelled:   s.Cancelled,
		AverageBLEU: s.AverageBLEU,
		DurationMs:  s.Duration.Milliseconds(),
		Items:       make([]batchItemReport, 0, len(s.Results)),
	}
	for _, res := range s.Results {
		item := batchItemReport{
			Line:   res.Item.Line,
			Text:   res.Item.Text,
			Status: res.Status,
			Result: res.Result,
		}
		if res.Err != nil {
			item.Error = ErrorMessage(res.Err)
		}
		r.Items = append(r.Items, item)
	}
	return r
}
