// Package export writes back-translation results to CSV files for use in
// spreadsheets and review tools.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"codeberg.org/snonux/backtrans/internal/history"
	"codeberg.org/snonux/backtrans/internal/translation"
)

// Row is a single exported back-translation
type Row struct {
	Original         string
	Intermediate     string
	BackTranslated   string
	SourceLang       string
	IntermediateLang string
	Provider         string
	BLEUScore        float64
	Confidence       string
	Status           string // ok, failed or cancelled; empty for history rows
	Error            string
	CreatedAt        time.Time
}

// Headers are the CSV column names, in order
var Headers = []string{
	"original", "intermediate", "back_translated", "source_lang", "intermediate_lang",
	"provider", "bleu_score", "confidence", "status", "error", "created_at",
}

// GeneratorOptions configures the CSV export
type GeneratorOptions struct {
	OutputPath     string // Output CSV file path
	IncludeHeaders bool   // Include CSV headers
}

// DefaultGeneratorOptions returns sensible defaults
func DefaultGeneratorOptions() *GeneratorOptions {
	return &GeneratorOptions{
		OutputPath:     "backtrans_export.csv",
		IncludeHeaders: true,
	}
}

// Generator collects rows and writes them as CSV
type Generator struct {
	options *GeneratorOptions
	rows    []Row
}

// NewGenerator creates a new export generator
func NewGenerator(options *GeneratorOptions) *Generator {
	if options == nil {
		options = DefaultGeneratorOptions()
	}
	return &Generator{options: options}
}

// AddRow adds a row to the export
func (g *Generator) AddRow(row Row) {
	g.rows = append(g.rows, row)
}

// AddBackTranslation adds a successful result
func (g *Generator) AddBackTranslation(bt *translation.BackTranslation, status string) {
	g.AddRow(Row{
		Original:         bt.Original,
		Intermediate:     bt.Intermediate,
		BackTranslated:   bt.BackTranslated,
		SourceLang:       bt.SourceLang,
		IntermediateLang: bt.IntermediateLang,
		Provider:         string(bt.Provider),
		BLEUScore:        bt.Quality.BLEUScore,
		Confidence:       string(bt.Quality.Confidence),
		Status:           status,
	})
}

// AddRecord adds a stored history record
func (g *Generator) AddRecord(r history.Record) {
	g.AddRow(Row{
		Original:         r.Original,
		Intermediate:     r.Intermediate,
		BackTranslated:   r.BackTranslated,
		SourceLang:       r.SourceLang,
		IntermediateLang: r.IntermediateLang,
		Provider:         r.Provider,
		BLEUScore:        r.BLEUScore,
		Confidence:       r.Confidence,
		CreatedAt:        r.CreatedAt,
	})
}

// Rows returns the collected rows
func (g *Generator) Rows() []Row {
	return g.rows
}

// OutputPath is where GenerateCSV writes
func (g *Generator) OutputPath() string {
	return g.options.OutputPath
}

// GenerateCSV writes all rows to OutputPath, creating its directory
func (g *Generator) GenerateCSV() error {
	if dir := filepath.Dir(g.options.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := os.Create(g.options.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if g.options.IncludeHeaders {
		if err := writer.Write(Headers); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}

	for _, row := range g.rows {
		if err := writer.Write(row.record()); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return file.Close()
}

func (r Row) record() []string {
	created := ""
	if !r.CreatedAt.IsZero() {
		created = r.CreatedAt.UTC().Format(time.RFC3339)
	}
	score := ""
	if r.Status == "" || r.Status == "ok" {
		score = strconv.FormatFloat(r.BLEUScore, 'f', 4, 64)
	}
	return []string{
		r.Original,
		r.Intermediate,
		r.BackTranslated,
		r.SourceLang,
		r.IntermediateLang,
		r.Provider,
		score,
		r.Confidence,
		r.Status,
		r.Error,
		created,
	}
}

// Stats returns the number of rows and how many of them failed
func (g *Generator) Stats() (total, failed int) {
	total = len(g.rows)
	for _, r := range g.rows {
		if r.Status != "" && r.Status != "ok" {
			failed++
		}
	}
	return
}
