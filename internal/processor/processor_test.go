package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"codeberg.org/snonux/backtrans/internal/backoff"
	"codeberg.org/snonux/backtrans/internal/cli"
	"codeberg.org/snonux/backtrans/internal/testutil"
	"codeberg.org/snonux/backtrans/internal/translation"
)

// phrasebook answers translate requests from a fixed table keyed by target
// language and text
var phrasebook = map[string]string{
	"ja|The cat sat on the mat": "猫はマットの上に座った",
	"en|猫はマットの上に座った":         "The cat sat on the mat",
	"ja|Good morning":           "おはようございます",
	"en|おはようございます":             "Good morning",
	"de|Hello":                  "Hallo",
	"en|Hallo":                  "Hello",
}

func newPhrasebookServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		out, ok := phrasebook[q.Get("tl")+"|"+q.Get("q")]
		if !ok {
			http.Error(w, "unknown phrase", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(testutil.UnofficialResponse(out)))
	}))
	t.Cleanup(server.Close)
	return server
}

func testSettings(t *testing.T, endpoint string) cli.Settings {
	t.Helper()
	dir := t.TempDir()

	cfg := translation.DefaultConfig()
	cfg.Endpoint = endpoint
	cfg.ChunkDelay = 0
	cfg.MaxAttempts = 1
	cfg.Backoff = backoff.Policy{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	return cli.Settings{
		CachePath:        filepath.Join(dir, "tm.json"),
		CacheBackend:     cli.BackendJSON,
		CacheMaxSize:     100,
		CacheThreshold:   0.8,
		HistoryPath:      filepath.Join(dir, "history.db"),
		BatchWorkers:     2,
		SourceLang:       "en",
		IntermediateLang: "ja",
		Client:           cfg,
	}
}

func newTestProcessor(t *testing.T, flags *cli.Flags, settings cli.Settings) (*Processor, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	p, err := NewProcessor(flags, settings, Options{
		Out:      &out,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registry: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p, &out
}

func TestNewProcessor(t *testing.T) {
	flags := cli.NewFlags()
	settings := testSettings(t, "http://127.0.0.1:1")
	p, _ := newTestProcessor(t, flags, settings)

	if p.flags != flags {
		t.Error("Processor flags not set correctly")
	}
	if p.client == nil || p.memory == nil || p.metrics == nil {
		t.Error("client, memory and metrics should be initialized")
	}
	if p.history != nil {
		t.Error("history should stay closed unless requested")
	}
	// Nothing is written until the first translation is stored
	testutil.AssertFileNotExists(t, settings.CachePath)
}

func TestNewProcessor_SQLiteBackend(t *testing.T) {
	settings := testSettings(t, "http://127.0.0.1:1")
	settings.CacheBackend = cli.BackendSQLite
	settings.CachePath = filepath.Join(t.TempDir(), "tm.db")

	p, _ := newTestProcessor(t, cli.NewFlags(), settings)
	if len(p.closers) != 1 {
		t.Errorf("expected the sqlite store to be tracked for Close, got %d closers", len(p.closers))
	}
	testutil.AssertFileExists(t, settings.CachePath)
}

func TestProcessText(t *testing.T) {
	server := newPhrasebookServer(t)
	settings := testSettings(t, server.URL)
	p, out := newTestProcessor(t, cli.NewFlags(), settings)

	if err := p.ProcessText(context.Background(), "The cat sat on the mat"); err != nil {
		t.Fatalf("ProcessText() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Original (en):        The cat sat on the mat",
		"Intermediate (ja):    猫はマットの上に座った",
		"Back-translated (en): The cat sat on the mat",
		"BLEU 1.0000",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	// Both directions are cached and persisted
	if n := p.memory.Len(); n != 2 {
		t.Errorf("memory.Len() = %d, want 2", n)
	}
	testutil.AssertFileContains(t, settings.CachePath, "猫はマットの上に座った")
}

func TestProcessText_Report(t *testing.T) {
	server := newPhrasebookServer(t)
	flags := cli.NewFlags()
	flags.Report = true
	p, out := newTestProcessor(t, flags, testSettings(t, server.URL))

	if err := p.ProcessText(context.Background(), "Good morning"); err != nil {
		t.Fatalf("ProcessText() error = %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"Intermediate (ja):    おはようございます",
		"Back-translated (en): Good morning",
		p.client.Scorer().Report("Good morning", "おはようございます", "Good morning"),
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report output missing %q:\n%s", want, got)
		}
	}
}

func TestProcessText_TranslateOnlyJSON(t *testing.T) {
	server := newPhrasebookServer(t)
	flags := cli.NewFlags()
	flags.TranslateOnly = true
	flags.JSON = true
	settings := testSettings(t, server.URL)
	settings.IntermediateLang = "de"
	p, out := newTestProcessor(t, flags, settings)

	if err := p.ProcessText(context.Background(), "Hello"); err != nil {
		t.Fatalf("ProcessText() error = %v", err)
	}

	var got map[string]string
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if got["translation"] != "Hallo" || got["target_lang"] != "de" {
		t.Errorf("unexpected output: %v", got)
	}
}

func TestProcessText_Errors(t *testing.T) {
	server := newPhrasebookServer(t)
	p, _ := newTestProcessor(t, cli.NewFlags(), testSettings(t, server.URL))

	tests := []struct {
		name string
		text string
		kind translation.Kind
	}{
		{"empty", "   ", translation.KindEmptyInput},
		{"provider rejects", "unknown phrase", translation.KindInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.ProcessText(context.Background(), tt.text)
			if got := translation.KindOf(err); got != tt.kind {
				t.Errorf("KindOf(%v) = %s, want %s", err, got, tt.kind)
			}
		})
	}
}

func TestHistory(t *testing.T) {
	server := newPhrasebookServer(t)
	flags := cli.NewFlags()
	flags.History = true
	settings := testSettings(t, server.URL)
	p, out := newTestProcessor(t, flags, settings)

	ctx := context.Background()
	for _, text := range []string{"The cat sat on the mat", "Good morning"} {
		if err := p.ProcessText(ctx, text); err != nil {
			t.Fatalf("ProcessText(%q) error = %v", text, err)
		}
	}

	out.Reset()
	if err := p.ListHistory(ctx); err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if !strings.Contains(out.String(), "The cat sat on the mat") || !strings.Contains(out.String(), "Good morning") {
		t.Errorf("history listing incomplete:\n%s", out.String())
	}

	out.Reset()
	p.flags.SearchHistory = "morning"
	if err := p.ListHistory(ctx); err != nil {
		t.Fatalf("ListHistory() search error = %v", err)
	}
	if strings.Contains(out.String(), "cat") || !strings.Contains(out.String(), "Good morning") {
		t.Errorf("search should only return the matching record:\n%s", out.String())
	}
}

func TestListHistory_Disabled(t *testing.T) {
	p, _ := newTestProcessor(t, cli.NewFlags(), testSettings(t, "http://127.0.0.1:1"))
	if err := p.ListHistory(context.Background()); err == nil {
		t.Error("ListHistory() without history should fail")
	}
}

func TestProcessBatch(t *testing.T) {
	server := newPhrasebookServer(t)
	dir := testutil.CreateTestDirectory(t)
	batchFile := filepath.Join(dir, "batch", "texts.txt")
	testutil.CreateTestFile(t, batchFile, []byte("# greetings\nThe cat sat on the mat\n\nGood morning\nde = Hello\n"))

	flags := cli.NewFlags()
	flags.BatchFile = batchFile
	p, out := newTestProcessor(t, flags, testSettings(t, server.URL))

	if err := p.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{"Processing 3 texts", "Succeeded: 3", "Average BLEU: 1.0000"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Failed:") {
		t.Errorf("no item should fail:\n%s", got)
	}
}

func TestProcessBatch_JSON(t *testing.T) {
	server := newPhrasebookServer(t)
	batchFile := filepath.Join(t.TempDir(), "texts.txt")
	testutil.CreateTestFile(t, batchFile, []byte("Good morning\nnot in the phrasebook\n"))

	flags := cli.NewFlags()
	flags.BatchFile = batchFile
	flags.JSON = true
	p, out := newTestProcessor(t, flags, testSettings(t, server.URL))

	if err := p.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	var report batchReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if report.Succeeded != 1 || report.Failed != 1 || len(report.Items) != 2 {
		t.Fatalf("report = %+v", report)
	}
	if report.Items[1].Line != 2 || report.Items[1].Error != "translation failed" {
		t.Errorf("failed item = %+v", report.Items[1])
	}
}

func TestProcessBatch_AllFailed(t *testing.T) {
	server := newPhrasebookServer(t)
	batchFile := filepath.Join(t.TempDir(), "texts.txt")
	testutil.CreateTestFile(t, batchFile, []byte("nope\nstill nope\n"))

	flags := cli.NewFlags()
	flags.BatchFile = batchFile
	p, _ := newTestProcessor(t, flags, testSettings(t, server.URL))

	if err := p.ProcessBatch(context.Background()); err == nil {
		t.Error("ProcessBatch() should fail when every item fails")
	}
}

func TestProcessBatch_MissingFile(t *testing.T) {
	flags := cli.NewFlags()
	flags.BatchFile = filepath.Join(t.TempDir(), "missing.txt")
	p, _ := newTestProcessor(t, flags, testSettings(t, "http://127.0.0.1:1"))

	if err := p.ProcessBatch(context.Background()); err == nil {
		t.Error("ProcessBatch() with a missing file should fail")
	}
}

func TestPrintStatsAndSearchCache(t *testing.T) {
	server := newPhrasebookServer(t)
	p, out := newTestProcessor(t, cli.NewFlags(), testSettings(t, server.URL))

	if err := p.ProcessText(context.Background(), "Good morning"); err != nil {
		t.Fatal(err)
	}

	out.Reset()
	if err := p.PrintStats(); err != nil {
		t.Fatalf("PrintStats() error = %v", err)
	}
	if !strings.Contains(out.String(), "Entries: 2 / 100") {
		t.Errorf("stats output:\n%s", out.String())
	}

	out.Reset()
	if err := p.SearchCache("morning"); err != nil {
		t.Fatalf("SearchCache() error = %v", err)
	}
	for _, want := range []string{
		"[ja google_unofficial] Good morning => おはようございます",
		"[en google_unofficial] おはようございます => Good morning",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("search output missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	if err := p.SearchCache("nothing like this"); err != nil {
		t.Fatalf("SearchCache() error = %v", err)
	}
	if !strings.Contains(out.String(), "No cached translations match") {
		t.Errorf("search output:\n%s", out.String())
	}
}

func TestPrintStats_JSON(t *testing.T) {
	flags := cli.NewFlags()
	flags.JSON = true
	p, out := newTestProcessor(t, flags, testSettings(t, "http://127.0.0.1:1"))

	if err := p.PrintStats(); err != nil {
		t.Fatalf("PrintStats() error = %v", err)
	}
	var got struct {
		Stats struct {
			Capacity int `json:"max_size"`
		} `json:"stats"`
		Backend string `json:"backend"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got.Stats.Capacity != 100 || got.Backend != cli.BackendJSON {
		t.Errorf("unexpected stats: %+v", got)
	}
}

func TestClearCache_Archive(t *testing.T) {
	server := newPhrasebookServer(t)
	flags := cli.NewFlags()
	flags.ArchiveCache = true
	settings := testSettings(t, server.URL)
	p, out := newTestProcessor(t, flags, settings)

	if err := p.ProcessText(context.Background(), "Good morning"); err != nil {
		t.Fatal(err)
	}
	if err := p.ClearCache(); err != nil {
		t.Fatalf("ClearCache() error = %v", err)
	}

	if p.memory.Len() != 0 {
		t.Errorf("memory.Len() = %d after clear", p.memory.Len())
	}
	if !strings.Contains(out.String(), "Cleared 2 cached translations") {
		t.Errorf("output:\n%s", out.String())
	}

	archived, err := filepath.Glob(filepath.Join(filepath.Dir(settings.CachePath), "archive", "tm-*.json"))
	if err != nil || len(archived) != 1 {
		t.Fatalf("expected one archived file, got %v (%v)", archived, err)
	}
	testutil.AssertFileContains(t, archived[0], "おはようございます")
}

func TestClearCache_ArchiveNothing(t *testing.T) {
	flags := cli.NewFlags()
	flags.ArchiveCache = true
	p, out := newTestProcessor(t, flags, testSettings(t, "http://127.0.0.1:1"))

	if err := p.ClearCache(); err != nil {
		t.Fatalf("ClearCache() error = %v", err)
	}
	if !strings.Contains(out.String(), "nothing to archive") {
		t.Errorf("output:\n%s", out.String())
	}
}

func TestClearCache_ArchiveRequiresJSON(t *testing.T) {
	flags := cli.NewFlags()
	flags.ArchiveCache = true
	settings := testSettings(t, "http://127.0.0.1:1")
	settings.CacheBackend = cli.BackendSQLite
	settings.CachePath = filepath.Join(t.TempDir(), "tm.db")
	p, _ := newTestProcessor(t, flags, settings)

	if err := p.ClearCache(); err == nil {
		t.Error("--archive-cache with sqlite should fail")
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	settings := testSettings(t, "http://127.0.0.1:1")
	settings.ServeAddr = "127.0.0.1:0"
	p, _ := newTestProcessor(t, cli.NewFlags(), settings)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not stop after cancel")
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"translation error", &translation.Error{Kind: translation.KindRateLimited}, "rate limited, try later"},
		{"wrapped translation error", errors.Join(errors.New("ctx"), &translation.Error{Kind: translation.KindBlocked}), "blocked/captcha"},
		{"other error", os.ErrNotExist, os.ErrNotExist.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorMessage(tt.err); got != tt.want {
				t.Errorf("ErrorMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProcessBatch_Export(t *testing.T) {
	server := newPhrasebookServer(t)
	dir := t.TempDir()
	batchFile := filepath.Join(dir, "texts.txt")
	testutil.CreateTestFile(t, batchFile, []byte("Good morning\nde = not in the phrasebook\n"))

	flags := cli.NewFlags()
	flags.BatchFile = batchFile
	flags.Export = filepath.Join(dir, "results.csv")
	p, out := newTestProcessor(t, flags, testSettings(t, server.URL))

	if err := p.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}
	if !strings.Contains(out.String(), "Exported 2 rows (1 failed)") {
		t.Errorf("output:\n%s", out.String())
	}
	testutil.AssertFileContains(t, flags.Export, "おはようございます")
	testutil.AssertFileContains(t, flags.Export, "not in the phrasebook,,,en,de,,,,failed,translation failed")
}

func TestListHistory_Export(t *testing.T) {
	server := newPhrasebookServer(t)
	flags := cli.NewFlags()
	flags.History = true
	flags.Export = filepath.Join(t.TempDir(), "history.csv")
	p, _ := newTestProcessor(t, flags, testSettings(t, server.URL))

	ctx := context.Background()
	if err := p.ProcessText(ctx, "Good morning"); err != nil {
		t.Fatal(err)
	}
	if err := p.ListHistory(ctx); err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	testutil.AssertFileContains(t, flags.Export, "Good morning,おはようございます,Good morning,en,ja,google_unofficial,1.0000")
}
