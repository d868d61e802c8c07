package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/snonux/backtrans/internal/bleu"
	"codeberg.org/snonux/backtrans/internal/translation"
)

type fakeClient struct {
	mu       sync.Mutex
	langs    map[string]string
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	fail     map[string]error
}

func (f *fakeClient) BackTranslate(ctx context.Context, text, src, inter string) (*translation.BackTranslation, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	if f.langs == nil {
		f.langs = map[string]string{}
	}
	f.langs[text] = inter
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, &translation.Error{Kind: translation.KindCancelled, Err: ctx.Err()}
		case <-time.After(f.delay):
		}
	}
	if err, ok := f.fail[text]; ok {
		return nil, err
	}
	return &translation.BackTranslation{
		Original:       text,
		BackTranslated: text,
		Quality:        bleu.Assessment{BLEUScore: 1},
	}, nil
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) ObserveBatchItem(status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[status]++
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunner_Run(t *testing.T) {
	client := &fakeClient{
		fail: map[string]error{"bad": &translation.Error{Kind: translation.KindBlocked}},
	}
	obs := &countingObserver{}
	r := NewRunner(client, 2, obs, quietLogger())

	var callbacks atomic.Int32
	r.OnResult = func(Result) { callbacks.Add(1) }

	items := []Item{
		{Line: 1, Text: "one"},
		{Line: 2, Text: "bad"},
		{Line: 3, Text: "three", IntermediateLang: "de"},
	}
	summary, err := r.Run(context.Background(), items, "en", "ja")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Succeeded != 2 || summary.Failed != 1 || summary.Cancelled != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.AverageBLEU != 1 {
		t.Errorf("AverageBLEU = %v, want 1", summary.AverageBLEU)
	}
	if len(summary.ID) != 36 {
		t.Errorf("ID = %q, want a uuid", summary.ID)
	}
	for i, res := range summary.Results {
		if res.Item.Line != items[i].Line {
			t.Errorf("result %d is for line %d", i, res.Item.Line)
		}
	}
	if !errors.Is(summary.Results[1].Err, translation.ErrBlocked) {
		t.Errorf("failed item error = %v", summary.Results[1].Err)
	}

	if client.langs["one"] != "ja" || client.langs["three"] != "de" {
		t.Errorf("intermediate languages = %v", client.langs)
	}
	if obs.counts[StatusOK] != 2 || obs.counts[StatusFailed] != 1 {
		t.Errorf("observer counts = %v", obs.counts)
	}
	if callbacks.Load() != 3 {
		t.Errorf("OnResult called %d times, want 3", callbacks.Load())
	}
}

func TestRunner_BoundedConcurrency(t *testing.T) {
	client := &fakeClient{delay: 10 * time.Millisecond}
	r := NewRunner(client, 3, nil, quietLogger())

	var items []Item
	for i := 0; i < 12; i++ {
		items = append(items, Item{Line: i + 1, Text: fmt.Sprintf("text %d", i)})
	}
	summary, err := r.Run(context.Background(), items, "en", "ja")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Succeeded != 12 {
		t.Errorf("Succeeded = %d, want 12", summary.Succeeded)
	}
	if peak := client.peak.Load(); peak > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak)
	}
}

func TestRunner_Cancelled(t *testing.T) {
	client := &fakeClient{delay: time.Hour}
	r := NewRunner(client, 1, nil, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	items := []Item{{Line: 1, Text: "a"}, {Line: 2, Text: "b"}, {Line: 3, Text: "c"}}
	summary, err := r.Run(ctx, items, "en", "ja")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want deadline exceeded", err)
	}
	if summary.Cancelled != 3 || summary.Succeeded != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestNewRunner_Defaults(t *testing.T) {
	r := NewRunner(&fakeClient{}, 0, nil, nil)
	if r.workers != DefaultWorkers {
		t.Errorf("workers = %d, want %d", r.workers, DefaultWorkers)
	}
}
