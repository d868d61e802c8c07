package memory

import (
	"container/list"
	"errors"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"codeberg.org/snonux/backtrans/internal/provider"
)

const (
	DefaultCapacity  = 1000
	DefaultThreshold = 0.8
)

// Options configure a Memory. Zero values select the defaults; a nil Store
// keeps the memory purely in process.
type Options struct {
	Capacity  int
	Threshold float64
	Store     Store
	Logger    *slog.Logger
}

// Memory is a bounded, concurrency-safe translation cache. When full it
// evicts the entry inserted earliest; updating an existing entry keeps its
// position.
type Memory struct {
	mu      sync.RWMutex
	entries map[Key]*list.Element
	order   *list.List // of *Entry, oldest at the front

	metricsMu sync.Mutex
	metrics   Metrics

	saveMu sync.Mutex
	store  Store

	capacity  int
	threshold float64
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Memory and loads any state persisted in opts.Store. Load
// failures are logged and leave the memory empty.
func New(opts Options) *Memory {
	m := &Memory{
		entries:   make(map[Key]*list.Element),
		order:     list.New(),
		store:     opts.Store,
		capacity:  opts.Capacity,
		threshold: opts.Threshold,
		logger:    opts.Logger,
		now:       time.Now,
	}
	if m.capacity <= 0 {
		m.capacity = DefaultCapacity
	}
	if m.threshold <= 0 || m.threshold > 1 {
		m.threshold = DefaultThreshold
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.load()
	return m
}

func (m *Memory) load() {
	if m.store == nil {
		return
	}
	snap, err := m.store.Load()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("Could not load translation memory, starting empty", "error", err)
		}
		return
	}
	if snap == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range snap.Cache {
		e := snap.Cache[i]
		e.Source = NormalizeText(e.Source)
		e.TargetLang = strings.ToLower(strings.TrimSpace(e.TargetLang))
		e.ProviderID = provider.Normalize(string(e.ProviderID))
		if e.Source == "" {
			continue
		}
		m.putLocked(&e)
	}
	m.metrics = snap.Metrics
	m.logger.Debug("Loaded translation memory", "entries", m.order.Len())
}

// Capacity returns the maximum number of entries
func (m *Memory) Capacity() int { return m.capacity }

// Threshold returns the fuzzy match threshold
func (m *Memory) Threshold() float64 { return m.threshold }

// Len returns the number of cached entries
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.order.Len()
}

// Lookup returns the cached translation for an exact key match and
// refreshes its access time.
func (m *Memory) Lookup(source, targetLang string, p provider.ID) (string, bool) {
	start := time.Now()
	key := NewKey(source, targetLang, p)

	m.mu.Lock()
	var translation string
	el, ok := m.entries[key]
	if ok {
		e := el.Value.(*Entry)
		e.AccessTime = m.now()
		translation = e.Translation
	}
	m.mu.Unlock()

	m.metricsMu.Lock()
	m.metrics.TotalLookups++
	if ok {
		m.metrics.Hits++
	} else {
		m.metrics.Misses++
	}
	m.metrics.TotalTimeMs += msSince(start)
	m.metricsMu.Unlock()

	return translation, ok
}

// FuzzyLookup returns the translation whose source is most similar to
// source among entries with the same language and provider, provided the
// similarity reaches the threshold.
func (m *Memory) FuzzyLookup(source, targetLang string, p provider.ID) (string, float64, bool) {
	start := time.Now()
	key := NewKey(source, targetLang, p)
	queryLen := utf8.RuneCountInString(key.Source)

	var (
		best      float64
		bestMatch string
		found     bool
	)

	m.mu.RLock()
	for el := m.order.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*Entry)
		if e.TargetLang != key.TargetLang || e.ProviderID != key.Provider {
			continue
		}
		if similarityUpperBound(queryLen, utf8.RuneCountInString(e.Source)) < m.threshold {
			continue
		}
		score := Similarity(key.Source, e.Source)
		if score >= m.threshold && score > best {
			best, bestMatch, found = score, e.Translation, true
		}
	}
	m.mu.RUnlock()

	m.metricsMu.Lock()
	m.metrics.TotalLookups++
	if found {
		m.metrics.FuzzyHits++
	} else {
		m.metrics.Misses++
	}
	m.metrics.TotalTimeMs += msSince(start)
	m.metricsMu.Unlock()

	if !found {
		return "", 0, false
	}
	return bestMatch, best, true
}

// Store inserts or updates a translation and persists the memory
func (m *Memory) Store(source, translation, targetLang string, p provider.ID) {
	key := NewKey(source, targetLang, p)
	if key.Source == "" {
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	m.putLocked(&Entry{
		Source:      key.Source,
		Translation: translation,
		TargetLang:  key.TargetLang,
		ProviderID:  key.Provider,
		AccessTime:  m.now(),
	})
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.persist(snap)
}

// putLocked upserts e and evicts the oldest entries beyond capacity.
// The caller holds m.mu.
func (m *Memory) putLocked(e *Entry) {
	k := e.key()
	if el, ok := m.entries[k]; ok {
		el.Value = e
		return
	}
	m.entries[k] = m.order.PushBack(e)

	for m.order.Len() > m.capacity {
		oldest := m.order.Front()
		evicted := oldest.Value.(*Entry)
		delete(m.entries, evicted.key())
		m.order.Remove(oldest)
	}
}

// Clear drops all entries, resets the metrics and persists the empty state
func (m *Memory) Clear() {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	m.entries = make(map[Key]*list.Element)
	m.order.Init()
	m.metricsMu.Lock()
	m.metrics = Metrics{}
	m.metricsMu.Unlock()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.persist(snap)
}

// Stats returns a copy of the counters together with size and capacity
func (m *Memory) Stats() Stats {
	size := m.Len()
	m.metricsMu.Lock()
	defer m.metricsMu.Unlock()
	return Stats{Metrics: m.metrics, Size: size, Capacity: m.capacity}
}

// Entries returns a copy of all entries, oldest first
func (m *Memory) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesLocked()
}

// Search returns up to limit entries, newest first, whose source or
// translation contains query case-insensitively. A limit <= 0 means all.
func (m *Memory) Search(query string, limit int) []Entry {
	needle := strings.ToLower(NormalizeText(query))

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entry
	for el := m.order.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*Entry)
		if needle != "" &&
			!strings.Contains(strings.ToLower(e.Source), needle) &&
			!strings.Contains(strings.ToLower(e.Translation), needle) {
			continue
		}
		out = append(out, *e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (m *Memory) entriesLocked() []Entry {
	out := make([]Entry, 0, m.order.Len())
	for el := m.order.Front(); el != nil; el = el.Next() {
		out = append(out, *el.Value.(*Entry))
	}
	return out
}

// snapshotLocked copies the state to persist. The caller holds m.mu.
func (m *Memory) snapshotLocked() *Snapshot {
	if m.store == nil {
		return nil
	}
	m.metricsMu.Lock()
	metrics := m.metrics
	m.metricsMu.Unlock()
	return &Snapshot{
		Config:  Config{MaxSize: m.capacity, Threshold: m.threshold},
		Cache:   m.entriesLocked(),
		Metrics: metrics,
	}
}

// persist writes snap outside of m.mu. The caller holds m.saveMu so
// snapshots reach the store in the order they were taken.
func (m *Memory) persist(snap *Snapshot) {
	if snap == nil {
		return
	}
	if err := m.store.Save(snap); err != nil {
		m.logger.Warn("Could not persist translation memory", "error", err)
	}
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
