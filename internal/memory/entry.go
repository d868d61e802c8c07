package memory

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"codeberg.org/snonux/backtrans/internal/provider"
)

// Key identifies a cached translation. Build it with NewKey so the source
// text and language are normalized the same way on store and lookup.
type Key struct {
	Source     string
	TargetLang string
	Provider   provider.ID
}

// NewKey normalizes its inputs into a Key: the source is trimmed and put in
// Unicode NFC form, the language is lowercased, the provider is normalized.
func NewKey(source, targetLang string, p provider.ID) Key {
	return Key{
		Source:     NormalizeText(source),
		TargetLang: strings.ToLower(strings.TrimSpace(targetLang)),
		Provider:   provider.Normalize(string(p)),
	}
}

// NormalizeText trims text and converts it to NFC
func NormalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

// Entry is one cached translation
type Entry struct {
	Source      string      `json:"source"`
	Translation string      `json:"translation"`
	TargetLang  string      `json:"target_lang"`
	ProviderID  provider.ID `json:"provider_id"`
	AccessTime  time.Time   `json:"access_time"`
}

func (e *Entry) key() Key {
	return Key{Source: e.Source, TargetLang: e.TargetLang, Provider: e.ProviderID}
}

// Metrics are the lookup counters of a Memory. They only grow until Clear.
type Metrics struct {
	Hits         int     `json:"hits"`
	Misses       int     `json:"misses"`
	FuzzyHits    int     `json:"fuzzy_hits"`
	TotalLookups int     `json:"total_lookups"`
	TotalTimeMs  float64 `json:"total_time"`
}

// Stats is a point-in-time copy of a Memory's counters and size
type Stats struct {
	Metrics
	Size     int `json:"cache_size"`
	Capacity int `json:"max_size"`
}

// HitRate returns exact plus fuzzy hits over all lookups
func (s Stats) HitRate() float64 {
	if s.TotalLookups == 0 {
		return 0
	}
	return float64(s.Hits+s.FuzzyHits) / float64(s.TotalLookups)
}

// AverageLookupMs returns the mean lookup time in milliseconds
func (s Stats) AverageLookupMs() float64 {
	if s.TotalLookups == 0 {
		return 0
	}
	return s.TotalTimeMs / float64(s.TotalLookups)
}
