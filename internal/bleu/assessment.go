package bleu

import (
	"fmt"
	"strings"
)

// Band is a coarse confidence label derived from a BLEU score
type Band string

const (
	BandHigh       Band = "High"
	BandMediumHigh Band = "Medium-High"
	BandMedium     Band = "Medium"
	BandLowMedium  Band = "Low-Medium"
	BandLow        Band = "Low"
)

type level struct {
	min            float64
	band           Band
	description    string
	rating         int
	recommendation string
}

// levels is ordered from best to worst; the first whose min is reached wins
var levels = []level{
	{0.8, BandHigh, "Excellent translation quality - minimal loss of meaning", 5,
		"Translation quality is excellent. No action needed."},
	{0.6, BandMediumHigh, "Good translation quality - some minor differences", 4,
		"Translation quality is good. Minor review recommended."},
	{0.4, BandMedium, "Moderate translation quality - noticeable differences", 3,
		"Translation quality is moderate. Consider manual review."},
	{0.2, BandLowMedium, "Poor translation quality - significant differences", 2,
		"Translation quality is poor. Manual correction recommended."},
	{0, BandLow, "Very poor translation quality - major loss of meaning", 1,
		"Translation quality is very poor. Complete retranslation advised."},
}

func levelFor(score float64) level {
	for _, l := range levels {
		if score >= l.min {
			return l
		}
	}
	return levels[len(levels)-1]
}

// Assessment is the transient quality result of one backtranslation
type Assessment struct {
	BLEUScore      float64 `json:"bleu_score"`
	Percentage     string  `json:"percentage"`
	Confidence     Band    `json:"confidence"`
	Description    string  `json:"description"`
	Rating         int     `json:"rating"`
	Recommendation string  `json:"recommendation"`
}

// Stars renders Rating as a five-star string
func (a Assessment) Stars() string {
	r := a.Rating
	if r < 0 {
		r = 0
	}
	if r > 5 {
		r = 5
	}
	return strings.Repeat("★", r) + strings.Repeat("☆", 5-r)
}

// ConfidenceLevel returns the band and its description for a score
func (s *Scorer) ConfidenceLevel(score float64) (Band, string) {
	l := levelFor(score)
	return l.band, l.description
}

// Assess scores backTranslated against original and describes the result
func (s *Scorer) Assess(original, backTranslated string) Assessment {
	score := s.CalculateBLEU(original, backTranslated)
	l := levelFor(score)

	return Assessment{
		BLEUScore:      score,
		Percentage:     fmt.Sprintf("%.2f%%", score*100),
		Confidence:     l.band,
		Description:    l.description,
		Rating:         l.rating,
		Recommendation: l.recommendation,
	}
}
