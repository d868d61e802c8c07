package bleu

import (
	"fmt"
	"math"
	"strings"
	"unicode"
)

// DefaultMaxNGram is the highest n-gram order used when none is configured
const DefaultMaxNGram = 4

// Scorer computes BLEU scores up to a fixed n-gram order
type Scorer struct {
	maxNGram int
}

// NewScorer creates a scorer. Non-positive maxNGram falls back to DefaultMaxNGram.
func NewScorer(maxNGram int) *Scorer {
	if maxNGram <= 0 {
		maxNGram = DefaultMaxNGram
	}
	return &Scorer{maxNGram: maxNGram}
}

// MaxNGram returns the configured n-gram order
func (s *Scorer) MaxNGram() int {
	return s.maxNGram
}

// CalculateBLEU scores candidate against reference in [0, 1].
//
// Per-order precisions for n = 1..min(maxNGram, len(candidate)) are
// multiplied together and the product is rooted by maxNGram, not by the
// number of orders actually evaluated, so very short candidates are not
// rewarded for skipping orders they cannot have.
func (s *Scorer) CalculateBLEU(reference, candidate string) float64 {
	refTokens := Tokenize(reference)
	candTokens := Tokenize(candidate)
	if len(refTokens) == 0 || len(candTokens) == 0 {
		return 0
	}

	product := 1.0
	for n := 1; n <= s.maxNGram && n <= len(candTokens); n++ {
		candNGrams := ngrams(candTokens, n)
		if len(candNGrams) == 0 {
			continue
		}
		product *= clippedPrecision(ngrams(refTokens, n), candNGrams)
	}

	precision := math.Pow(product, 1.0/float64(s.maxNGram))
	score := precision * brevityPenalty(len(refTokens), len(candTokens))

	return math.Max(0, math.Min(1, score))
}

// Tokenize lowercases text and splits it into words on whitespace and
// punctuation. Letters, digits and combining marks of any script are kept.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.IsMark(r)
	})
}

func ngrams(tokens []string, n int) []string {
	if n <= 0 || len(tokens) < n {
		return nil
	}
	out := make([]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		out = append(out, strings.Join(tokens[i:i+n], " "))
	}
	return out
}

// clippedPrecision counts candidate n-grams found in the reference, each
// reference n-gram being usable at most once.
func clippedPrecision(reference, candidate []string) float64 {
	available := make(map[string]int, len(reference))
	for _, g := range reference {
		available[g]++
	}

	matches := 0
	for _, g := range candidate {
		if available[g] > 0 {
			available[g]--
			matches++
		}
	}
	return float64(matches) / float64(len(candidate))
}

func brevityPenalty(refLen, candLen int) float64 {
	if candLen >= refLen {
		return 1
	}
	return math.Exp(1 - float64(refLen)/float64(candLen))
}

// Report renders a multi-line quality report for a full round trip
func (s *Scorer) Report(original, intermediate, backTranslated string) string {
	a := s.Assess(original, backTranslated)

	var b strings.Builder
	b.WriteString("=== TRANSLATION QUALITY REPORT ===\n\n")
	fmt.Fprintf(&b, "Original Text Length: %d characters\n", len([]rune(original)))
	fmt.Fprintf(&b, "Intermediate Text Length: %d characters\n", len([]rune(intermediate)))
	fmt.Fprintf(&b, "Back-translated Text Length: %d characters\n\n", len([]rune(backTranslated)))
	fmt.Fprintf(&b, "BLEU Score: %s\n", a.Percentage)
	fmt.Fprintf(&b, "Confidence Level: %s\n", a.Confidence)
	fmt.Fprintf(&b, "Quality Rating: %s\n\n", a.Stars())
	fmt.Fprintf(&b, "Assessment: %s\n\n", a.Description)
	fmt.Fprintf(&b, "Recommendations: %s\n\n", a.Recommendation)
	b.WriteString("=== TEXT COMPARISON ===\n")
	fmt.Fprintf(&b, "Original: %s\n", truncate(original, 100))
	fmt.Fprintf(&b, "Back-translated: %s\n", truncate(backTranslated, 100))
	b.WriteString(strings.Repeat("=", 50))

	return b.String()
}

func truncate(s string, maxRunes int) string {
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes]) + "..."
}
