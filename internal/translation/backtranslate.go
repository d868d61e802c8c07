package translation

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/snonux/backtrans/internal/bleu"
	"codeberg.org/snonux/backtrans/internal/provider"
)

// BackTranslation is the result of a round trip through an intermediate
// language.
type BackTranslation struct {
	Original         string          `json:"original"`
	Intermediate     string          `json:"intermediate"`
	BackTranslated   string          `json:"back_translated"`
	SourceLang       string          `json:"source_lang"`
	IntermediateLang string          `json:"intermediate_lang"`
	Provider         provider.ID     `json:"provider"`
	Quality          bleu.Assessment `json:"quality"`
	Duration         time.Duration   `json:"duration"`
}

// BackTranslate translates text into intermediateLang and the result back
// into sourceLang, then scores the round trip. The second leg starts only
// after the first succeeded. sourceLang must be a concrete language.
func (c *Client) BackTranslate(ctx context.Context, text, sourceLang, intermediateLang string) (*BackTranslation, error) {
	start := time.Now()

	if err := ValidateLanguage(sourceLang, false); err != nil {
		c.recorder.ObserveError(KindOf(err).String())
		return nil, err
	}

	intermediate, err := c.Translate(ctx, text, sourceLang, intermediateLang)
	if err != nil {
		return nil, fmt.Errorf("forward translation %s->%s: %w", sourceLang, intermediateLang, err)
	}

	back, err := c.Translate(ctx, intermediate, intermediateLang, sourceLang)
	if err != nil {
		return nil, fmt.Errorf("back translation %s->%s: %w", intermediateLang, sourceLang, err)
	}

	quality := c.scorer.Assess(text, back)
	c.recorder.ObserveBLEU(quality.BLEUScore)

	return &BackTranslation{
		Original:         text,
		Intermediate:     intermediate,
		BackTranslated:   back,
		SourceLang:       sourceLang,
		IntermediateLang: intermediateLang,
		Provider:         c.provider,
		Quality:          quality,
		Duration:         time.Since(start),
	}, nil
}

// Report renders the result as the multi-line text report
func (b *BackTranslation) Report(s *bleu.Scorer) string {
	return s.Report(b.Original, b.Intermediate, b.BackTranslated)
}
