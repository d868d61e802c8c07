// Package bleu scores how well a back-translated text preserves the
// original, using a simplified BLEU metric (clipped n-gram precision with a
// brevity penalty), and turns the score into a human-readable assessment.
package bleu
