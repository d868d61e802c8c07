// Package memory implements the translation memory: a bounded cache of
// previously computed translations keyed by source text, target language
// and provider, with exact and fuzzy lookup, insertion-order eviction and
// best-effort persistence through a pluggable Store.
package memory
