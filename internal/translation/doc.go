// Package translation provides the translation client: it consults the
// translation memory, calls the public Google Translate endpoint with
// classified retries, circuit breaking and chunking of long texts, and
// composes two legs into a scored backtranslation.
//
// Failures are returned as *Error values whose Kind tells callers whether
// the problem was the input, the network, rate limiting, blocking or the
// provider's response. UserMessage turns any of them into a short text for
// display.
package translation
