// Package processor runs the backtrans command line actions. It wires the
// translation memory, the translation client, metrics and the history store
// from the resolved settings and prints results for single texts, batch
// files, cache maintenance and the HTTP API.
package processor
