// Package batch reads batch files and backtranslates their items
// concurrently through one shared client.
package batch

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"codeberg.org/snonux/backtrans/internal/translation"
)

// Item is one text to backtranslate
type Item struct {
	Line int    // 1-based line number in the batch file
	Text string
	// IntermediateLang overrides the run's intermediate language if set
	IntermediateLang string
}

// ReadBatchFile reads items from a file, one per line.
// Supports formats:
// - Plain text: "The weather is nice today"
// - With an intermediate language: "de = The weather is nice today"
// Blank lines and lines starting with '#' are skipped. A prefix before '='
// that is not a language code is treated as part of the text.
func ReadBatchFile(filename string) ([]Item, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var items []Item
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if item, ok := parseLine(scanner.Text()); ok {
			item.Line = lineNo
			items = append(items, item)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	return items, nil
}

func parseLine(line string) (Item, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Item{}, false
	}

	if lang, text, found := strings.Cut(line, "="); found {
		lang = strings.TrimSpace(lang)
		text = strings.TrimSpace(text)
		if translation.ValidateLanguage(lang, false) == nil {
			if text == "" {
				return Item{}, false
			}
			return Item{Text: text, IntermediateLang: lang}, true
		}
	}
	return Item{Text: line}, true
}
