package translation

import (
	"regexp"
	"strings"
)

// AutoDetect lets the provider detect the source language
const AutoDetect = "auto"

var languagePattern = regexp.MustCompile(`^[A-Za-z]{2,3}(-[A-Za-z]{2,4})?$`)

// ValidateLanguage checks a language code such as "en", "ja" or "zh-CN".
// "auto" is only accepted when allowAuto is set.
func ValidateLanguage(code string, allowAuto bool) error {
	code = strings.TrimSpace(code)
	if allowAuto && strings.EqualFold(code, AutoDetect) {
		return nil
	}
	if !languagePattern.MatchString(code) {
		return &Error{Kind: KindInvalidLanguage, Reason: code}
	}
	return nil
}
