// Package provider defines the closed set of translation backends and the
// normalization of free-form provider names into them.
package provider

import "strings"

// ID identifies a translation backend
type ID string

const (
	// GoogleUnofficial is the public web endpoint (client=gtx). It is the default.
	GoogleUnofficial ID = "google_unofficial"
	// GoogleOfficial is the Cloud Translation API, which requires an API key.
	GoogleOfficial ID = "google_official"
	// Local is an offline translation service.
	Local ID = "local"
)

// Default is returned for empty or unrecognized input
const Default = GoogleUnofficial

var aliases = map[string]ID{
	"google_unofficial":      GoogleUnofficial,
	"unofficial":             GoogleUnofficial,
	"google_unofficial_free": GoogleUnofficial,
	"google_free":            GoogleUnofficial,
	"googletranslate":        GoogleUnofficial,
	"google_official":        GoogleOfficial,
	"official":               GoogleOfficial,
	"google":                 GoogleOfficial,
	"google_cloud":           GoogleOfficial,
	"googlecloud":            GoogleOfficial,
	"local":                  Local,
}

// Normalize maps a free-form provider name to a known ID. It never fails:
// anything it does not recognize becomes Default.
func Normalize(raw string) ID {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", "_")
	if id, ok := aliases[key]; ok {
		return id
	}
	return Default
}

// String returns the canonical provider name
func (id ID) String() string {
	return string(id)
}

// Known reports whether id is one of the canonical IDs
func (id ID) Known() bool {
	switch id {
	case GoogleUnofficial, GoogleOfficial, Local:
		return true
	}
	return false
}

// RequiresAPIKey reports whether the provider needs credentials
func (id ID) RequiresAPIKey() bool {
	return id == GoogleOfficial
}

// All returns the canonical IDs in a stable order
func All() []ID {
	return []ID{GoogleUnofficial, GoogleOfficial, Local}
}
