package translation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// DefaultEndpoint is the public translate endpoint used by the gtx client
const DefaultEndpoint = "https://translate.googleapis.com/translate_a/single"

const acceptHeader = "application/json,text/plain,*/*"

func newUnofficialRequest(ctx context.Context, endpoint, userAgent, text, sourceLang, targetLang string) (*http.Request, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	q := u.Query()
	q.Set("client", "gtx")
	q.Set("sl", sourceLang)
	q.Set("tl", targetLang)
	q.Set("dt", "t")
	q.Set("q", text)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", acceptHeader)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	return req, nil
}

// ParseUnofficialResponse extracts the translation from a response body of
// the form [[["translated","original",...],...],...]. The first element of
// every tuple is concatenated in order and the result trimmed.
func ParseUnofficialResponse(body []byte) (string, error) {
	var root []json.RawMessage
	if err := json.Unmarshal(body, &root); err != nil {
		return "", &Error{Kind: KindUnknownProviderResponse, Reason: "body is not a JSON array", Err: err}
	}
	if len(root) == 0 {
		return "", &Error{Kind: KindUnknownProviderResponse, Reason: "empty top-level array"}
	}

	var segments []json.RawMessage
	if err := json.Unmarshal(root[0], &segments); err != nil {
		return "", &Error{Kind: KindUnknownProviderResponse, Reason: "missing translation segments", Err: err}
	}

	var b strings.Builder
	for _, raw := range segments {
		var tuple []json.RawMessage
		if err := json.Unmarshal(raw, &tuple); err != nil || len(tuple) == 0 {
			continue
		}
		var part string
		if err := json.Unmarshal(tuple[0], &part); err != nil {
			continue
		}
		b.WriteString(part)
	}

	result := strings.TrimSpace(b.String())
	if result == "" {
		return "", &Error{Kind: KindUnknownProviderResponse, Reason: "missing translation segments"}
	}
	return result, nil
}
