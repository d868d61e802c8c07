package translation

import (
	"context"
	"testing"
)

func TestParseUnofficialResponse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"single segment", `[[["こんにちは世界","Hello world",null,null,1]]]`, "こんにちは世界", false},
		{"multiple segments", `[[["Hallo, ","Hello, ",null],["Welt. ","world. ",null]],null,"en"]`, "Hallo, Welt.", false},
		{"skips odd tuples", `[[[null,"x"],["ok","y"],[]]]`, "ok", false},
		{"object", `{"a":1}`, "", true},
		{"empty array", `[]`, "", true},
		{"no segments", `[null]`, "", true},
		{"blank translation", `[[["  ","x"]]]`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUnofficialResponse([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseUnofficialResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && KindOf(err) != KindUnknownProviderResponse {
				t.Errorf("kind = %v", KindOf(err))
			}
			if got != tt.want {
				t.Errorf("ParseUnofficialResponse() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewUnofficialRequest(t *testing.T) {
	req, err := newUnofficialRequest(context.Background(), "", "", "a & b?", "auto", "de")
	if err != nil {
		t.Fatalf("newUnofficialRequest() error = %v", err)
	}
	if req.Method != "GET" {
		t.Errorf("Method = %s", req.Method)
	}
	if req.URL.Host != "translate.googleapis.com" || req.URL.Path != "/translate_a/single" {
		t.Errorf("URL = %s", req.URL)
	}
	q := req.URL.Query()
	for key, want := range map[string]string{"client": "gtx", "sl": "auto", "tl": "de", "dt": "t", "q": "a & b?"} {
		if q.Get(key) != want {
			t.Errorf("query %s = %q, want %q", key, q.Get(key), want)
		}
	}
	if req.Header.Get("User-Agent") != "" {
		t.Error("User-Agent set although none was configured")
	}
	if req.Header.Get("Accept") != "application/json,text/plain,*/*" {
		t.Errorf("Accept = %q", req.Header.Get("Accept"))
	}

	if _, err := newUnofficialRequest(context.Background(), "://bad", "", "x", "en", "de"); err == nil {
		t.Error("expected an error for a malformed endpoint")
	}
}
