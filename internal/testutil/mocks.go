package testutil

import (
	"io"
	"net/http"
	"strings"
	"sync"
)

// MockResponse represents a scripted HTTP response. A non-nil Err makes the
// round trip fail instead.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Err        error
}

// MockTransport is an http.RoundTripper that replays Responses in order and
// repeats the last one once the script runs out.
type MockTransport struct {
	Responses []MockResponse

	mu    sync.Mutex
	calls []*http.Request
}

// NewMockTransport returns a transport replaying responses
func NewMockTransport(responses ...MockResponse) *MockTransport {
	return &MockTransport{Responses: responses}
}

// Client returns an http.Client using the transport
func (m *MockTransport) Client() *http.Client {
	return &http.Client{Transport: m}
}

// RoundTrip records the request and returns the next scripted response
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	n := len(m.calls)
	m.mu.Unlock()

	if err := req.Context().Err(); err != nil {
		return nil, err
	}

	if len(m.Responses) == 0 {
		return newResponse(req, MockResponse{StatusCode: http.StatusNotFound, Body: "Not Found"}), nil
	}
	idx := n - 1
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	r := m.Responses[idx]
	if r.Err != nil {
		return nil, r.Err
	}
	return newResponse(req, r), nil
}

// CallCount returns how many requests were made
func (m *MockTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns the recorded requests
func (m *MockTransport) Calls() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request(nil), m.calls...)
}

func newResponse(req *http.Request, r MockResponse) *http.Response {
	status := r.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	header := make(http.Header)
	for k, v := range r.Headers {
		header.Set(k, v)
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(r.Body)),
		Request:    req,
	}
}

// UnofficialResponse builds a body in the shape the public translate
// endpoint returns, one tuple per segment.
func UnofficialResponse(segments ...string) string {
	var b strings.Builder
	b.WriteString("[[")
	for i, s := range segments {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`["`)
		b.WriteString(strings.ReplaceAll(s, `"`, `\"`))
		b.WriteString(`","src",null,null,1]`)
	}
	b.WriteString(`],null,"en"]`)
	return b.String()
}
