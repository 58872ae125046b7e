// Package testutil provides testing utilities for the patent harvester.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for one mock document response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockSource is a configurable mock patent document server. Paths are
// "/<id>"; each path serves a queue of responses and repeats the last one.
type MockSource struct {
	server *httptest.Server
	mu     sync.Mutex

	responses map[string][]MockResponse
	served    map[string]int
	requests  map[string][]time.Time

	inFlight     int
	peakInFlight int
	lastHeader   http.Header
}

// NewMockSource creates a new mock source server.
func NewMockSource() *MockSource {
	mock := &MockSource{
		responses: make(map[string][]MockResponse),
		served:    make(map[string]int),
		requests:  make(map[string][]time.Time),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

func (m *MockSource) handle(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/")

	m.mu.Lock()
	m.requests[id] = append(m.requests[id], time.Now())
	m.lastHeader = r.Header.Clone()
	m.inFlight++
	if m.inFlight > m.peakInFlight {
		m.peakInFlight = m.inFlight
	}
	resp := m.next(id)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// next pops the response for id; the caller holds m.mu.
func (m *MockSource) next(id string) MockResponse {
	queue, ok := m.responses[id]
	if !ok || len(queue) == 0 {
		return MockResponse{StatusCode: http.StatusNotFound, Body: "not found"}
	}
	n := m.served[id]
	m.served[id] = n + 1
	if n >= len(queue) {
		return queue[len(queue)-1]
	}
	return queue[n]
}

// URL returns the mock server URL.
func (m *MockSource) URL() string {
	return m.server.URL
}

// Template returns a URL template for the fetcher.
func (m *MockSource) Template() string {
	return m.server.URL + "/{id}"
}

// Close shuts down the mock server.
func (m *MockSource) Close() {
	m.server.Close()
}

// SetResponses configures the responses served for id, in order.
func (m *MockSource) SetResponses(id string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[id] = responses
	m.served[id] = 0
}

// RequestCount returns the number of requests made for id.
func (m *MockSource) RequestCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests[id])
}

// TotalRequests returns the number of requests made for all identifiers.
func (m *MockSource) TotalRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, times := range m.requests {
		total += len(times)
	}
	return total
}

// RequestTimes returns the arrival times of requests for id.
func (m *MockSource) RequestTimes(id string) []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.requests[id]...)
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockSource) LastRequestHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeader
}

// PeakInFlight returns the highest number of concurrently served requests.
func (m *MockSource) PeakInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakInFlight
}

// NewOKResponse creates a 200 response carrying body.
func NewOKResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
			"ETag":         `"test-etag-123"`,
		},
	}
}

// NewStatusResponse creates an error response with the given status.
func NewStatusResponse(status int) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       fmt.Sprintf(`{"error": %q}`, http.StatusText(status)),
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return NewStatusResponse(http.StatusInternalServerError)
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return NewStatusResponse(http.StatusTooManyRequests)
}

// DocSection is one section of a JSON test document.
type DocSection struct {
	Lang        string
	Text        string
	Annotations []string
}

// JSONDocument builds a document-contents payload in the JSON source format.
// A zero-valued section is omitted.
func JSONDocument(title, abstract, claims, description DocSection) string {
	names := func(ann []string) []map[string]string {
		out := make([]map[string]string, 0, len(ann))
		for _, n := range ann {
			out = append(out, map[string]string{"name": n})
		}
		return out
	}
	lang := func(s DocSection) string {
		if s.Lang == "" {
			return "EN"
		}
		return s.Lang
	}
	section := func(s DocSection) []map[string]any {
		if s.Text == "" && len(s.Annotations) == 0 {
			return nil
		}
		return []map[string]any{{
			"lang": lang(s),
			"section": map[string]any{
				"content":     s.Text,
				"annotations": names(s.Annotations),
			},
		}}
	}

	var titles []map[string]any
	if title.Text != "" || len(title.Annotations) > 0 {
		titles = []map[string]any{{
			"lang":  lang(title),
			"title": title.Text,
			"annotation": map[string]any{
				"chemicalAnnotations": names(title.Annotations),
			},
		}}
	}

	doc := map[string]any{
		"data": map[string]any{
			"contents": map[string]any{
				"patentDocument": map[string]any{
					"bibliographicData": map[string]any{
						"technicalData": map[string]any{
							"inventionTitles": titles,
						},
					},
					"abstracts":      section(abstract),
					"claimResponses": section(claims),
					"descriptions":   section(description),
				},
			},
		},
	}

	data, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// HTMLDocument builds a patent page in the HTML source format.
// Empty sections are omitted.
func HTMLDocument(title, abstract string, claims, description []string, concepts []string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>patent</title></head><body>")
	if title != "" {
		fmt.Fprintf(&b, `<span itemprop="title">%s</span>`, title)
	}
	if abstract != "" {
		fmt.Fprintf(&b, `<section itemprop="abstract"><div class="abstract">%s</div></section>`, abstract)
	}
	if len(claims) > 0 {
		b.WriteString(`<section itemprop="claims">`)
		for _, c := range claims {
			fmt.Fprintf(&b, `<div class="claim">%s</div>`, c)
		}
		b.WriteString(`</section>`)
	}
	if len(description) > 0 {
		b.WriteString(`<section itemprop="description">`)
		for _, p := range description {
			fmt.Fprintf(&b, `<p>%s</p>`, p)
		}
		b.WriteString(`</section>`)
	}
	if len(concepts) > 0 {
		b.WriteString(`<ul itemprop="concept">`)
		for _, c := range concepts {
			fmt.Fprintf(&b, `<li itemscope><span itemprop="name">%s</span></li>`, c)
		}
		b.WriteString(`</ul>`)
	}
	b.WriteString("</body></html>")
	return b.String()
}
